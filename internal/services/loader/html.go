package loader

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/ragserver/internal/common"
	"github.com/ternarybob/ragserver/internal/httpclient"
	"github.com/ternarybob/ragserver/internal/identity"
	"github.com/ternarybob/ragserver/internal/interfaces"
	"github.com/ternarybob/ragserver/internal/models"
)

// Limits on what one page's asset sweep may pull in.
const (
	maxAssetLinks = 20
	maxAssetBytes = 100 * 1024 * 1024
)

// fileLoaderForWeb is the slice of the file loader the web loader needs
// for handing over downloaded files.
type fileLoaderForWeb interface {
	LoadTextFile(ctx context.Context, path, spaceKey, source, baseSource string) ([]models.Document, error)
	LoadMarkdownFile(ctx context.Context, path, spaceKey, source, baseSource string) ([]models.Document, error)
	LoadImageFile(ctx context.Context, path, spaceKey, source, baseSource string) ([]models.Document, error)
	LoadPDFFile(ctx context.Context, path, spaceKey, spaceKeyMulti, source, baseSource string) ([]models.Document, []models.Document, error)
}

// HTMLLoader turns web pages, sitemaps and directly linked files into
// documents. Requests are rate limited and, by default, confined to the
// origin of the page being loaded.
type HTMLLoader struct {
	splitter   *Splitter
	files      fileLoaderForWeb
	store      interfaces.VectorStoreManager
	client     *httpclient.Client
	logger     arbor.ILogger
	userAgent  string
	loadAssets bool
	sameOrigin bool
}

var _ interfaces.HTMLLoader = (*HTMLLoader)(nil)

// NewHTMLLoader builds a web loader that routes downloaded files
// through files. A nil store disables the skip-update fast path.
func NewHTMLLoader(cfg *common.IngestConfig, files *FileLoader, store interfaces.VectorStoreManager, logger arbor.ILogger) *HTMLLoader {
	return &HTMLLoader{
		splitter: NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		files:    files,
		store:    store,
		client: httpclient.NewClient(
			httpclient.WithLogger(logger),
			httpclient.WithRateLimit(httpclient.DefaultRateLimit),
			// The client timeout caps the whole exchange, body included;
			// linked-asset downloads run up to maxAssetBytes and need more
			// room than the 30s API default.
			httpclient.WithHTTPClient(httpclient.NewDefaultHTTPClient(5*time.Minute)),
		),
		logger:     logger,
		userAgent:  cfg.UserAgent,
		loadAssets: true,
		sameOrigin: true,
	}
}

// LoadFromURL loads one URL. A URL ending in .xml is treated as a
// sitemap and every site in it is loaded, nested indexes included.
func (h *HTMLLoader) LoadFromURL(ctx context.Context, pageURL, spaceKey, spaceKeyMulti string) ([]models.Document, []models.Document, error) {
	return h.loadFromURL(ctx, pageURL, spaceKey, spaceKeyMulti, map[string]bool{})
}

// LoadFromURLList loads every URL named in a list file, one per line,
// sharing one seen set so an asset referenced from several pages is
// fetched once. Blank lines and lines starting with # are skipped.
func (h *HTMLLoader) LoadFromURLList(ctx context.Context, listPath, spaceKey, spaceKeyMulti string) ([]models.Document, []models.Document, error) {
	urls, err := readSourcesFromFile(listPath)
	if err != nil {
		return nil, nil, err
	}

	seen := map[string]bool{}
	var textDocs, imageDocs []models.Document
	for _, pageURL := range urls {
		bufText, bufImage, err := h.loadFromURL(ctx, pageURL, spaceKey, spaceKeyMulti, seen)
		if err != nil {
			return nil, nil, err
		}
		textDocs = append(textDocs, bufText...)
		imageDocs = append(imageDocs, bufImage...)
	}
	return textDocs, imageDocs, nil
}

func (h *HTMLLoader) loadFromURL(ctx context.Context, pageURL, spaceKey, spaceKeyMulti string, seen map[string]bool) ([]models.Document, []models.Document, error) {
	if !strings.HasSuffix(pageURL, ".xml") {
		return h.loadFromSite(ctx, pageURL, spaceKey, spaceKeyMulti, seen)
	}

	urls, err := h.collectSitemapURLs(ctx, pageURL, map[string]bool{})
	if err != nil {
		h.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to load sitemap")
		return nil, nil, nil
	}

	var textDocs, imageDocs []models.Document
	for _, siteURL := range urls {
		bufText, bufImage, err := h.loadFromSite(ctx, siteURL, spaceKey, spaceKeyMulti, seen)
		if err != nil {
			return nil, nil, err
		}
		textDocs = append(textDocs, bufText...)
		imageDocs = append(imageDocs, bufImage...)
	}
	return textDocs, imageDocs, nil
}

// loadFromSite ingests one site URL: a direct file link goes through
// the file loader, anything else is read as a page, together with its
// linked assets when asset loading is on.
func (h *HTMLLoader) loadFromSite(ctx context.Context, siteURL, spaceKey, spaceKeyMulti string, seen map[string]bool) ([]models.Document, []models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	parsed, err := url.Parse(siteURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		h.logger.Error().Str("url", siteURL).Msg("Invalid URL, expected http(s)://")
		return nil, nil, nil
	}

	if h.store != nil && h.store.SkipUpdate(siteURL) {
		h.logger.Info().Str("source", siteURL).Msg("Skip loading: source exists")
		return nil, nil, nil
	}

	if isFileURL(siteURL) {
		textDocs, imageDocs := h.loadDirectLinkedFile(ctx, siteURL, spaceKey, spaceKeyMulti, siteURL)
		return textDocs, imageDocs, nil
	}

	textDocs, err := h.loadHTMLText(ctx, siteURL, spaceKey, "")
	if err != nil {
		return nil, nil, err
	}

	var imageDocs []models.Document
	if h.loadAssets {
		bufText, bufImage := h.loadHTMLAssetFiles(ctx, siteURL, spaceKey, spaceKeyMulti, seen)
		textDocs = append(textDocs, bufText...)
		imageDocs = bufImage
	}

	h.logger.Info().
		Int("text_docs", len(textDocs)).
		Int("image_docs", len(imageDocs)).
		Str("url", siteURL).
		Msg("Loaded site")
	return textDocs, imageDocs, nil
}

// loadHTMLText fetches a page and turns its readable text into chunk
// documents. Fetch and conversion failures are logged and produce no
// documents rather than stopping a multi-page ingest.
func (h *HTMLLoader) loadHTMLText(ctx context.Context, pageURL, spaceKey, baseURL string) ([]models.Document, error) {
	html := h.fetchText(ctx, pageURL)
	if strings.TrimSpace(html) == "" {
		return nil, nil
	}

	content := h.htmlToText(html, pageURL)
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	if baseURL == "" {
		baseURL = pageURL
	}
	meta := models.Metadata{
		models.MetaSource:     pageURL,
		models.MetaBaseSource: baseURL,
		models.MetaSpaceKey:   spaceKey,
		models.MetaEmbedType:  models.EmbedTypeText,
	}
	if title := pageTitle(html); title != "" {
		meta[models.MetaTitle] = title
	}

	base := models.Document{PageContent: content, Metadata: meta}
	docs := h.splitter.SplitDocuments([]models.Document{base})
	for i := range docs {
		docs[i].Metadata[models.MetaChunkNo] = i
		docs[i].Metadata[models.MetaID] = identity.WebTextDocID(pageURL, i)
		if err := models.AssertRequiredKeys(docs[i].Metadata, models.WebTextSchema); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrIngest, err)
		}
	}
	return docs, nil
}

// loadHTMLAssetFiles loads the supported files a page links to. seen is
// shared with the caller so one asset is fetched once per ingest run,
// whether its load succeeded or not.
func (h *HTMLLoader) loadHTMLAssetFiles(ctx context.Context, baseURL, spaceKey, spaceKeyMulti string, seen map[string]bool) ([]models.Document, []models.Document) {
	html := h.fetchText(ctx, baseURL)
	if html == "" {
		return nil, nil
	}

	var textDocs, imageDocs []models.Document
	for _, assetURL := range h.gatherAssetLinks(html, baseURL) {
		if seen[assetURL] {
			continue
		}
		bufText, bufImage := h.loadDirectLinkedFile(ctx, assetURL, spaceKey, spaceKeyMulti, baseURL)
		textDocs = append(textDocs, bufText...)
		imageDocs = append(imageDocs, bufImage...)
		seen[assetURL] = true
	}
	return textDocs, imageDocs
}

// loadDirectLinkedFile downloads a directly linked file and routes it
// through the file loader. The temp file is removed afterwards except
// when an image document ends up pointing at it; those temps are
// removed by the store once embedded. Failures never stop the
// surrounding page walk.
func (h *HTMLLoader) loadDirectLinkedFile(ctx context.Context, fileURL, spaceKey, spaceKeyMulti, baseURL string) ([]models.Document, []models.Document) {
	if !hasExt(fileURL, supportedExts) {
		h.logger.Warn().Str("url", fileURL).Msgf("Not a supported ext, supported: %s", extList(supportedExts))
		return nil, nil
	}

	path := h.downloadDirectFile(ctx, fileURL)
	if path == "" {
		h.logger.Warn().Str("url", fileURL).Msg("Downloading file failure")
		return nil, nil
	}

	switch {
	case hasExt(path, textExts):
		defer os.Remove(path)
		docs, err := h.files.LoadTextFile(ctx, path, spaceKey, fileURL, baseURL)
		if err != nil {
			h.logger.Warn().Err(err).Str("url", fileURL).Msg("Failed to load downloaded file")
			return nil, nil
		}
		return docs, nil

	case hasExt(path, markdownExts):
		defer os.Remove(path)
		docs, err := h.files.LoadMarkdownFile(ctx, path, spaceKey, fileURL, baseURL)
		if err != nil {
			h.logger.Warn().Err(err).Str("url", fileURL).Msg("Failed to load downloaded file")
			return nil, nil
		}
		return docs, nil

	case spaceKeyMulti != "" && hasExt(path, imageExts):
		docs, err := h.files.LoadImageFile(ctx, path, spaceKeyMulti, fileURL, baseURL)
		if err != nil || len(docs) == 0 {
			os.Remove(path)
			if err != nil {
				h.logger.Warn().Err(err).Str("url", fileURL).Msg("Failed to load downloaded file")
			}
			return nil, nil
		}
		return nil, docs

	case hasExt(path, pdfExts):
		defer os.Remove(path)
		textDocs, imageDocs, err := h.files.LoadPDFFile(ctx, path, spaceKey, spaceKeyMulti, fileURL, baseURL)
		if err != nil {
			h.logger.Warn().Err(err).Str("url", fileURL).Msg("Failed to load downloaded file")
			return nil, nil
		}
		return textDocs, imageDocs

	default:
		os.Remove(path)
		h.logger.Info().Str("url", fileURL).Msg("Loaded nothing from url")
		return nil, nil
	}
}

// downloadDirectFile fetches fileURL into a temp file named with the
// project prefix, keeping the URL's extension. Oversized and failed
// downloads come back as an empty path.
func (h *HTMLLoader) downloadDirectFile(ctx context.Context, fileURL string) string {
	resp, err := h.client.Get(ctx, fileURL, h.requestHeaders())
	if err != nil {
		h.logger.Warn().Err(err).Str("url", fileURL).Msg("Failed to fetch url")
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		h.logger.Warn().Err(err).Str("url", fileURL).Msg("Failed to read response body")
		return ""
	}
	if len(body) > maxAssetBytes {
		h.logger.Warn().Int("bytes", len(body)).Str("url", fileURL).Msg("Skip asset: too large")
		return ""
	}

	f, err := os.CreateTemp("", common.TempFilePrefix+"*"+extOf(fileURL))
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to create temp file")
		return ""
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(f.Name())
		h.logger.Warn().Err(err).Msg("Failed to write temp file")
		return ""
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		h.logger.Warn().Err(err).Msg("Failed to write temp file")
		return ""
	}
	return f.Name()
}

// fetchText GETs a URL and returns the body as text. Failures are
// logged and yield an empty string.
func (h *HTMLLoader) fetchText(ctx context.Context, pageURL string) string {
	resp, err := h.client.Get(ctx, pageURL, h.requestHeaders())
	if err != nil {
		h.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to fetch url")
		return ""
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logger.Warn().Err(err).Str("url", pageURL).Msg("Failed to read response body")
		return ""
	}
	return string(body)
}

func (h *HTMLLoader) requestHeaders() map[string]string {
	site := "none"
	if h.sameOrigin {
		site = "same-origin"
	}
	return map[string]string{
		"User-Agent":     h.userAgent,
		"Sec-Fetch-Site": site,
	}
}

// gatherAssetLinks collects up to maxAssetLinks absolute URLs of
// supported files referenced by the page: image sources, anchors and
// the first srcset candidate of source elements. Offsite links are
// dropped unless sameOrigin is off.
func (h *HTMLLoader) gatherAssetLinks(html, baseURL string) []string {
	base, err := url.Parse(baseURL)
	if err != nil {
		h.logger.Warn().Err(err).Str("url", baseURL).Msg("Failed to parse base url")
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		h.logger.Warn().Err(err).Str("url", baseURL).Msg("Failed to parse html")
		return nil
	}

	seen := map[string]bool{}
	var out []string
	add := func(ref string) {
		if ref == "" {
			return
		}
		refURL, err := url.Parse(strings.TrimSpace(ref))
		if err != nil {
			return
		}
		abs := base.ResolveReference(refURL)
		if seen[abs.String()] {
			return
		}
		if h.sameOrigin && (abs.Scheme != base.Scheme || abs.Host != base.Host) {
			return
		}
		if !hasSupportedPath(abs.Path) {
			return
		}
		seen[abs.String()] = true
		out = append(out, abs.String())
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, exists := s.Attr("src"); exists {
			add(src)
		}
	})
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		if href, exists := s.Attr("href"); exists {
			add(href)
		}
	})
	doc.Find("source").Each(func(_ int, s *goquery.Selection) {
		srcset, exists := s.Attr("srcset")
		if !exists || srcset == "" {
			return
		}
		first := strings.TrimSpace(strings.Split(srcset, ",")[0])
		add(strings.Split(first, " ")[0])
	})

	if len(out) > maxAssetLinks {
		out = out[:maxAssetLinks]
	}
	return out
}

// hasSupportedPath reports whether a URL path ends in a supported
// extension.
func hasSupportedPath(path string) bool {
	path = strings.ToLower(path)
	for ext := range supportedExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// isFileURL reports whether a URL points at a file rather than a page,
// judged by a dot in the last path segment.
func isFileURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" {
		return false
	}
	segment := strings.TrimRight(parsed.Path, "/")
	if i := strings.LastIndex(segment, "/"); i >= 0 {
		segment = segment[i+1:]
	}
	return strings.Contains(segment, ".")
}

// htmlToText converts page HTML to markdown. Conversion failures and
// empty output fall back to stripping tags.
func (h *HTMLLoader) htmlToText(html, pageURL string) string {
	converter := md.NewConverter(pageURL, true, nil)
	converted, err := converter.ConvertString(html)
	if err != nil {
		h.logger.Warn().Err(err).Str("url", pageURL).Msg("HTML to markdown conversion failed, using fallback")
		return stripHTMLTags(html)
	}
	if strings.TrimSpace(converted) == "" {
		h.logger.Warn().Str("url", pageURL).Msg("HTML to markdown conversion produced empty output, applying fallback")
		return stripHTMLTags(html)
	}
	return converted
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// stripHTMLTags removes basic HTML tags for fallback cases.
func stripHTMLTags(htmlStr string) string {
	stripped := htmlTagRe.ReplaceAllString(htmlStr, "")
	cleaned := whitespaceRe.ReplaceAllString(stripped, " ")

	cleaned = strings.ReplaceAll(cleaned, "&amp;", "&")
	cleaned = strings.ReplaceAll(cleaned, "&lt;", "<")
	cleaned = strings.ReplaceAll(cleaned, "&gt;", ">")
	cleaned = strings.ReplaceAll(cleaned, "&quot;", "\"")
	cleaned = strings.ReplaceAll(cleaned, "&#39;", "'")
	cleaned = strings.ReplaceAll(cleaned, "&nbsp;", " ")

	return strings.TrimSpace(cleaned)
}

// pageTitle pulls the <title> text, blank when the page has none.
func pageTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// sitemapXML covers plain sitemaps and sitemap indexes in one shape;
// which one arrived shows in which slice has entries.
type sitemapXML struct {
	URLs     []sitemapLoc `xml:"url"`
	Sitemaps []sitemapLoc `xml:"sitemap"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// collectSitemapURLs expands a sitemap into site URLs, following nested
// sitemap indexes. visited guards against index cycles.
func (h *HTMLLoader) collectSitemapURLs(ctx context.Context, sitemapURL string, visited map[string]bool) ([]string, error) {
	if visited[sitemapURL] {
		return nil, nil
	}
	visited[sitemapURL] = true

	resp, err := h.client.Get(ctx, sitemapURL, h.requestHeaders())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch sitemap %s: %v", common.ErrIngest, sitemapURL, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sitemap %s: %v", common.ErrIngest, sitemapURL, err)
	}

	var parsed sitemapXML
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse sitemap %s: %v", common.ErrIngest, sitemapURL, err)
	}

	var urls []string
	for _, entry := range parsed.URLs {
		if loc := strings.TrimSpace(entry.Loc); loc != "" {
			urls = append(urls, loc)
		}
	}
	for _, nested := range parsed.Sitemaps {
		loc := strings.TrimSpace(nested.Loc)
		if loc == "" {
			continue
		}
		nestedURLs, err := h.collectSitemapURLs(ctx, loc, visited)
		if err != nil {
			h.logger.Warn().Err(err).Str("url", loc).Msg("Failed to load nested sitemap")
			continue
		}
		urls = append(urls, nestedURLs...)
	}
	return urls, nil
}
