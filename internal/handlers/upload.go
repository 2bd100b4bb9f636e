package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/ragserver/internal/common"
)

// UploadHandler saves multipart uploads into the configured upload
// directory, where a later /v1/ingest/path call can pick them up.
type UploadHandler struct {
	config *common.Config
	logger arbor.ILogger
}

func NewUploadHandler(config *common.Config) *UploadHandler {
	return &UploadHandler{
		config: config,
		logger: common.GetLogger(),
	}
}

type uploadedFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SavePath    string `json:"save_path"`
}

// UploadHandler handles POST /v1/upload. Parts are streamed to disk as
// they arrive rather than buffered in memory.
func (h *UploadHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		WriteDetailError(w, http.StatusBadRequest, fmt.Sprintf("expected multipart form data: %v", err))
		return
	}

	uploadDir := h.config.Ingest.UploadDir
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		h.logger.Error().Err(err).Str("dir", uploadDir).Msg("Failed to create upload directory")
		WriteDetailError(w, http.StatusInternalServerError, fmt.Sprintf("creating upload directory: %v", err))
		return
	}

	var saved []uploadedFile
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			WriteDetailError(w, http.StatusBadRequest, fmt.Sprintf("reading multipart body: %v", err))
			return
		}

		if part.FormName() != "files" {
			part.Close()
			continue
		}
		if part.FileName() == "" {
			part.Close()
			WriteDetailError(w, http.StatusBadRequest, "uploaded file is missing a filename")
			return
		}

		file, err := h.savePart(part, uploadDir)
		part.Close()
		if err != nil {
			h.logger.Error().Err(err).Str("filename", part.FileName()).Msg("Failed to save upload")
			WriteDetailError(w, http.StatusInternalServerError, fmt.Sprintf("saving %s: %v", part.FileName(), err))
			return
		}

		h.logger.Info().
			Str("filename", file.Filename).
			Str("save_path", file.SavePath).
			Msg("Saved upload")
		saved = append(saved, file)
	}

	if len(saved) == 0 {
		WriteDetailError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	WriteJSON(w, http.StatusOK, map[string][]uploadedFile{"files": saved})
}

// savePart streams one part to uploadDir. Client-supplied names are
// flattened to their basename so uploads cannot escape the directory.
func (h *UploadHandler) savePart(part *multipart.Part, uploadDir string) (uploadedFile, error) {
	filename := filepath.Base(part.FileName())
	savePath := filepath.Join(uploadDir, filename)

	dst, err := os.Create(savePath)
	if err != nil {
		return uploadedFile{}, err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, part); err != nil {
		os.Remove(savePath)
		return uploadedFile{}, err
	}

	return uploadedFile{
		Filename:    filename,
		ContentType: part.Header.Get("Content-Type"),
		SavePath:    savePath,
	}, nil
}
