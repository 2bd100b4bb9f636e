package chroma

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/ragserver/internal/models"
)

// vectorRecord is one embedded row. The badgerhold key is
// "<spaceKey>/<id>" because document ids repeat across spaces.
type vectorRecord struct {
	Key      string `badgerhold:"key"`
	ID       string
	SpaceKey string `badgerhold:"index"`
	Source   string
	Payload  string
	Vector   []float32
	Metadata models.Metadata
}

// embeddedSpace is one collection inside the shared badgerhold store.
type embeddedSpace struct {
	store  *badgerhold.Store
	key    string
	logger arbor.ILogger
}

func (s *embeddedSpace) recordKey(id string) string {
	return s.key + "/" + id
}

// Get returns up to limit metadata records from the space.
func (s *embeddedSpace) Get(ctx context.Context, limit int) ([]models.Metadata, error) {
	query := badgerhold.Where("SpaceKey").Eq(s.key)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var recs []vectorRecord
	if err := s.store.Find(&recs, query); err != nil {
		return nil, fmt.Errorf("failed to read space: %w", err)
	}

	metas := make([]models.Metadata, len(recs))
	for i := range recs {
		metas[i] = recs[i].Metadata
	}
	return metas, nil
}

// Delete removes the given ids. Unknown ids are ignored.
func (s *embeddedSpace) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		err := s.store.Delete(s.recordKey(id), &vectorRecord{})
		if err != nil && err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to delete record %s: %w", id, err)
		}
	}
	return nil
}

// AddEmbeddings writes one record per id, replacing existing rows.
func (s *embeddedSpace) AddEmbeddings(ctx context.Context, payloads []string, vecs [][]float32, metas []models.Metadata, ids []string) error {
	if len(payloads) != len(vecs) || len(payloads) != len(metas) || len(payloads) != len(ids) {
		return fmt.Errorf("mismatched batch: %d payloads, %d vectors, %d metadatas, %d ids",
			len(payloads), len(vecs), len(metas), len(ids))
	}

	for i, id := range ids {
		rec := vectorRecord{
			Key:      s.recordKey(id),
			ID:       id,
			SpaceKey: s.key,
			Source:   metas[i].Source(),
			Payload:  payloads[i],
			Vector:   vecs[i],
			Metadata: metas[i],
		}
		if err := s.store.Upsert(rec.Key, &rec); err != nil {
			return fmt.Errorf("failed to upsert record %s: %w", id, err)
		}
	}
	return nil
}

// Query scans the space, scores every record by cosine distance and
// returns the k closest. Exact scan keeps embedded mode index-free; the
// load limit on spaces bounds how large these collections get.
func (s *embeddedSpace) Query(ctx context.Context, vec []float32, k int, filter models.Metadata) ([]models.Document, error) {
	var recs []vectorRecord
	if err := s.store.Find(&recs, badgerhold.Where("SpaceKey").Eq(s.key)); err != nil {
		return nil, fmt.Errorf("failed to scan space: %w", err)
	}

	type scored struct {
		rec  *vectorRecord
		dist float64
	}
	ranked := make([]scored, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		if !matchesFilter(rec.Metadata, filter) {
			continue
		}
		ranked = append(ranked, scored{rec: rec, dist: cosineDistance(vec, rec.Vector)})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })

	if k > len(ranked) {
		k = len(ranked)
	}
	docs := make([]models.Document, 0, k)
	for _, sc := range ranked[:k] {
		docs = append(docs, models.Document{PageContent: sc.rec.Payload, Metadata: sc.rec.Metadata})
	}
	return docs, nil
}

// cosineDistance is 1 - cos(a, b). Mismatched or zero vectors sort
// behind every real match.
func cosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/math.Sqrt(na*nb)
}

// matchesFilter applies metadata equality. Numbers compare by value so
// the int64 and float64 forms of the same number match.
func matchesFilter(meta, filter models.Metadata) bool {
	for key, want := range filter {
		got, ok := meta[key]
		if !ok {
			return false
		}
		if !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
