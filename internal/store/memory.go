package store

import (
	"context"
	"sync"
	"time"

	"github.com/punchamoorthee/galleryops/internal/models"
)

// MemoryStore is the in-process RecordStore used when no database is
// configured, and in tests.
type MemoryStore struct {
	mu   sync.Mutex
	seq  int64
	byID map[int64]models.TxRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[int64]models.TxRecord)}
}

func (s *MemoryStore) Insert(ctx context.Context, rec *models.TxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec.ID = s.seq
	s.byID[rec.ID] = *rec
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, rec *models.TxRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[rec.ID]; !ok {
		return ErrRecordNotFound
	}
	s.byID[rec.ID] = *rec
	return nil
}

func (s *MemoryStore) GetByRef(ctx context.Context, ref string) (*models.TxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.byID {
		if rec.LedgerRef == ref && ref != "" {
			cp := rec
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]models.TxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]models.TxRecord, 0, limit)
	for id := s.seq; id > 0 && len(records) < limit; id-- {
		if rec, ok := s.byID[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *MemoryStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, rec := range s.byID {
		if rec.Status != models.StatusPending && rec.UpdatedAt.Before(cutoff) {
			delete(s.byID, id)
			removed++
		}
	}
	return removed, nil
}
