// Package store persists transaction records for a bounded history
// window. Records are advisory history plus the backing data for the
// gateway's status query; artwork state itself lives on the ledger.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/punchamoorthee/galleryops/internal/models"
)

var ErrRecordNotFound = errors.New("transaction record not found")

type RecordStore interface {
	// Insert persists a new record and assigns its ID.
	Insert(ctx context.Context, rec *models.TxRecord) error
	// Update rewrites a record's mutable fields by ID.
	Update(ctx context.Context, rec *models.TxRecord) error
	// GetByRef looks a record up by its ledger reference.
	GetByRef(ctx context.Context, ref string) (*models.TxRecord, error)
	// ListRecent returns up to limit records, newest first.
	ListRecent(ctx context.Context, limit int) ([]models.TxRecord, error)
	// Prune evicts terminal records older than the cutoff and reports how
	// many were removed. Pending records are never evicted.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}
