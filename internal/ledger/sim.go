package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/punchamoorthee/galleryops/internal/models"
)

// Sim is an in-process ledger with the same execution semantics as the
// marketplace contract: submissions are accepted immediately, take effect
// after a configurable confirmation latency, and revert when their on-chain
// preconditions no longer hold at execution time. It backs local
// development when no RPC endpoint is configured, and doubles as the test
// double for everything above the adapter.
type Sim struct {
	confirmDelay time.Duration

	mu       sync.Mutex
	artworks map[int64]*models.Artwork
	supply   int64
	pending  map[string]*simTx
	seq      int64
}

type simTx struct {
	op      Operation
	readyAt time.Time
	settled bool
	conf    *Confirmation
	revert  string
}

func NewSim(confirmDelay time.Duration) *Sim {
	return &Sim{
		confirmDelay: confirmDelay,
		artworks:     make(map[int64]*models.Artwork),
		pending:      make(map[string]*simTx),
	}
}

// Seed records an artwork directly, bypassing submission. It stands in for
// mutations originating outside this service instance, which the catalog's
// drift detection must absorb.
func (s *Sim) Seed(title, artist, description, owner string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supply++
	id := s.supply
	s.artworks[id] = &models.Artwork{
		TokenID:     id,
		Title:       title,
		Artist:      artist,
		Description: description,
		Owner:       owner,
	}
	return id
}

func (s *Sim) TotalSupply(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleLocked(time.Now())
	return s.supply, nil
}

func (s *Sim) ReadArtwork(ctx context.Context, tokenID int64) (*models.Artwork, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleLocked(time.Now())
	art, ok := s.artworks[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *art
	return &cp, nil
}

func (s *Sim) Submit(ctx context.Context, op Operation) (string, error) {
	if op.Submitter == "" {
		return "", &SubmissionError{Reason: "sender address required"}
	}
	if op.Type == models.OpMint && (op.Title == "" || op.Artist == "") {
		return "", &SubmissionError{Reason: "title and artist required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ref := fmt.Sprintf("0x%064x", s.seq)
	s.pending[ref] = &simTx{op: op, readyAt: time.Now().Add(s.confirmDelay)}
	return ref, nil
}

func (s *Sim) AwaitConfirmation(ctx context.Context, ref string) (*Confirmation, error) {
	s.mu.Lock()
	tx, ok := s.pending[ref]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown ledger reference %s", ref)
	}

	if wait := time.Until(tx.readyAt); wait > 0 {
		select {
		case <-ctx.Done():
			// The submission is still queued; it settles later regardless
			// of the caller abandoning the wait.
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settleLocked(time.Now())
	if tx.revert != "" {
		return nil, &RevertError{Reason: tx.revert}
	}
	return tx.conf, nil
}

// settleLocked executes every pending transaction whose latency has
// elapsed. Running it from the read paths too means a submission confirms
// on time even when nobody is awaiting it anymore.
func (s *Sim) settleLocked(now time.Time) {
	for _, tx := range s.pending {
		if !tx.settled && !now.Before(tx.readyAt) {
			s.executeLocked(tx)
			tx.settled = true
		}
	}
}

func (s *Sim) executeLocked(tx *simTx) {
	op := tx.op
	switch op.Type {
	case models.OpMint:
		s.supply++
		id := s.supply
		s.artworks[id] = &models.Artwork{
			TokenID:     id,
			Title:       op.Title,
			Artist:      op.Artist,
			Description: op.Description,
			Owner:       op.Submitter,
		}
		tx.conf = &Confirmation{TokenID: id}
		return
	case models.OpSetPrice:
		art, ok := s.artworks[op.TokenID]
		switch {
		case !ok:
			tx.revert = "unknown token"
		case art.Owner != op.Submitter:
			tx.revert = "caller is not the owner"
		case op.Price <= 0:
			tx.revert = "price must be positive"
		default:
			art.Price = op.Price
			art.ForSale = true
			tx.conf = &Confirmation{TokenID: op.TokenID}
		}
	case models.OpBuy:
		art, ok := s.artworks[op.TokenID]
		switch {
		case !ok:
			tx.revert = "unknown token"
		case !art.ForSale:
			tx.revert = "not for sale"
		case art.Owner == op.Submitter:
			tx.revert = "owner cannot buy"
		case op.Value != art.Price:
			tx.revert = "incorrect value"
		default:
			art.Owner = op.Submitter
			art.ForSale = false
			art.Price = 0
			tx.conf = &Confirmation{TokenID: op.TokenID}
		}
	case models.OpCancelSale:
		art, ok := s.artworks[op.TokenID]
		switch {
		case !ok:
			tx.revert = "unknown token"
		case art.Owner != op.Submitter:
			tx.revert = "caller is not the owner"
		case !art.ForSale:
			tx.revert = "not for sale"
		default:
			art.ForSale = false
			art.Price = 0
			tx.conf = &Confirmation{TokenID: op.TokenID}
		}
	default:
		tx.revert = fmt.Sprintf("unknown operation %q", op.Type)
	}
}
