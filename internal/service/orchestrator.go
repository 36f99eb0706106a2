// Package service owns the lifecycle of every mutating marketplace
// operation: validation against the catalog snapshot, per-token conflict
// locking, ledger submission, confirmation tracking and cache
// reconciliation. Each operation reaches exactly one terminal state and is
// never resubmitted automatically; a caller-initiated retry is a new
// operation.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/galleryops/internal/catalog"
	"github.com/punchamoorthee/galleryops/internal/ledger"
	"github.com/punchamoorthee/galleryops/internal/locks"
	"github.com/punchamoorthee/galleryops/internal/models"
	"github.com/punchamoorthee/galleryops/internal/store"
	"go.uber.org/zap"
)

var (
	ErrTokenNotFound      = errors.New("token not found")
	ErrTokenBusy          = errors.New("operation in progress for token")
	ErrMissingFields      = errors.New("required fields missing")
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrNotOwner           = errors.New("submitter is not the owner")
	ErrOwnerCannotBuy     = errors.New("owner cannot buy own artwork")
	ErrNotForSale         = errors.New("artwork is not for sale")
	ErrValueMismatch      = errors.New("attached value must equal the listed price")
	ErrSubmissionRejected = errors.New("ledger rejected submission")
)

var (
	opsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_operations_total",
		Help: "Mutating operations by terminal outcome",
	}, []string{"operation", "outcome"})

	confirmDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gallery_confirmation_duration_seconds",
		Help:    "Time from submission to terminal confirmation state",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 120, 300},
	}, []string{"operation"})
)

type Orchestrator struct {
	ledger         ledger.Client
	catalog        *catalog.Cache
	locks          *locks.Manager
	records        store.RecordStore
	log            *zap.Logger
	confirmTimeout time.Duration

	mu      sync.Mutex
	waiters map[string]chan struct{}
}

func New(lc ledger.Client, cat *catalog.Cache, lm *locks.Manager, rs store.RecordStore, log *zap.Logger, confirmTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		ledger:         lc,
		catalog:        cat,
		locks:          lm,
		records:        rs,
		log:            log,
		confirmTimeout: confirmTimeout,
		waiters:        make(map[string]chan struct{}),
	}
}

// Mint submits a new artwork. Mints serialize on the mint sentinel so
// token ids are assigned strictly in order.
func (o *Orchestrator) Mint(ctx context.Context, req models.MintRequest) (*models.TxRecord, error) {
	if req.Title == "" || req.Artist == "" || req.Submitter == "" {
		return nil, fmt.Errorf("%w: title, artist and submitter", ErrMissingFields)
	}
	return o.submit(ctx, locks.MintSentinel, ledger.Operation{
		Type:        models.OpMint,
		Title:       req.Title,
		Artist:      req.Artist,
		Description: req.Description,
		Submitter:   req.Submitter,
	})
}

// SetPrice lists an artwork for sale. Only the current owner may list,
// and the price must be positive.
func (o *Orchestrator) SetPrice(ctx context.Context, req models.SetPriceRequest) (*models.TxRecord, error) {
	if req.Submitter == "" {
		return nil, fmt.Errorf("%w: submitter", ErrMissingFields)
	}
	if req.Price <= 0 {
		return nil, ErrInvalidPrice
	}
	art, err := o.catalog.Get(req.TokenID)
	if err != nil {
		return nil, ErrTokenNotFound
	}
	if art.Owner != req.Submitter {
		return nil, ErrNotOwner
	}
	return o.submit(ctx, req.TokenID, ledger.Operation{
		Type:      models.OpSetPrice,
		TokenID:   req.TokenID,
		Price:     req.Price,
		Submitter: req.Submitter,
	})
}

// Buy purchases a listed artwork. The attached value must equal the
// listed price exactly, and owners cannot buy their own pieces.
func (o *Orchestrator) Buy(ctx context.Context, req models.BuyRequest) (*models.TxRecord, error) {
	if req.Submitter == "" {
		return nil, fmt.Errorf("%w: submitter", ErrMissingFields)
	}
	art, err := o.catalog.Get(req.TokenID)
	if err != nil {
		return nil, ErrTokenNotFound
	}
	if !art.ForSale {
		return nil, ErrNotForSale
	}
	if art.Owner == req.Submitter {
		return nil, ErrOwnerCannotBuy
	}
	if req.AttachedValue != art.Price {
		return nil, ErrValueMismatch
	}
	return o.submit(ctx, req.TokenID, ledger.Operation{
		Type:      models.OpBuy,
		TokenID:   req.TokenID,
		Value:     req.AttachedValue,
		Submitter: req.Submitter,
	})
}

// CancelSale delists an artwork. Only the current owner may cancel.
func (o *Orchestrator) CancelSale(ctx context.Context, req models.CancelSaleRequest) (*models.TxRecord, error) {
	if req.Submitter == "" {
		return nil, fmt.Errorf("%w: submitter", ErrMissingFields)
	}
	art, err := o.catalog.Get(req.TokenID)
	if err != nil {
		return nil, ErrTokenNotFound
	}
	if !art.ForSale {
		return nil, ErrNotForSale
	}
	if art.Owner != req.Submitter {
		return nil, ErrNotOwner
	}
	return o.submit(ctx, req.TokenID, ledger.Operation{
		Type:      models.OpCancelSale,
		TokenID:   req.TokenID,
		Submitter: req.Submitter,
	})
}

// submit runs the post-validation pipeline: lock, record, ledger submit,
// then background confirmation tracking. The conflict lock is held from
// before submission until the operation reaches a terminal state.
func (o *Orchestrator) submit(ctx context.Context, lockID int64, op ledger.Operation) (*models.TxRecord, error) {
	lease, err := o.locks.Acquire(lockID)
	if err != nil {
		opsTotal.WithLabelValues(string(op.Type), "busy").Inc()
		return nil, ErrTokenBusy
	}

	now := time.Now().UTC()
	rec := &models.TxRecord{
		Op:        op.Type,
		TokenID:   op.TokenID,
		Submitter: op.Submitter,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.records.Insert(ctx, rec); err != nil {
		o.locks.Release(lease)
		return nil, err
	}

	ref, err := o.ledger.Submit(ctx, op)
	if err != nil {
		rec.Status = models.StatusFailed
		rec.Reason = err.Error()
		rec.UpdatedAt = time.Now().UTC()
		if uerr := o.records.Update(ctx, rec); uerr != nil {
			o.log.Error("record update failed", zap.Error(uerr))
		}
		o.locks.Release(lease)
		opsTotal.WithLabelValues(string(op.Type), "submission_rejected").Inc()
		var se *ledger.SubmissionError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%w: %s", ErrSubmissionRejected, se.Reason)
		}
		return nil, err
	}

	rec.LedgerRef = ref
	rec.UpdatedAt = time.Now().UTC()
	if err := o.records.Update(ctx, rec); err != nil {
		o.log.Error("record update failed", zap.Error(err))
	}

	o.mu.Lock()
	done := make(chan struct{})
	o.waiters[ref] = done
	o.mu.Unlock()

	o.log.Info("operation submitted",
		zap.String("operation", string(op.Type)),
		zap.Int64("token_id", op.TokenID),
		zap.String("ledger_reference", ref))

	go o.track(lease, *rec, op, done)

	cp := *rec
	return &cp, nil
}

// track waits for the ledger's verdict and drives the record to its
// terminal state. It owns the lock release for every outcome.
func (o *Orchestrator) track(lease locks.Lease, rec models.TxRecord, op ledger.Operation, done chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), o.confirmTimeout)
	defer cancel()
	start := time.Now()

	conf, err := o.ledger.AwaitConfirmation(ctx, rec.LedgerRef)

	var revert *ledger.RevertError
	switch {
	case err == nil:
		if rec.Op == models.OpMint && conf.TokenID > 0 {
			rec.TokenID = conf.TokenID
		}
		o.applyEffect(rec, op, conf)
		rec.Status = models.StatusConfirmed
		opsTotal.WithLabelValues(string(rec.Op), "confirmed").Inc()
	case errors.As(err, &revert):
		rec.Status = models.StatusFailed
		rec.Reason = revert.Reason
		opsTotal.WithLabelValues(string(rec.Op), "reverted").Inc()
		// A revert usually means our snapshot was stale when the caller
		// decided to act; re-read the token to resolve it.
		if rec.TokenID > 0 {
			refreshCtx, refreshCancel := context.WithTimeout(context.Background(), 10*time.Second)
			if rerr := o.catalog.RefreshToken(refreshCtx, rec.TokenID); rerr != nil {
				o.log.Warn("post-revert refresh failed", zap.Int64("token_id", rec.TokenID), zap.Error(rerr))
			}
			refreshCancel()
		}
	case errors.Is(err, context.DeadlineExceeded):
		// Terminal for this attempt only: the ledger transaction may still
		// confirm later. The drift checker absorbs any late effect.
		rec.Status = models.StatusFailed
		rec.Reason = "confirmation timeout"
		opsTotal.WithLabelValues(string(rec.Op), "timeout").Inc()
	default:
		rec.Status = models.StatusFailed
		rec.Reason = err.Error()
		opsTotal.WithLabelValues(string(rec.Op), "error").Inc()
	}

	rec.UpdatedAt = time.Now().UTC()
	updateCtx, updateCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if uerr := o.records.Update(updateCtx, &rec); uerr != nil {
		o.log.Error("record update failed", zap.Error(uerr))
	}
	updateCancel()

	o.locks.Release(lease)
	confirmDuration.WithLabelValues(string(rec.Op)).Observe(time.Since(start).Seconds())

	o.mu.Lock()
	delete(o.waiters, rec.LedgerRef)
	o.mu.Unlock()
	close(done)

	o.log.Info("operation finished",
		zap.String("operation", string(rec.Op)),
		zap.Int64("token_id", rec.TokenID),
		zap.String("ledger_reference", rec.LedgerRef),
		zap.String("status", string(rec.Status)),
		zap.String("reason", rec.Reason))
}

// applyEffect folds the confirmed operation's semantic effect into the
// catalog snapshot without re-reading the ledger.
func (o *Orchestrator) applyEffect(rec models.TxRecord, op ledger.Operation, conf *ledger.Confirmation) {
	switch rec.Op {
	case models.OpMint:
		o.catalog.Apply(models.Artwork{
			TokenID:     conf.TokenID,
			Title:       op.Title,
			Artist:      op.Artist,
			Description: op.Description,
			Owner:       op.Submitter,
		})
	case models.OpSetPrice:
		if art, err := o.catalog.Get(rec.TokenID); err == nil {
			art.Price = op.Price
			art.ForSale = true
			o.catalog.Apply(art)
		}
	case models.OpBuy:
		if art, err := o.catalog.Get(rec.TokenID); err == nil {
			art.Owner = op.Submitter
			art.ForSale = false
			art.Price = 0
			o.catalog.Apply(art)
		}
	case models.OpCancelSale:
		if art, err := o.catalog.Get(rec.TokenID); err == nil {
			art.ForSale = false
			art.Price = 0
			o.catalog.Apply(art)
		}
	}
}

// Record returns the transaction record for a ledger reference.
func (o *Orchestrator) Record(ctx context.Context, ref string) (*models.TxRecord, error) {
	return o.records.GetByRef(ctx, ref)
}

// Recent returns the most recent transaction records, newest first.
func (o *Orchestrator) Recent(ctx context.Context, limit int) ([]models.TxRecord, error) {
	return o.records.ListRecent(ctx, limit)
}

// Await blocks until the referenced operation reaches a terminal state or
// ctx expires, then returns the record. Abandoning the wait does not
// abandon the operation; the submission is not revocable.
func (o *Orchestrator) Await(ctx context.Context, ref string) (*models.TxRecord, error) {
	o.mu.Lock()
	done, inflight := o.waiters[ref]
	o.mu.Unlock()

	if inflight {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
		}
	}
	return o.records.GetByRef(ctx, ref)
}

// PruneHistory evicts terminal records older than the retention window on
// the given interval until ctx is cancelled.
func (o *Orchestrator) PruneHistory(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.records.Prune(ctx, time.Now().UTC().Add(-retention))
			if err != nil {
				o.log.Error("history prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				o.log.Info("history pruned", zap.Int64("records", n))
			}
		}
	}
}
