// Package ledger is the only package that performs ledger I/O. Everything
// else depends on the Client interface, so a simulated ledger can stand in
// for the real chain in tests and local development.
package ledger

import (
	"context"
	"errors"

	"github.com/punchamoorthee/galleryops/internal/models"
)

// ErrNotFound reports that the queried token does not exist on the ledger.
var ErrNotFound = errors.New("token not found on ledger")

// SubmissionError reports that the ledger rejected the call before
// accepting it (malformed arguments, insufficient balance). Terminal for
// the attempt; nothing was recorded on-chain.
type SubmissionError struct {
	Reason string
}

func (e *SubmissionError) Error() string {
	return "ledger rejected submission: " + e.Reason
}

// RevertError reports that the ledger executed the operation but its
// on-chain preconditions failed, leaving state unchanged.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "ledger reverted: " + e.Reason
}

// Operation describes one mutating call against the artwork contract.
// Title/Artist/Description are set for mints, Price for set-price, Value
// for buys (the attached payment). TokenID is zero for mints.
type Operation struct {
	Type        models.OpType
	TokenID     int64
	Title       string
	Artist      string
	Description string
	Price       int64
	Value       int64
	Submitter   string
}

// Confirmation carries the ledger-side effects of a confirmed operation.
// For mints, TokenID is the newly assigned token id.
type Confirmation struct {
	TokenID int64
}

// Client is the adapter contract for the external ledger.
//
// Submit returns an opaque ledger reference (transaction hash) once the
// ledger accepts the call; it fails with *SubmissionError on pre-acceptance
// rejection. AwaitConfirmation blocks until the referenced transaction is
// confirmed, fails with *RevertError on execution failure, or returns the
// context error when the caller's deadline expires first.
type Client interface {
	TotalSupply(ctx context.Context) (int64, error)
	ReadArtwork(ctx context.Context, tokenID int64) (*models.Artwork, error)
	Submit(ctx context.Context, op Operation) (string, error)
	AwaitConfirmation(ctx context.Context, ref string) (*Confirmation, error)
}
