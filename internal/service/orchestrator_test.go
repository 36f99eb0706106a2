package service

import (
	"context"
	"testing"
	"time"

	"github.com/punchamoorthee/galleryops/internal/catalog"
	"github.com/punchamoorthee/galleryops/internal/ledger"
	"github.com/punchamoorthee/galleryops/internal/locks"
	"github.com/punchamoorthee/galleryops/internal/models"
	"github.com/punchamoorthee/galleryops/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	alice = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bob   = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type fixture struct {
	orch *Orchestrator
	sim  *ledger.Sim
	cat  *catalog.Cache
	lm   *locks.Manager
	recs *store.MemoryStore
}

func newFixture(t *testing.T, confirmDelay, confirmTimeout time.Duration) *fixture {
	t.Helper()
	sim := ledger.NewSim(confirmDelay)
	cat := catalog.New(sim, zap.NewNop())
	require.NoError(t, cat.Rebuild(context.Background()))
	lm := locks.NewManager()
	recs := store.NewMemoryStore()
	return &fixture{
		orch: New(sim, cat, lm, recs, zap.NewNop(), confirmTimeout),
		sim:  sim,
		cat:  cat,
		lm:   lm,
		recs: recs,
	}
}

func (f *fixture) awaitTerminal(t *testing.T, ref string) *models.TxRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec, err := f.orch.Await(ctx, ref)
	require.NoError(t, err)
	return rec
}

func (f *fixture) mintConfirmed(t *testing.T, title, owner string) int64 {
	t.Helper()
	rec, err := f.orch.Mint(context.Background(), models.MintRequest{
		Title: title, Artist: "Artist", Description: "desc", Submitter: owner,
	})
	require.NoError(t, err)
	final := f.awaitTerminal(t, rec.LedgerRef)
	require.Equal(t, models.StatusConfirmed, final.Status)
	return final.TokenID
}

func TestMint_RoundTrip(t *testing.T) {
	f := newFixture(t, 0, time.Second)

	rec, err := f.orch.Mint(context.Background(), models.MintRequest{
		Title:       "Fractured Light",
		Artist:      "Mara Voss",
		Description: "Stained glass rendered in oil",
		Submitter:   alice,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.LedgerRef)

	final := f.awaitTerminal(t, rec.LedgerRef)
	require.Equal(t, models.StatusConfirmed, final.Status)
	require.Equal(t, int64(1), final.TokenID)

	art, err := f.cat.Get(final.TokenID)
	require.NoError(t, err)
	assert.Equal(t, "Fractured Light", art.Title)
	assert.Equal(t, "Mara Voss", art.Artist)
	assert.Equal(t, "Stained glass rendered in oil", art.Description)
	assert.Equal(t, alice, art.Owner)
	assert.False(t, art.ForSale)
	assert.Zero(t, art.Price)
}

func TestMint_RejectsMissingFields(t *testing.T) {
	f := newFixture(t, 0, time.Second)

	_, err := f.orch.Mint(context.Background(), models.MintRequest{Artist: "A", Submitter: alice})
	assert.ErrorIs(t, err, ErrMissingFields)

	records, err := f.orch.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records, "validation failures never reach the ledger")
}

func TestSetPriceThenBuy_Scenario(t *testing.T) {
	f := newFixture(t, 0, time.Second)
	f.mintConfirmed(t, "a", alice)
	f.mintConfirmed(t, "b", alice)
	id := f.mintConfirmed(t, "Tidewater", alice)
	require.Equal(t, int64(3), id)

	rec, err := f.orch.SetPrice(context.Background(), models.SetPriceRequest{TokenID: 3, Price: 1000, Submitter: alice})
	require.NoError(t, err)
	final := f.awaitTerminal(t, rec.LedgerRef)
	require.Equal(t, models.StatusConfirmed, final.Status)

	art, err := f.cat.Get(3)
	require.NoError(t, err)
	assert.True(t, art.ForSale)
	assert.Equal(t, int64(1000), art.Price)

	rec, err = f.orch.Buy(context.Background(), models.BuyRequest{TokenID: 3, Submitter: bob, AttachedValue: 1000})
	require.NoError(t, err)
	final = f.awaitTerminal(t, rec.LedgerRef)
	require.Equal(t, models.StatusConfirmed, final.Status)

	art, err = f.cat.Get(3)
	require.NoError(t, err)
	assert.Equal(t, bob, art.Owner)
	assert.False(t, art.ForSale)
	assert.Zero(t, art.Price)
}

func TestBuy_ValueMismatchRejectedBeforeSubmission(t *testing.T) {
	f := newFixture(t, 0, time.Second)
	id := f.mintConfirmed(t, "Piece", alice)

	rec, err := f.orch.SetPrice(context.Background(), models.SetPriceRequest{TokenID: id, Price: 1000, Submitter: alice})
	require.NoError(t, err)
	f.awaitTerminal(t, rec.LedgerRef)

	before, err := f.orch.Recent(context.Background(), 10)
	require.NoError(t, err)

	_, err = f.orch.Buy(context.Background(), models.BuyRequest{TokenID: id, Submitter: bob, AttachedValue: 999})
	assert.ErrorIs(t, err, ErrValueMismatch)

	after, err := f.orch.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, after, len(before), "rejected buy must not create a record or touch the ledger")
}

func TestBuy_OwnerCannotBuyOwnArtwork(t *testing.T) {
	f := newFixture(t, 0, time.Second)
	id := f.mintConfirmed(t, "Piece", alice)

	rec, err := f.orch.SetPrice(context.Background(), models.SetPriceRequest{TokenID: id, Price: 100, Submitter: alice})
	require.NoError(t, err)
	f.awaitTerminal(t, rec.LedgerRef)

	_, err = f.orch.Buy(context.Background(), models.BuyRequest{TokenID: id, Submitter: alice, AttachedValue: 100})
	assert.ErrorIs(t, err, ErrOwnerCannotBuy)
}

func TestSetPrice_RejectsNonOwnerAndBadPrice(t *testing.T) {
	f := newFixture(t, 0, time.Second)
	id := f.mintConfirmed(t, "Piece", alice)

	_, err := f.orch.SetPrice(context.Background(), models.SetPriceRequest{TokenID: id, Price: 100, Submitter: bob})
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.orch.SetPrice(context.Background(), models.SetPriceRequest{TokenID: id, Price: 0, Submitter: alice})
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = f.orch.SetPrice(context.Background(), models.SetPriceRequest{TokenID: 99, Price: 100, Submitter: alice})
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestCancelSale_RejectsWhenNotForSale(t *testing.T) {
	f := newFixture(t, 0, time.Second)
	id := f.mintConfirmed(t, "Piece", alice)

	_, err := f.orch.CancelSale(context.Background(), models.CancelSaleRequest{TokenID: id, Submitter: alice})
	assert.ErrorIs(t, err, ErrNotForSale)
}

func TestCancelSale_Confirmed(t *testing.T) {
	f := newFixture(t, 0, time.Second)
	id := f.mintConfirmed(t, "Piece", alice)

	rec, err := f.orch.SetPrice(context.Background(), models.SetPriceRequest{TokenID: id, Price: 500, Submitter: alice})
	require.NoError(t, err)
	f.awaitTerminal(t, rec.LedgerRef)

	rec, err = f.orch.CancelSale(context.Background(), models.CancelSaleRequest{TokenID: id, Submitter: alice})
	require.NoError(t, err)
	final := f.awaitTerminal(t, rec.LedgerRef)
	require.Equal(t, models.StatusConfirmed, final.Status)

	art, err := f.cat.Get(id)
	require.NoError(t, err)
	assert.False(t, art.ForSale)
	assert.Zero(t, art.Price)
}

func TestConcurrentSetPrice_SecondFailsBusy(t *testing.T) {
	f := newFixture(t, 150*time.Millisecond, 2*time.Second)
	id := f.mintConfirmed(t, "Piece", alice)

	rec, err := f.orch.SetPrice(context.Background(), models.SetPriceRequest{TokenID: id, Price: 1000, Submitter: alice})
	require.NoError(t, err)
	assert.True(t, f.lm.Held(id), "lock stays held while confirmation is pending")

	_, err = f.orch.SetPrice(context.Background(), models.SetPriceRequest{TokenID: id, Price: 2000, Submitter: alice})
	assert.ErrorIs(t, err, ErrTokenBusy)

	records, err := f.orch.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 2, "the busy loser must not reach the ledger") // mint + first set-price

	final := f.awaitTerminal(t, rec.LedgerRef)
	assert.Equal(t, models.StatusConfirmed, final.Status)
	assert.False(t, f.lm.Held(id))
}

func TestRevert_RefreshesStaleSnapshot(t *testing.T) {
	f := newFixture(t, 0, time.Second)
	id := f.mintConfirmed(t, "Piece", alice)

	// Poison the snapshot: locally listed, but the ledger says otherwise.
	art, err := f.cat.Get(id)
	require.NoError(t, err)
	art.ForSale = true
	art.Price = 500
	f.cat.Apply(art)

	rec, err := f.orch.Buy(context.Background(), models.BuyRequest{TokenID: id, Submitter: bob, AttachedValue: 500})
	require.NoError(t, err, "validation passes against the stale snapshot")

	final := f.awaitTerminal(t, rec.LedgerRef)
	require.Equal(t, models.StatusFailed, final.Status)
	assert.Equal(t, "not for sale", final.Reason)

	got, err := f.cat.Get(id)
	require.NoError(t, err)
	assert.False(t, got.ForSale, "revert must trigger a single-token refresh")
	assert.Equal(t, alice, got.Owner)
}

func TestTimeout_TerminalForAttemptNotForLedger(t *testing.T) {
	f := newFixture(t, 300*time.Millisecond, 50*time.Millisecond)

	rec, err := f.orch.Mint(context.Background(), models.MintRequest{
		Title: "Late", Artist: "A", Submitter: alice,
	})
	require.NoError(t, err)

	final := f.awaitTerminal(t, rec.LedgerRef)
	assert.Equal(t, models.StatusFailed, final.Status)
	assert.Equal(t, "confirmation timeout", final.Reason)
	assert.False(t, f.lm.Held(locks.MintSentinel), "lock released on timeout")

	// The ledger transaction still lands; the drift check absorbs it.
	time.Sleep(300 * time.Millisecond)
	rebuilt, err := f.cat.CheckDrift(context.Background())
	require.NoError(t, err)
	assert.True(t, rebuilt)

	art, err := f.cat.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "Late", art.Title)
}

func TestMints_SerializeOnSentinel(t *testing.T) {
	f := newFixture(t, 150*time.Millisecond, 2*time.Second)

	rec, err := f.orch.Mint(context.Background(), models.MintRequest{Title: "One", Artist: "A", Submitter: alice})
	require.NoError(t, err)

	_, err = f.orch.Mint(context.Background(), models.MintRequest{Title: "Two", Artist: "B", Submitter: bob})
	assert.ErrorIs(t, err, ErrTokenBusy, "mints contend on the mint sentinel")

	final := f.awaitTerminal(t, rec.LedgerRef)
	assert.Equal(t, models.StatusConfirmed, final.Status)
}

func TestAwait_UnknownReference(t *testing.T) {
	f := newFixture(t, 0, time.Second)

	_, err := f.orch.Await(context.Background(), "0xnope")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}
