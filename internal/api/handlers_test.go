package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/punchamoorthee/galleryops/internal/catalog"
	"github.com/punchamoorthee/galleryops/internal/ledger"
	"github.com/punchamoorthee/galleryops/internal/locks"
	"github.com/punchamoorthee/galleryops/internal/models"
	"github.com/punchamoorthee/galleryops/internal/service"
	"github.com/punchamoorthee/galleryops/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	owner = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	buyer = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

type env struct {
	router http.Handler
	orch   *service.Orchestrator
	sim    *ledger.Sim
}

func newEnv(t *testing.T, confirmDelay time.Duration) *env {
	t.Helper()
	sim := ledger.NewSim(confirmDelay)
	cat := catalog.New(sim, zap.NewNop())
	require.NoError(t, cat.Rebuild(context.Background()))
	orch := service.New(sim, cat, locks.NewManager(), store.NewMemoryStore(), zap.NewNop(), 2*time.Second)
	return &env{
		router: NewRouter(NewHandler(cat, orch, zap.NewNop())),
		orch:   orch,
		sim:    sim,
	}
}

func (e *env) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) mintConfirmed(t *testing.T, title string) (int64, string) {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/artworks/mint", models.MintRequest{
		Title: title, Artist: "Artist", Description: "desc", Submitter: owner,
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var ack models.SubmitResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ack))
	require.NotEmpty(t, ack.LedgerRef)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rec, err := e.orch.Await(ctx, ack.LedgerRef)
	require.NoError(t, err)
	require.Equal(t, models.StatusConfirmed, rec.Status)
	return rec.TokenID, ack.LedgerRef
}

func TestHealthCheck(t *testing.T) {
	e := newEnv(t, 0)
	w := e.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListArtworks_EmptyCatalog(t *testing.T) {
	e := newEnv(t, 0)
	w := e.do(t, "GET", "/api/v1/artworks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestMintThenGetArtwork(t *testing.T) {
	e := newEnv(t, 0)
	id, _ := e.mintConfirmed(t, "Harbor at Dusk")

	w := e.do(t, "GET", "/api/v1/artworks/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var art models.Artwork
	require.NoError(t, json.NewDecoder(w.Body).Decode(&art))
	assert.Equal(t, id, art.TokenID)
	assert.Equal(t, "Harbor at Dusk", art.Title)
	assert.Equal(t, owner, art.Owner)
	assert.False(t, art.ForSale)
}

func TestGetArtwork_NotFound(t *testing.T) {
	e := newEnv(t, 0)
	w := e.do(t, "GET", "/api/v1/artworks/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMint_MalformedBody(t *testing.T) {
	e := newEnv(t, 0)
	req := httptest.NewRequest("POST", "/api/v1/artworks/mint", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBuy_ValueMismatchReturns422(t *testing.T) {
	e := newEnv(t, 0)
	id, _ := e.mintConfirmed(t, "Piece")

	w := e.do(t, "POST", "/api/v1/artworks/set-price", models.SetPriceRequest{TokenID: id, Price: 1000, Submitter: owner})
	require.Equal(t, http.StatusAccepted, w.Code)
	var ack models.SubmitResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&ack))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := e.orch.Await(ctx, ack.LedgerRef)
	require.NoError(t, err)

	w = e.do(t, "POST", "/api/v1/artworks/buy", models.BuyRequest{TokenID: id, Submitter: buyer, AttachedValue: 999})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestSetPrice_UnknownTokenReturns404(t *testing.T) {
	e := newEnv(t, 0)
	w := e.do(t, "POST", "/api/v1/artworks/set-price", models.SetPriceRequest{TokenID: 9, Price: 100, Submitter: owner})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestConcurrentMutation_Returns409(t *testing.T) {
	e := newEnv(t, 150*time.Millisecond)
	id, _ := e.mintConfirmed(t, "Piece")

	w := e.do(t, "POST", "/api/v1/artworks/set-price", models.SetPriceRequest{TokenID: id, Price: 1000, Submitter: owner})
	require.Equal(t, http.StatusAccepted, w.Code)

	w = e.do(t, "POST", "/api/v1/artworks/set-price", models.SetPriceRequest{TokenID: id, Price: 2000, Submitter: owner})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestTransactionStatusQuery(t *testing.T) {
	e := newEnv(t, 0)
	_, ref := e.mintConfirmed(t, "Piece")

	w := e.do(t, "GET", "/api/v1/transactions/"+ref, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var rec models.TxRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&rec))
	assert.Equal(t, models.StatusConfirmed, rec.Status)
	assert.Equal(t, int64(1), rec.TokenID, "mint status surfaces the assigned token id")

	w = e.do(t, "GET", "/api/v1/transactions/0xmissing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTransactions(t *testing.T) {
	e := newEnv(t, 0)
	e.mintConfirmed(t, "One")
	e.mintConfirmed(t, "Two")

	w := e.do(t, "GET", "/api/v1/transactions?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var records []models.TxRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&records))
	assert.Len(t, records, 1)
}

func TestCatalogRefresh_PicksUpExternalMint(t *testing.T) {
	e := newEnv(t, 0)
	e.sim.Seed("Outsider", "B", "", buyer)

	w := e.do(t, "POST", "/api/v1/catalog/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, "GET", "/api/v1/artworks/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
