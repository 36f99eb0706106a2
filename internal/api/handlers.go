package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/galleryops/internal/catalog"
	"github.com/punchamoorthee/galleryops/internal/models"
	"github.com/punchamoorthee/galleryops/internal/service"
	"github.com/punchamoorthee/galleryops/internal/store"
	"go.uber.org/zap"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gallery_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gallery_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	catalog *catalog.Cache
	orch    *service.Orchestrator
	log     *zap.Logger
}

func NewHandler(cat *catalog.Cache, orch *service.Orchestrator, log *zap.Logger) *Handler {
	return &Handler{catalog: cat, orch: orch, log: log}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) ListArtworksHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", "/artworks"))
	defer timer.ObserveDuration()

	artworks := h.catalog.List()
	if artworks == nil {
		artworks = []models.Artwork{}
	}
	h.respondJSON(w, http.StatusOK, artworks, "GET", "/artworks")
}

func (h *Handler) GetArtworkHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusBadRequest, "Invalid token id", "GET", "/artworks/{id}")
		return
	}

	art, err := h.catalog.Get(id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "Artwork not found", "GET", "/artworks/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, art, "GET", "/artworks/{id}")
}

func (h *Handler) MintArtworkHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/artworks/mint"))
	defer timer.ObserveDuration()

	var req models.MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/artworks/mint")
		return
	}

	rec, err := h.orch.Mint(r.Context(), req)
	if err != nil {
		h.respondOperationError(w, err, "POST", "/artworks/mint")
		return
	}
	h.respondAccepted(w, rec, "POST", "/artworks/mint")
}

func (h *Handler) SetPriceHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/artworks/set-price"))
	defer timer.ObserveDuration()

	var req models.SetPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/artworks/set-price")
		return
	}

	rec, err := h.orch.SetPrice(r.Context(), req)
	if err != nil {
		h.respondOperationError(w, err, "POST", "/artworks/set-price")
		return
	}
	h.respondAccepted(w, rec, "POST", "/artworks/set-price")
}

func (h *Handler) BuyArtworkHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/artworks/buy"))
	defer timer.ObserveDuration()

	var req models.BuyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/artworks/buy")
		return
	}

	rec, err := h.orch.Buy(r.Context(), req)
	if err != nil {
		h.respondOperationError(w, err, "POST", "/artworks/buy")
		return
	}
	h.respondAccepted(w, rec, "POST", "/artworks/buy")
}

func (h *Handler) CancelSaleHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/artworks/cancel-sale"))
	defer timer.ObserveDuration()

	var req models.CancelSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/artworks/cancel-sale")
		return
	}

	rec, err := h.orch.CancelSale(r.Context(), req)
	if err != nil {
		h.respondOperationError(w, err, "POST", "/artworks/cancel-sale")
		return
	}
	h.respondAccepted(w, rec, "POST", "/artworks/cancel-sale")
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["ref"]
	rec, err := h.orch.Record(r.Context(), ref)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			h.respondError(w, http.StatusNotFound, "Transaction not found", "GET", "/transactions/{ref}")
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/transactions/{ref}")
		return
	}
	h.respondJSON(w, http.StatusOK, rec, "GET", "/transactions/{ref}")
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	records, err := h.orch.Recent(r.Context(), limit)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/transactions")
		return
	}
	if records == nil {
		records = []models.TxRecord{}
	}
	h.respondJSON(w, http.StatusOK, records, "GET", "/transactions")
}

// RefreshCatalogHandler forces a full rebuild from the ledger. The
// triggering request pays the rebuild cost; concurrent readers keep the
// previous snapshot until the swap.
func (h *Handler) RefreshCatalogHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Rebuild(r.Context()); err != nil {
		h.log.Error("forced rebuild failed", zap.Error(err))
		h.respondError(w, http.StatusBadGateway, "Ledger unavailable", "POST", "/catalog/refresh")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]int64{"total_supply": h.catalog.Supply()}, "POST", "/catalog/refresh")
}

func (h *Handler) respondAccepted(w http.ResponseWriter, rec *models.TxRecord, method, endpoint string) {
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", rec.LedgerRef))
	h.respondJSON(w, http.StatusAccepted, models.SubmitResponse{
		LedgerRef: rec.LedgerRef,
		Status:    rec.Status,
	}, method, endpoint)
}

func (h *Handler) respondOperationError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, service.ErrTokenNotFound):
		h.respondError(w, http.StatusNotFound, "Token not found", method, endpoint)
	case errors.Is(err, service.ErrTokenBusy):
		h.respondError(w, http.StatusConflict, "Operation in progress, retry later", method, endpoint)
	case errors.Is(err, service.ErrMissingFields),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrNotOwner),
		errors.Is(err, service.ErrOwnerCannotBuy),
		errors.Is(err, service.ErrNotForSale),
		errors.Is(err, service.ErrValueMismatch):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), method, endpoint)
	case errors.Is(err, service.ErrSubmissionRejected):
		h.respondError(w, http.StatusBadGateway, err.Error(), method, endpoint)
	default:
		h.log.Error("operation failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, message, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": message}, method, endpoint)
}
