package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the gateway surface.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/artworks", h.ListArtworksHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/artworks/mint", h.MintArtworkHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/artworks/set-price", h.SetPriceHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/artworks/buy", h.BuyArtworkHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/artworks/cancel-sale", h.CancelSaleHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/artworks/{id:[0-9]+}", h.GetArtworkHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/transactions", h.ListTransactionsHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/transactions/{ref}", h.GetTransactionHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/catalog/refresh", h.RefreshCatalogHandler).Methods(http.MethodPost)

	return r
}
