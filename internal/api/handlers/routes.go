package handlers

import (
	"net/http"

	"bidding-core/internal/api/middleware"
	"bidding-core/pkg/logger"

	"github.com/gorilla/mux"
)

// Router bundles what the bidding service exposes over HTTP. Nil fields are
// not routed.
type Router struct {
	Bids      *BidHandler
	History   *HistoryHandler
	WebSocket http.HandlerFunc
	Metrics   http.Handler
	Log       logger.Logger
}

func (rt Router) Build() *mux.Router {
	router := mux.NewRouter()
	if rt.Log != nil {
		router.Use(middleware.CORSWithLogging(rt.Log))
	} else {
		router.Use(middleware.CORS)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	if rt.Bids != nil {
		api.HandleFunc("/auctions/{auctionID}/bids", rt.Bids.PlaceBid).Methods(http.MethodPost, http.MethodOptions)
		api.HandleFunc("/auctions/{auctionID}/state", rt.Bids.GetState).Methods(http.MethodGet, http.MethodOptions)
	}
	if rt.History != nil {
		api.HandleFunc("/auctions/{auctionID}/bids", rt.History.GetBidHistory).Methods(http.MethodGet, http.MethodOptions)
	}

	// WebSocket routes
	if rt.WebSocket != nil {
		router.HandleFunc("/ws", rt.WebSocket)
	}
	if rt.Metrics != nil {
		router.Handle("/metrics", rt.Metrics).Methods(http.MethodGet)
	}

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}
