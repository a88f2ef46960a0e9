package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/youjaegwon/coinwatch/internal/http/response"
	"github.com/youjaegwon/coinwatch/internal/market"
)

type MarketHandler struct {
	markets *market.Service
}

func NewMarketHandler(markets *market.Service) *MarketHandler {
	return &MarketHandler{markets: markets}
}

func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	quote, err := h.markets.GetQuote(r.Context(), symbol)
	if err != nil {
		switch {
		case errors.Is(err, market.ErrSymbolNotFound):
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "unknown symbol", nil)
		case errors.Is(err, market.ErrUpstreamUnavailable):
			response.Error(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "market data unavailable", nil)
		default:
			response.AppError(w, r, err)
		}
		return
	}
	response.JSON(w, r, http.StatusOK, quote)
}

func (h *MarketHandler) Coins(w http.ResponseWriter, r *http.Request) {
	coins, err := h.markets.GetCoins(r.Context())
	if err != nil {
		if errors.Is(err, market.ErrUpstreamUnavailable) {
			response.Error(w, r, http.StatusBadGateway, "UPSTREAM_ERROR", "market data unavailable", nil)
			return
		}
		response.AppError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"coins": coins})
}
