package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"brandempire.shop/storefront/internal/httpx"
	"brandempire.shop/storefront/internal/search"
)

// handleSuggest resolves the query box of a profile. Lookups are debounced
// unless submit=1; a newer lookup from the same profile supersedes this one,
// which then answers 409.
func (s *server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	id, ok := s.profileID(w, r)
	if !ok {
		return
	}
	session, err := s.searches.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, "search_unavailable", "could not open a search session", http.StatusInternalServerError)
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	var task *search.Task
	if r.URL.Query().Get("submit") == "1" {
		task = session.Submit(r.Context(), query)
	} else {
		task = session.Lookup(r.Context(), query)
	}

	res, err := task.Wait(r.Context())
	switch {
	case errors.Is(err, search.ErrSuperseded), errors.Is(err, search.ErrClosed):
		writeSuperseded(w, r)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// the client went away or the request timed out
		writeError(w, r, "cancelled", "the search was cancelled", http.StatusServiceUnavailable)
		return
	case err != nil:
		writeError(w, r, "search_failed", "search failed", http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, suggestResponse{Resolution: res, PriceLabels: s.priceLabels(res.Items)})
}

type suggestResponse struct {
	search.Resolution
	PriceLabels map[string]string `json:"priceLabels"`
}

