package domwatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/domsel/shield"
)

// Handler returns the HTTP API:
//
//	GET    /health       liveness and page count
//	GET    /pages        observed pages
//	POST   /pages        observe a page (PageConfig as JSON)
//	DELETE /pages/{id}   stop a page
func (w *Watcher) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(w.logger) {
		r.Use(mw)
	}

	r.Get("/health", w.handleHealth)
	r.Route("/pages", func(r chi.Router) {
		r.Get("/", w.handleListPages)
		r.Post("/", w.handleObservePage)
		r.Delete("/{id}", w.handleStopPage)
	})
	return r
}

func (w *Watcher) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status": "ok",
		"pages":  len(w.Pages()),
		"time":   time.Now().UTC(),
	})
}

func (w *Watcher) handleListPages(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, w.Pages())
}

func (w *Watcher) handleObservePage(rw http.ResponseWriter, r *http.Request) {
	var pc PageConfig
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pc); err != nil {
		writeError(rw, http.StatusBadRequest, fmt.Errorf("decode page: %w", err))
		return
	}

	if err := w.ObservePage(r.Context(), pc); err != nil {
		writeError(rw, observeStatus(err), err)
		return
	}
	shield.GetLogger(r.Context()).Info("domwatch: page added over http", "page_id", pc.ID)

	for _, st := range w.Pages() {
		if st.ID == pc.ID {
			writeJSON(rw, http.StatusCreated, st)
			return
		}
	}
	// Stopped between ObservePage and the listing.
	writeJSON(rw, http.StatusCreated, map[string]string{"id": pc.ID})
}

func (w *Watcher) handleStopPage(rw http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := w.StopPage(id); err != nil {
		if errors.Is(err, ErrUnknownPage) {
			writeError(rw, http.StatusNotFound, err)
			return
		}
		writeError(rw, http.StatusInternalServerError, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func observeStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidPage):
		return http.StatusBadRequest
	case errors.Is(err, ErrPageExists):
		return http.StatusConflict
	case errors.Is(err, ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
