package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// TriggerSource tags triggers that arrived over HTTP.
const TriggerSource = "http"

// MarketsHandler serves the market trigger and price read endpoints.
type MarketsHandler struct {
	deps Dependencies
}

// NewMarketsHandler creates a new markets handler.
func NewMarketsHandler(deps Dependencies) *MarketsHandler {
	return &MarketsHandler{deps: deps}
}

// HandleTrigger handles POST /markets/{id}/update. The cycle runs asynchronously.
func (h *MarketsHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	marketID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	ack, err := h.deps.TriggerUpdate(r.Context(), marketID, TriggerSource)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ack)
}

// HandleQuote handles GET /markets/{id}/stocks/{slot}/{champion}.
func (h *MarketsHandler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	marketID, slotID, champion, err := pairFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	q, err := h.deps.Quote(r.Context(), marketID, slotID, champion)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HandleHistory handles GET /markets/{id}/stocks/{slot}/{champion}/history?period=1w.
func (h *MarketsHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	marketID, slotID, champion, err := pairFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	hist, err := h.deps.History(r.Context(), marketID, slotID, champion, r.URL.Query().Get("period"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", ErrBadRequest, name, raw)
	}
	return id, nil
}

func pairFromPath(r *http.Request) (int64, int64, string, error) {
	marketID, err := pathID(r, "id")
	if err != nil {
		return 0, 0, "", err
	}
	slotID, err := pathID(r, "slot")
	if err != nil {
		return 0, 0, "", err
	}
	champion := strings.TrimSpace(r.PathValue("champion"))
	if champion == "" {
		return 0, 0, "", fmt.Errorf("%w: missing champion", ErrBadRequest)
	}
	return marketID, slotID, champion, nil
}
