package generate

import (
	"errors"
	"net/http"

	"github.com/sendrec/clipintake/internal/httputil"
)

type Handler struct {
	trigger *Trigger
}

func NewHandler(t *Trigger) *Handler {
	return &Handler{trigger: t}
}

type stateResponse struct {
	State string `json:"state"`
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.trigger.Start(); err != nil {
		if errors.Is(err, ErrNoClips) {
			httputil.WriteError(w, http.StatusBadRequest, MessageNoClips)
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "could not start generation")
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, stateResponse{State: h.trigger.State().String()})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, stateResponse{State: h.trigger.State().String()})
}
