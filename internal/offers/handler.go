package offers

import (
	"net/http"

	"github.com/sendrec/clipintake/internal/httputil"
)

type Handler struct {
	board *Board
}

func NewHandler(board *Board) *Handler {
	return &Handler{board: board}
}

type boardResponse struct {
	Loaded bool   `json:"loaded"`
	Offers []View `json:"offers"`
}

// List returns sanitized views only. The raw anchor markup never leaves
// the server.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, boardResponse{
		Loaded: h.board.Loaded(),
		Offers: Views(h.board.Offers()),
	})
}
