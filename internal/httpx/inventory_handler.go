package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-pos-checkout/internal/inventory"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	Service *inventory.Service
	Log     *zap.Logger
}

type AdjustReq struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/inventory", h.list)
	r.Patch("/inventory/{catalogItemID}/adjust", h.adjust)
}

func (h *InventoryHandler) list(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.List(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *InventoryHandler) adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustReq
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	adj, err := h.Service.Adjust(r.Context(), principal(r), chi.URLParam(r, "catalogItemID"), req.Delta, req.Reason)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, adj)
}
