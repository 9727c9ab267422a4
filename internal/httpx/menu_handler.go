package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-pos-checkout/internal/catalog"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type MenuHandler struct {
	Catalog catalog.Store
	Log     *zap.Logger
}

func (h *MenuHandler) Register(r chi.Router) {
	r.Get("/menu", h.list)
	r.Get("/menu/{id}", h.get)
}

func (h *MenuHandler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.Catalog.List(r.Context())
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *MenuHandler) get(w http.ResponseWriter, r *http.Request) {
	it, err := h.Catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}
