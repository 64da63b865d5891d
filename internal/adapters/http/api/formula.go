package api

import (
	"net/http"

	model "github.com/okian/readq/internal/domain/model"
	"github.com/okian/readq/pkg/logger"
)

// FormulaHandler serves the acting user's scoring formula.
type FormulaHandler struct {
	deps   FormulaDependencies
	logger logger.Logger
}

// NewFormulaHandler creates a new formula handler.
func NewFormulaHandler(deps FormulaDependencies, l logger.Logger) *FormulaHandler {
	return &FormulaHandler{deps: deps, logger: l}
}

// HandleGet handles GET /formula requests.
func (h *FormulaHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.GetFormula(r.Context(), UserFrom(r.Context()))
	if err != nil {
		fail(r.Context(), w, h.logger, wrap("api.get_formula", err))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleSet handles PUT /formula requests.
func (h *FormulaHandler) HandleSet(w http.ResponseWriter, r *http.Request) {
	const op = "api.set_formula"
	var cfg model.FormulaConfig
	if err := decodeJSON(r, op, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	res, err := h.deps.SetFormula(r.Context(), UserFrom(r.Context()), cfg)
	if err != nil {
		fail(r.Context(), w, h.logger, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReset handles DELETE /formula requests.
func (h *FormulaHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.ResetFormula(r.Context(), UserFrom(r.Context()))
	if err != nil {
		fail(r.Context(), w, h.logger, wrap("api.reset_formula", err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}
