package api

import (
	"errors"
	"net/http"

	"github.com/okian/readq/pkg/logger"
)

var errMissingUser = errors.New("missing user query parameter")

// AdminHandler serves the maintenance routes.
type AdminHandler struct {
	deps   AdminDependencies
	logger logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, l logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: l}
}

// HandleResequence handles POST /admin/resequence?user=U requests.
func (h *AdminHandler) HandleResequence(w http.ResponseWriter, r *http.Request) {
	const op = "api.resequence"
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errMissingUser))
		return
	}
	res, err := h.deps.Resequence(r.Context(), user)
	if err != nil {
		fail(r.Context(), w, h.logger, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAudit handles GET /admin/audit?user=U requests.
func (h *AdminHandler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	const op = "api.audit"
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, errMissingUser))
		return
	}
	report, err := h.deps.Audit(r.Context(), user)
	if err != nil {
		fail(r.Context(), w, h.logger, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleRescore handles POST /admin/rescore requests.
func (h *AdminHandler) HandleRescore(w http.ResponseWriter, r *http.Request) {
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "admin"
	}
	res, err := h.deps.EnqueueRescoreAll(r.Context(), reason)
	if err != nil {
		fail(r.Context(), w, h.logger, wrap("api.rescore", err))
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}
