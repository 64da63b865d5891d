package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/okian/readq/internal/domain/types"
	"github.com/okian/readq/pkg/logger"
)

// BooksHandler serves the reading list of the acting user.
type BooksHandler struct {
	deps      BookDependencies
	validator *requestValidator
	logger    logger.Logger
}

// NewBooksHandler creates a new books handler.
func NewBooksHandler(deps BookDependencies, v *requestValidator, l logger.Logger) *BooksHandler {
	return &BooksHandler{deps: deps, validator: v, logger: l}
}

// HandleList handles GET /books requests.
func (h *BooksHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	books, err := h.deps.ListBooks(r.Context(), UserFrom(r.Context()))
	if err != nil {
		fail(r.Context(), w, h.logger, wrap("api.list_books", err))
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// HandleQueue handles GET /books/queue requests.
func (h *BooksHandler) HandleQueue(w http.ResponseWriter, r *http.Request) {
	books, err := h.deps.ListQueue(r.Context(), UserFrom(r.Context()))
	if err != nil {
		fail(r.Context(), w, h.logger, wrap("api.list_queue", err))
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// HandleQueueStats handles GET /books/queue/stats requests.
func (h *BooksHandler) HandleQueueStats(w http.ResponseWriter, r *http.Request) {
	q, err := h.deps.QueueStats(r.Context(), UserFrom(r.Context()))
	if err != nil {
		fail(r.Context(), w, h.logger, wrap("api.queue_stats", err))
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HandleBookAt handles GET /books/queue/{position} requests.
func (h *BooksHandler) HandleBookAt(w http.ResponseWriter, r *http.Request) {
	const op = "api.book_at"
	n, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, strconv.ErrSyntax))
		return
	}
	book, err := h.deps.BookAt(r.Context(), UserFrom(r.Context()), n)
	if err != nil {
		fail(r.Context(), w, h.logger, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleCreate handles POST /books requests.
func (h *BooksHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_book"
	var in types.BookInput
	if err := decodeJSON(r, op, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.validator.Struct(in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrap(op, err))
		return
	}
	book, err := h.deps.CreateBook(r.Context(), UserFrom(r.Context()), in)
	if err != nil {
		fail(r.Context(), w, h.logger, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, book)
}

// HandlePreviewScore handles POST /books/preview-score requests.
func (h *BooksHandler) HandlePreviewScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.preview_score"
	var in types.BookInput
	if err := decodeJSON(r, op, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	breakdown, err := h.deps.PreviewScore(r.Context(), UserFrom(r.Context()), in)
	if err != nil {
		fail(r.Context(), w, h.logger, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// HandleReorder handles POST /books/reorder requests.
func (h *BooksHandler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	const op = "api.reorder"
	var pairs []types.RankAssignment
	if err := decodeJSON(r, op, &pairs); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.validator.Each(pairs); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrap(op, err))
		return
	}
	res, err := h.deps.Reorder(r.Context(), UserFrom(r.Context()), pairs)
	if err != nil {
		fail(r.Context(), w, h.logger, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGet handles GET /books/{id} requests.
func (h *BooksHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	book, err := h.deps.GetBook(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		fail(r.Context(), w, h.logger, wrap("api.get_book", err))
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleUpdate handles PUT /books/{id} requests.
func (h *BooksHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_book"
	var patch types.BookPatch
	if err := decodeJSON(r, op, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.validator.Struct(patch); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrap(op, err))
		return
	}
	book, err := h.deps.UpdateBook(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "id"), patch)
	if err != nil {
		fail(r.Context(), w, h.logger, wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// HandleDelete handles DELETE /books/{id} requests.
func (h *BooksHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteBook(r.Context(), UserFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		fail(r.Context(), w, h.logger, wrap("api.delete_book", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
