package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	model "github.com/okian/readq/internal/domain/model"
	"github.com/okian/readq/pkg/metrics"
)

// MemoryStore is an in-process Store. Update works on a copy of the state
// and swaps it in on success, so a failed unit of work leaves no trace.
type MemoryStore struct {
	mu     sync.RWMutex
	state  *memState
	closed bool
}

type memState struct {
	books    map[string]model.Book
	formulas map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{state: &memState{
		books:    make(map[string]model.Book),
		formulas: make(map[string][]byte),
	}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreTx("update", float64(time.Since(start).Microseconds())/1000, err != nil)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	next := s.state.clone()
	if err := fn(&memTx{state: next, writable: true}); err != nil {
		return err
	}
	s.state = next
	return nil
}

// View implements Store.
func (s *MemoryStore) View(ctx context.Context, fn func(tx Tx) error) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStoreTx("view", float64(time.Since(start).Microseconds())/1000, err != nil)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memTx{state: s.state})
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (st *memState) clone() *memState {
	out := &memState{
		books:    make(map[string]model.Book, len(st.books)),
		formulas: make(map[string][]byte, len(st.formulas)),
	}
	for id, b := range st.books {
		out.books[id] = b
	}
	for user, raw := range st.formulas {
		out.formulas[user] = raw
	}
	return out
}

func cloneBook(b model.Book) model.Book {
	if b.Rank != nil {
		b.Rank = model.IntPtr(*b.Rank)
	}
	if b.Year != nil {
		b.Year = model.IntPtr(*b.Year)
	}
	if b.Rating != nil {
		b.Rating = model.IntPtr(*b.Rating)
	}
	return b
}

type memTx struct {
	state    *memState
	writable bool
}

func (tx *memTx) GetBook(_ context.Context, id string) (model.Book, error) {
	b, ok := tx.state.books[id]
	if !ok {
		return model.Book{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneBook(b), nil
}

func (tx *memTx) ListBooks(_ context.Context, userID string) ([]model.Book, error) {
	var out []model.Book
	for _, b := range tx.state.books {
		if b.UserID == userID {
			out = append(out, cloneBook(b))
		}
	}
	SortBooks(out)
	return out, nil
}

func (tx *memTx) ListRanked(_ context.Context, userID string) ([]model.Book, error) {
	var out []model.Book
	for _, b := range tx.state.books {
		if b.UserID == userID && b.Rank != nil && !b.Status.Finished() {
			out = append(out, cloneBook(b))
		}
	}
	SortBooks(out)
	return out, nil
}

func (tx *memTx) BookAtRank(ctx context.Context, userID string, rank int) (model.Book, error) {
	ranked, _ := tx.ListRanked(ctx, userID)
	for _, b := range ranked {
		if *b.Rank == rank {
			return b, nil
		}
	}
	return model.Book{}, fmt.Errorf("%w: rank %d", ErrNotFound, rank)
}

func (tx *memTx) InsertBook(_ context.Context, b model.Book) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if _, ok := tx.state.books[b.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, b.ID)
	}
	tx.state.books[b.ID] = cloneBook(b)
	return nil
}

func (tx *memTx) UpdateBook(_ context.Context, b model.Book) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if _, ok := tx.state.books[b.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, b.ID)
	}
	tx.state.books[b.ID] = cloneBook(b)
	return nil
}

func (tx *memTx) DeleteBook(_ context.Context, id string) error {
	if !tx.writable {
		return ErrReadOnly
	}
	if _, ok := tx.state.books[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(tx.state.books, id)
	return nil
}

func (tx *memTx) ApplyRanks(_ context.Context, userID string, changes []model.RankChange) error {
	if !tx.writable {
		return ErrReadOnly
	}
	for _, c := range changes {
		b, ok := tx.state.books[c.BookID]
		if !ok || b.UserID != userID {
			return fmt.Errorf("%w: %s", ErrNotFound, c.BookID)
		}
		if c.To == 0 {
			b.Rank = nil
		} else {
			b.Rank = model.IntPtr(c.To)
		}
		tx.state.books[c.BookID] = b
	}
	return nil
}

func (tx *memTx) UpdateScores(_ context.Context, userID string, scores map[string]float64) error {
	if !tx.writable {
		return ErrReadOnly
	}
	for id, score := range scores {
		b, ok := tx.state.books[id]
		if !ok || b.UserID != userID {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		b.Score = score
		tx.state.books[id] = b
	}
	return nil
}

func (tx *memTx) GetFormula(_ context.Context, userID string) (*model.FormulaConfig, error) {
	raw, ok := tx.state.formulas[userID]
	if !ok {
		return nil, nil
	}
	var cfg model.FormulaConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode formula: %w", err)
	}
	return &cfg, nil
}

func (tx *memTx) PutFormula(_ context.Context, userID string, cfg model.FormulaConfig) error {
	if !tx.writable {
		return ErrReadOnly
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode formula: %w", err)
	}
	tx.state.formulas[userID] = raw
	return nil
}

func (tx *memTx) DeleteFormula(_ context.Context, userID string) error {
	if !tx.writable {
		return ErrReadOnly
	}
	delete(tx.state.formulas, userID)
	return nil
}

func (tx *memTx) ListUsers(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, b := range tx.state.books {
		seen[b.UserID] = struct{}{}
	}
	for user := range tx.state.formulas {
		seen[user] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for user := range seen {
		out = append(out, user)
	}
	sort.Strings(out)
	return out, nil
}

// SortBooks orders books the way ListBooks returns them: ranked books by
// rank, then unranked ones, ties broken by creation time and id.
func SortBooks(books []model.Book) {
	sort.SliceStable(books, func(i, j int) bool {
		a, b := books[i], books[j]
		if (a.Rank == nil) != (b.Rank == nil) {
			return a.Rank != nil
		}
		if a.Rank != nil && *a.Rank != *b.Rank {
			return *a.Rank < *b.Rank
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
