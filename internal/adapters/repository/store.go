// Package repository defines the book store contract and errors.
package repository

import (
	"context"

	model "github.com/okian/readq/internal/domain/model"
)

// Store runs units of work against the persisted reading lists.
type Store interface {
	// Update runs fn in one read-write transaction. A non-nil error from fn
	// rolls every write back.
	Update(ctx context.Context, fn func(tx Tx) error) error
	// View runs fn against a consistent read-only view.
	View(ctx context.Context, fn func(tx Tx) error) error
	// Close releases the store's resources.
	Close() error
}

// Tx is the set of reads and writes available inside one unit of work.
type Tx interface {
	// GetBook returns ErrNotFound when id does not exist.
	GetBook(ctx context.Context, id string) (model.Book, error)
	// ListBooks returns every book of a user: ranked ones by rank, then the
	// rest by creation time.
	ListBooks(ctx context.Context, userID string) ([]model.Book, error)
	// ListRanked returns a user's non-finished ranked books ordered by rank,
	// creation time and id.
	ListRanked(ctx context.Context, userID string) ([]model.Book, error)
	// BookAtRank returns the first non-finished book holding rank.
	BookAtRank(ctx context.Context, userID string, rank int) (model.Book, error)

	InsertBook(ctx context.Context, b model.Book) error
	// UpdateBook replaces every field of an existing book.
	UpdateBook(ctx context.Context, b model.Book) error
	DeleteBook(ctx context.Context, id string) error

	// ApplyRanks writes rank changes of a user's books. A zero To clears the rank.
	ApplyRanks(ctx context.Context, userID string, changes []model.RankChange) error
	// UpdateScores writes scores of a user's books keyed by book id.
	UpdateScores(ctx context.Context, userID string, scores map[string]float64) error

	// GetFormula returns nil when the user has no custom formula.
	GetFormula(ctx context.Context, userID string) (*model.FormulaConfig, error)
	PutFormula(ctx context.Context, userID string, cfg model.FormulaConfig) error
	DeleteFormula(ctx context.Context, userID string) error

	// ListUsers returns every user owning at least one book or formula.
	ListUsers(ctx context.Context) ([]string, error)
}
