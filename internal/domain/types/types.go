// Package types contains common types used across the application
package types

import model "github.com/okian/readq/internal/domain/model"

// BookInput carries the fields of a new book
type BookInput struct {
	Title         string       `json:"title" validate:"required"`
	OriginalTitle string       `json:"original_title"`
	Author        string       `json:"author"`
	Status        model.Status `json:"status" validate:"omitempty,oneof=unread reading finished"`
	Rank          *int         `json:"rank" validate:"omitempty,min=0"`
	Type          string       `json:"type"`
	Availability  string       `json:"availability"`
	Priority      string       `json:"priority"`
	Year          *int         `json:"year"`
	Class         string       `json:"book_class"`
	Category      string       `json:"category"`
	Rating        *int         `json:"rating" validate:"omitempty,min=1,max=5"`
	DateRead      string       `json:"date_read"`
	Motivation    string       `json:"motivation"`
	CoverURL      string       `json:"cover_url" validate:"omitempty,url"`
}

// BookPatch carries the fields of a book to change. Nil fields are kept.
type BookPatch struct {
	Title         *string       `json:"title" validate:"omitempty,min=1"`
	OriginalTitle *string       `json:"original_title"`
	Author        *string       `json:"author"`
	Status        *model.Status `json:"status" validate:"omitempty,oneof=unread reading finished"`
	Rank          *int          `json:"rank" validate:"omitempty,min=1"`
	Type          *string       `json:"type"`
	Availability  *string       `json:"availability"`
	Priority      *string       `json:"priority"`
	Year          *int          `json:"year"`
	Class         *string       `json:"book_class"`
	Category      *string       `json:"category"`
	Rating        *int          `json:"rating" validate:"omitempty,min=1,max=5"`
	DateRead      *string       `json:"date_read"`
	Motivation    *string       `json:"motivation"`
	CoverURL      *string       `json:"cover_url" validate:"omitempty,url"`
}

// FormulaView is a user's active formula
type FormulaView struct {
	Custom  bool                `json:"custom"`
	Formula model.FormulaConfig `json:"formula"`
}

// FormulaUpdate reports the books rescored after a formula change
type FormulaUpdate struct {
	Custom   bool `json:"custom"`
	Rescored int  `json:"rescored"`
}

// RescoreResult summarises a bulk rescore request
type RescoreResult struct {
	Users      int `json:"users"`
	Queued     int `json:"queued"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// RankAssignment is one (book, rank) pair of a bulk reorder
type RankAssignment struct {
	BookID string `json:"book_id" validate:"required"`
	Rank   int    `json:"rank"`
}

// Skip reasons reported by a bulk reorder.
const (
	SkipNotFound    = "not_found"
	SkipNotOwned    = "not_owned"
	SkipFinished    = "finished"
	SkipInvalidRank = "invalid_rank"
)

// SkippedAssignment is a reorder pair that was not applied
type SkippedAssignment struct {
	BookID string `json:"book_id"`
	Reason string `json:"reason"`
}

// ReorderResult summarises a bulk reorder
type ReorderResult struct {
	Applied int                 `json:"applied"`
	Skipped []SkippedAssignment `json:"skipped"`
}

// ResequenceResult summarises a repair of one user's ranks
type ResequenceResult struct {
	UserID  string `json:"user_id"`
	Changed int    `json:"changed"`
	Ranked  int    `json:"ranked"`
}
