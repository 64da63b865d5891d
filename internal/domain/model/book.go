// Package model contains domain models passed between layers.
package model

import "time"

// Status is the reading state of a book.
type Status string

// Reading states.
const (
	StatusUnread   Status = "unread"
	StatusReading  Status = "reading"
	StatusFinished Status = "finished"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnread, StatusReading, StatusFinished:
		return true
	}
	return false
}

// Finished reports whether s is the terminal status.
func (s Status) Finished() bool { return s == StatusFinished }

// Priority tiers, lowest to highest.
const (
	PriorityLow        = "1 - Low"
	PriorityMedium     = "2 - Medium"
	PriorityMediumHigh = "3 - Medium-High"
	PriorityHigh       = "4 - High"
)

// PriorityTiers lists the priority tiers in ascending order.
var PriorityTiers = []string{PriorityLow, PriorityMedium, PriorityMediumHigh, PriorityHigh}

// IsPriority reports whether label is one of the priority tiers.
func IsPriority(label string) bool {
	for _, p := range PriorityTiers {
		if p == label {
			return true
		}
	}
	return false
}

// Book is one entry of a user's reading list.
//
// Rank is nil for finished books and for queued books that were never given
// a position. Among a user's non-finished ranked books ranks are dense 1..K.
type Book struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	OriginalTitle string    `json:"original_title,omitempty"`
	Author        string    `json:"author,omitempty"`
	Status        Status    `json:"status"`
	Rank          *int      `json:"rank"`
	Type          string    `json:"type,omitempty"`
	Availability  string    `json:"availability,omitempty"`
	Priority      string    `json:"priority,omitempty"`
	Year          *int      `json:"year,omitempty"`
	Class         string    `json:"book_class,omitempty"`
	Category      string    `json:"category,omitempty"`
	Score         float64   `json:"score"`
	Rating        *int      `json:"rating,omitempty"`
	DateRead      string    `json:"date_read,omitempty"`
	Motivation    string    `json:"motivation,omitempty"`
	CoverURL      string    `json:"cover_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Ranked reports whether the book currently holds a queue position.
func (b Book) Ranked() bool { return b.Rank != nil }

// RankValue returns the rank or 0 when the book holds none.
func (b Book) RankValue() int {
	if b.Rank == nil {
		return 0
	}
	return *b.Rank
}

// RankChange moves one book from one rank to another. A zero To clears the rank.
type RankChange struct {
	BookID string `json:"book_id"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// FloatPtr returns a pointer to v.
func FloatPtr(v float64) *float64 { return &v }
