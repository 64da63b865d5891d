// Package storetest holds the behaviour every repository.Store must show.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/readq/internal/adapters/repository"
	model "github.com/okian/readq/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) repository.Store

var errBoom = errors.New("boom")

func book(id, user string, rank int, created time.Time) model.Book {
	b := model.Book{
		ID:        id,
		UserID:    user,
		Title:     "title " + id,
		Status:    model.StatusUnread,
		Category:  "Cosmology",
		Year:      model.IntPtr(2001),
		Score:     1.5,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if rank > 0 {
		b.Rank = model.IntPtr(rank)
	}
	return b
}

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("insert and get", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		in := book("a", "u1", 1, base)
		in.Rating = model.IntPtr(4)
		in.Motivation = "recommended"

		require.NoError(t, s.Update(ctx, func(tx repository.Tx) error {
			return tx.InsertBook(ctx, in)
		}))

		var got model.Book
		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			var err error
			got, err = tx.GetBook(ctx, "a")
			return err
		}))
		assert.Equal(t, in.Title, got.Title)
		assert.Equal(t, 1, got.RankValue())
		assert.Equal(t, 2001, *got.Year)
		assert.Equal(t, 4, *got.Rating)
		assert.Equal(t, "recommended", got.Motivation)
		assert.True(t, in.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("missing book", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.View(ctx, func(tx repository.Tx) error {
			_, err := tx.GetBook(ctx, "nope")
			return err
		})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("failed unit of work rolls back", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Update(ctx, func(tx repository.Tx) error {
			return tx.InsertBook(ctx, book("a", "u1", 1, base))
		}))

		err := s.Update(ctx, func(tx repository.Tx) error {
			if err := tx.InsertBook(ctx, book("b", "u1", 2, base)); err != nil {
				return err
			}
			if err := tx.ApplyRanks(ctx, "u1", []model.RankChange{{BookID: "a", From: 1, To: 2}}); err != nil {
				return err
			}
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)

		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			books, err := tx.ListBooks(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, books, 1)
			assert.Equal(t, 1, books[0].RankValue())
			return nil
		}))
	})

	t.Run("ordering and rank lookups", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		finished := book("f", "u1", 0, base)
		finished.Status = model.StatusFinished
		require.NoError(t, s.Update(ctx, func(tx repository.Tx) error {
			for _, b := range []model.Book{
				book("c", "u1", 3, base),
				book("a", "u1", 1, base.Add(time.Minute)),
				book("b", "u1", 2, base),
				book("loose", "u1", 0, base),
				finished,
				book("x", "u2", 1, base),
			} {
				if err := tx.InsertBook(ctx, b); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			ranked, err := tx.ListRanked(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c"}, ids(ranked))

			all, err := tx.ListBooks(ctx, "u1")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c", "f", "loose"}, ids(all))

			at, err := tx.BookAtRank(ctx, "u1", 2)
			require.NoError(t, err)
			assert.Equal(t, "b", at.ID)

			_, err = tx.BookAtRank(ctx, "u1", 9)
			assert.ErrorIs(t, err, repository.ErrNotFound)

			users, err := tx.ListUsers(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"u1", "u2"}, users)
			return nil
		}))
	})

	t.Run("rank changes and scores", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.Update(ctx, func(tx repository.Tx) error {
			for _, b := range []model.Book{book("a", "u1", 1, base), book("b", "u1", 2, base)} {
				if err := tx.InsertBook(ctx, b); err != nil {
					return err
				}
			}
			return nil
		}))

		require.NoError(t, s.Update(ctx, func(tx repository.Tx) error {
			if err := tx.ApplyRanks(ctx, "u1", []model.RankChange{
				{BookID: "a", From: 1, To: 0},
				{BookID: "b", From: 2, To: 1},
			}); err != nil {
				return err
			}
			return tx.UpdateScores(ctx, "u1", map[string]float64{"a": 9, "b": 4.5})
		}))

		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			a, err := tx.GetBook(ctx, "a")
			require.NoError(t, err)
			assert.Nil(t, a.Rank)
			assert.Equal(t, 9.0, a.Score)
			b, err := tx.GetBook(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, 1, b.RankValue())
			return nil
		}))

		err := s.Update(ctx, func(tx repository.Tx) error {
			return tx.ApplyRanks(ctx, "u2", []model.RankChange{{BookID: "a", To: 5}})
		})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("update and delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		b := book("a", "u1", 1, base)
		require.NoError(t, s.Update(ctx, func(tx repository.Tx) error { return tx.InsertBook(ctx, b) }))

		b.Title = "renamed"
		b.Status = model.StatusReading
		b.Year = nil
		require.NoError(t, s.Update(ctx, func(tx repository.Tx) error { return tx.UpdateBook(ctx, b) }))
		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			got, err := tx.GetBook(ctx, "a")
			require.NoError(t, err)
			assert.Equal(t, "renamed", got.Title)
			assert.Equal(t, model.StatusReading, got.Status)
			assert.Nil(t, got.Year)
			return nil
		}))

		require.NoError(t, s.Update(ctx, func(tx repository.Tx) error { return tx.DeleteBook(ctx, "a") }))
		err := s.Update(ctx, func(tx repository.Tx) error { return tx.DeleteBook(ctx, "a") })
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("formulas", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		empty := model.WeightTable{}
		cfg := model.FormulaConfig{
			Category: &empty,
			Year: &model.YearWeights{Ranges: []model.YearRange{
				{Max: model.IntPtr(2005), Weight: 4},
			}},
		}

		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			got, err := tx.GetFormula(ctx, "u1")
			assert.Nil(t, got)
			return err
		}))

		require.NoError(t, s.Update(ctx, func(tx repository.Tx) error { return tx.PutFormula(ctx, "u1", cfg) }))
		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			got, err := tx.GetFormula(ctx, "u1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, cfg, *got)
			return nil
		}))

		require.NoError(t, s.Update(ctx, func(tx repository.Tx) error { return tx.DeleteFormula(ctx, "u1") }))
		require.NoError(t, s.View(ctx, func(tx repository.Tx) error {
			got, err := tx.GetFormula(ctx, "u1")
			assert.Nil(t, got)
			return err
		}))
	})
}

func ids(books []model.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.ID
	}
	return out
}
