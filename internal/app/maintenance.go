package service

import (
	"context"
	"fmt"

	repository "github.com/okian/readq/internal/adapters/repository"
	model "github.com/okian/readq/internal/domain/model"
	"github.com/okian/readq/internal/domain/ordering"
	"github.com/okian/readq/internal/domain/types"
	"github.com/okian/readq/pkg/logger"
	"github.com/okian/readq/pkg/metrics"
)

// Resequence renumbers user's ranked, non-finished books to 1..K in their
// current order, breaking ties by creation time then id, and clears ranks
// left on finished books. It is the repair path for a broken queue.
func (s *Service) Resequence(ctx context.Context, user string) (types.ResequenceResult, error) {
	res := types.ResequenceResult{UserID: user}
	err := s.write(ctx, user, func(tx repository.Tx) error {
		books, err := tx.ListBooks(ctx, user)
		if err != nil {
			return err
		}

		created := make(map[string]model.Book, len(books))
		var changes []model.RankChange
		for _, b := range books {
			created[b.ID] = b
			if b.Status.Finished() && b.Ranked() {
				changes = append(changes, model.RankChange{BookID: b.ID, From: *b.Rank})
			}
		}

		slots := ordering.Slots(books)
		ordering.SortSlots(slots, func(a, b ordering.Slot) bool {
			ca, cb := created[a.ID].CreatedAt, created[b.ID].CreatedAt
			if !ca.Equal(cb) {
				return ca.Before(cb)
			}
			return a.ID < b.ID
		})
		changes = append(changes, ordering.PlanResequence(slots)...)

		res.Ranked = len(slots)
		res.Changed = len(changes)
		return s.applyRanks(ctx, tx, user, "resequence", changes)
	})
	if err != nil {
		return types.ResequenceResult{}, fmt.Errorf("resequence %s: %w", user, err)
	}

	if res.Changed > 0 {
		s.logger.Info(ctx, "queue resequenced",
			logger.String("userID", user),
			logger.Int("changed", res.Changed),
			logger.Int("ranked", res.Ranked),
		)
	}
	return res, nil
}

// ResequenceAll resequences every known user.
func (s *Service) ResequenceAll(ctx context.Context) ([]types.ResequenceResult, error) {
	users, err := s.Users(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.ResequenceResult, 0, len(users))
	for _, user := range users {
		res, err := s.Resequence(ctx, user)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Audit reports how far user's ranks are from 1..K without changing them.
func (s *Service) Audit(ctx context.Context, user string) (ordering.Report, error) {
	books, err := s.listBooks(ctx, user)
	if err != nil {
		return ordering.Report{}, err
	}
	report := ordering.Audit(books)
	if !report.Consistent {
		metrics.RecordInconsistentRank()
		s.logger.Warn(ctx, "inconsistent queue found",
			logger.String("userID", user),
			logger.Any("duplicates", report.Duplicates),
			logger.Any("gaps", report.Gaps),
			logger.Int("finishedWithRank", len(report.FinishedWithRank)),
		)
	}
	return report, nil
}
