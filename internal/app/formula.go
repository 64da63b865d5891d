package service

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	repository "github.com/okian/readq/internal/adapters/repository"
	model "github.com/okian/readq/internal/domain/model"
	"github.com/okian/readq/internal/domain/types"
	"github.com/okian/readq/pkg/logger"
	"github.com/okian/readq/pkg/metrics"
)

// GetFormula returns user's stored formula, or the defaults when none is
// stored.
func (s *Service) GetFormula(ctx context.Context, user string) (types.FormulaView, error) {
	var cfg *model.FormulaConfig
	err := s.read(ctx, func(tx repository.Tx) error {
		var err error
		cfg, err = tx.GetFormula(ctx, user)
		return err
	})
	if err != nil {
		return types.FormulaView{}, err
	}
	if cfg == nil {
		return types.FormulaView{Formula: s.calculator.Defaults().Formula}, nil
	}
	return types.FormulaView{Custom: true, Formula: *cfg}, nil
}

// SetFormula stores cfg as user's formula. When it differs from the stored
// one every book of the user is rescored in the same transaction.
func (s *Service) SetFormula(ctx context.Context, user string, cfg model.FormulaConfig) (types.FormulaUpdate, error) {
	if strings.TrimSpace(user) == "" {
		return types.FormulaUpdate{}, invalid("user is required")
	}

	res := types.FormulaUpdate{Custom: true}
	err := s.write(ctx, user, func(tx repository.Tx) error {
		prev, err := tx.GetFormula(ctx, user)
		if err != nil {
			return err
		}
		if prev != nil && reflect.DeepEqual(*prev, cfg) {
			return nil
		}
		if err := tx.PutFormula(ctx, user, cfg); err != nil {
			return err
		}
		res.Rescored, err = s.rescore(ctx, tx, user, &cfg)
		return err
	})
	if err != nil {
		return types.FormulaUpdate{}, fmt.Errorf("set formula: %w", err)
	}

	metrics.RecordFormulaUpdate()
	s.logger.Info(ctx, "formula updated",
		logger.String("userID", user),
		logger.Int("rescored", res.Rescored),
	)
	return res, nil
}

// ResetFormula drops user's formula so the defaults apply again.
func (s *Service) ResetFormula(ctx context.Context, user string) (types.FormulaUpdate, error) {
	var res types.FormulaUpdate
	err := s.write(ctx, user, func(tx repository.Tx) error {
		prev, err := tx.GetFormula(ctx, user)
		if err != nil || prev == nil {
			return err
		}
		if err := tx.DeleteFormula(ctx, user); err != nil {
			return err
		}
		res.Rescored, err = s.rescore(ctx, tx, user, nil)
		return err
	})
	if err != nil {
		return types.FormulaUpdate{}, fmt.Errorf("reset formula: %w", err)
	}

	metrics.RecordFormulaUpdate()
	s.logger.Info(ctx, "formula reset",
		logger.String("userID", user),
		logger.Int("rescored", res.Rescored),
	)
	return res, nil
}

// RescoreUser recomputes every score of user under the active formula and
// returns how many changed.
func (s *Service) RescoreUser(ctx context.Context, user string) (int, error) {
	var n int
	err := s.write(ctx, user, func(tx repository.Tx) error {
		cfg, err := tx.GetFormula(ctx, user)
		if err != nil {
			return err
		}
		n, err = s.rescore(ctx, tx, user, cfg)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("rescore %s: %w", user, err)
	}
	return n, nil
}

func (s *Service) rescore(ctx context.Context, tx repository.Tx, user string, cfg *model.FormulaConfig) (int, error) {
	books, err := tx.ListBooks(ctx, user)
	if err != nil {
		return 0, err
	}
	scores := make(map[string]float64)
	for _, b := range books {
		if score := s.calculator.Compute(b, cfg); score != b.Score {
			scores[b.ID] = score
		}
	}
	metrics.RecordScoreComputations(len(books))
	if len(scores) == 0 {
		return 0, nil
	}
	if err := tx.UpdateScores(ctx, user, scores); err != nil {
		return 0, err
	}
	metrics.RecordBooksRescored(len(scores))
	return len(scores), nil
}
