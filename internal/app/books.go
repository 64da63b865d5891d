package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	repository "github.com/okian/readq/internal/adapters/repository"
	model "github.com/okian/readq/internal/domain/model"
	"github.com/okian/readq/internal/domain/ordering"
	"github.com/okian/readq/internal/domain/scoring"
	"github.com/okian/readq/internal/domain/stats"
	"github.com/okian/readq/internal/domain/types"
	"github.com/okian/readq/pkg/logger"
	"github.com/okian/readq/pkg/metrics"
)

// CreateBook stores a new book. A non-finished book is inserted at the
// requested rank, or appended when none is given. A finished book holds no
// rank.
func (s *Service) CreateBook(ctx context.Context, user string, in types.BookInput) (model.Book, error) {
	if err := validateInput(user, in); err != nil {
		return model.Book{}, err
	}

	now := s.now()
	book := bookFromInput(in)
	book.ID = s.newID()
	book.UserID = user
	book.CreatedAt = now
	book.UpdatedAt = now
	s.inferClass(&book)

	err := s.write(ctx, user, func(tx repository.Tx) error {
		cfg, err := tx.GetFormula(ctx, user)
		if err != nil {
			return err
		}
		book.Score = s.calculator.Compute(book, cfg)
		metrics.RecordScoreComputations(1)

		if !book.Status.Finished() {
			ranked, err := tx.ListRanked(ctx, user)
			if err != nil {
				return err
			}
			target := 0
			if in.Rank != nil {
				target = *in.Rank
			}
			rank, changes := ordering.PlanInsert(ordering.Slots(ranked), target)
			if err := s.applyRanks(ctx, tx, user, "insert", changes); err != nil {
				return err
			}
			book.Rank = model.IntPtr(rank)
		}
		return tx.InsertBook(ctx, book)
	})
	if err != nil {
		return model.Book{}, fmt.Errorf("create book: %w", err)
	}

	s.logger.Debug(ctx, "book created",
		logger.String("userID", user),
		logger.String("bookID", book.ID),
		logger.Int("rank", book.RankValue()),
		logger.Float64("score", book.Score),
	)
	return book, nil
}

// GetBook returns one of user's books.
func (s *Service) GetBook(ctx context.Context, user, id string) (model.Book, error) {
	var book model.Book
	err := s.read(ctx, func(tx repository.Tx) error {
		var err error
		book, err = owned(ctx, tx, user, id)
		return err
	})
	return book, err
}

// UpdateBook applies patch to one of user's books. Finishing a book closes
// the gap its rank leaves; resuming one inserts it again, at patch.Rank or
// at the tail. A rank change on a queued book moves it.
func (s *Service) UpdateBook(ctx context.Context, user, id string, patch types.BookPatch) (model.Book, error) {
	if err := validatePatch(user, patch); err != nil {
		return model.Book{}, err
	}

	var book model.Book
	err := s.write(ctx, user, func(tx repository.Tx) error {
		cur, err := owned(ctx, tx, user, id)
		if err != nil {
			return err
		}
		next := applyPatch(cur, patch)
		if patch.Class == nil && patch.Category != nil && next.Class == "" {
			s.inferClass(&next)
		}

		changes, err := s.planUpdate(ctx, tx, cur, &next, patch.Rank)
		if err != nil {
			return err
		}
		if op := rankOp(cur, next); op != "" {
			if err := s.applyRanks(ctx, tx, user, op, changes); err != nil {
				return err
			}
		}

		cfg, err := tx.GetFormula(ctx, user)
		if err != nil {
			return err
		}
		next.Score = s.calculator.Compute(next, cfg)
		metrics.RecordScoreComputations(1)
		next.UpdatedAt = s.now()

		if err := tx.UpdateBook(ctx, next); err != nil {
			return err
		}
		book = next
		return nil
	})
	if err != nil {
		return model.Book{}, fmt.Errorf("update book: %w", err)
	}
	return book, nil
}

// MoveBook gives one of user's books a new rank.
func (s *Service) MoveBook(ctx context.Context, user, id string, rank int) (model.Book, error) {
	return s.UpdateBook(ctx, user, id, types.BookPatch{Rank: &rank})
}

// planUpdate returns the sibling rank changes implied by turning cur into
// next and sets next.Rank.
func (s *Service) planUpdate(ctx context.Context, tx repository.Tx, cur model.Book, next *model.Book, target *int) ([]model.RankChange, error) {
	wasFinished, nowFinished := cur.Status.Finished(), next.Status.Finished()
	if nowFinished && target != nil {
		return nil, invalid("a finished book cannot hold a rank")
	}
	if wasFinished && nowFinished {
		next.Rank = nil
		return nil, nil
	}
	if !wasFinished && !nowFinished && (target == nil || *target == cur.RankValue()) {
		return nil, nil
	}

	ranked, err := tx.ListRanked(ctx, cur.UserID)
	if err != nil {
		return nil, err
	}
	slots := ordering.Slots(ranked)

	switch {
	case nowFinished:
		next.Rank = nil
		return ordering.PlanRemove(slots, cur.ID), nil
	case wasFinished || !cur.Ranked():
		to := 0
		if target != nil {
			to = *target
		}
		rank, changes := ordering.PlanInsert(slots, to)
		next.Rank = model.IntPtr(rank)
		return changes, nil
	default:
		changes, err := ordering.PlanMove(slots, cur.ID, *target)
		if err != nil {
			if errors.Is(err, ordering.ErrRankNotHeld) {
				metrics.RecordInconsistentRank()
				s.logger.Error(ctx, "move references a rank nobody holds",
					logger.String("userID", cur.UserID),
					logger.String("bookID", cur.ID),
					logger.Int("from", cur.RankValue()),
					logger.Int("to", *target),
				)
				return nil, fmt.Errorf("%w: %w", ErrInconsistentRank, err)
			}
			return nil, err
		}
		next.Rank = model.IntPtr(*target)
		return changes, nil
	}
}

func rankOp(cur, next model.Book) string {
	switch {
	case next.Status.Finished() && !cur.Status.Finished():
		return "finish"
	case cur.Status.Finished() && !next.Status.Finished():
		return "resume"
	case next.Status.Finished() || cur.RankValue() == next.RankValue():
		return ""
	case !cur.Ranked():
		return "insert"
	}
	return "move"
}

// DeleteBook removes one of user's books and closes its rank gap.
func (s *Service) DeleteBook(ctx context.Context, user, id string) error {
	err := s.write(ctx, user, func(tx repository.Tx) error {
		if _, err := owned(ctx, tx, user, id); err != nil {
			return err
		}
		ranked, err := tx.ListRanked(ctx, user)
		if err != nil {
			return err
		}
		changes := ordering.PlanRemove(ordering.Slots(ranked), id)
		if err := tx.DeleteBook(ctx, id); err != nil {
			return err
		}
		return s.applyRanks(ctx, tx, user, "delete", changes)
	})
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	return nil
}

// Reorder writes caller-supplied ranks as given. Pairs naming a missing
// book, another user's book, a finished book or a rank below one are
// skipped and reported; the rest are applied together. The resulting set
// is not checked for gaps or duplicates.
func (s *Service) Reorder(ctx context.Context, user string, pairs []types.RankAssignment) (types.ReorderResult, error) {
	res := types.ReorderResult{Skipped: []types.SkippedAssignment{}}
	if strings.TrimSpace(user) == "" {
		return res, invalid("user is required")
	}

	err := s.write(ctx, user, func(tx repository.Tx) error {
		res = types.ReorderResult{Skipped: []types.SkippedAssignment{}}
		changes := make([]model.RankChange, 0, len(pairs))
		for _, p := range pairs {
			reason, from, err := checkAssignment(ctx, tx, user, p)
			if err != nil {
				return err
			}
			if reason != "" {
				res.Skipped = append(res.Skipped, types.SkippedAssignment{BookID: p.BookID, Reason: reason})
				continue
			}
			changes = append(changes, model.RankChange{BookID: p.BookID, From: from, To: p.Rank})
		}
		if err := tx.ApplyRanks(ctx, user, changes); err != nil {
			return err
		}
		res.Applied = len(changes)
		return nil
	})
	if err != nil {
		return types.ReorderResult{Skipped: []types.SkippedAssignment{}}, fmt.Errorf("reorder: %w", err)
	}

	for _, sk := range res.Skipped {
		metrics.RecordReorderSkipped(sk.Reason)
		s.logger.Warn(ctx, "reorder pair skipped",
			logger.String("userID", user),
			logger.String("bookID", sk.BookID),
			logger.String("reason", sk.Reason),
		)
	}
	metrics.RecordRankOperation("reorder", res.Applied)
	s.logger.Debug(ctx, "ranks reordered",
		logger.String("userID", user),
		logger.Int("applied", res.Applied),
		logger.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

func checkAssignment(ctx context.Context, tx repository.Tx, user string, p types.RankAssignment) (string, int, error) {
	if p.Rank < 1 {
		return types.SkipInvalidRank, 0, nil
	}
	b, err := tx.GetBook(ctx, p.BookID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return types.SkipNotFound, 0, nil
	case err != nil:
		return "", 0, err
	case b.UserID != user:
		return types.SkipNotOwned, 0, nil
	case b.Status.Finished():
		return types.SkipFinished, 0, nil
	}
	return "", b.RankValue(), nil
}

// ListQueue returns user's non-finished books, ranked ones by rank first.
func (s *Service) ListQueue(ctx context.Context, user string) ([]model.Book, error) {
	all, err := s.listBooks(ctx, user)
	if err != nil {
		return nil, err
	}
	queue := make([]model.Book, 0, len(all))
	for _, b := range all {
		if !b.Status.Finished() {
			queue = append(queue, b)
		}
	}
	return queue, nil
}

// ListBooks returns all of user's books: the queue, then finished books.
func (s *Service) ListBooks(ctx context.Context, user string) ([]model.Book, error) {
	all, err := s.listBooks(ctx, user)
	if err != nil {
		return nil, err
	}
	out := make([]model.Book, 0, len(all))
	var finished []model.Book
	for _, b := range all {
		if b.Status.Finished() {
			finished = append(finished, b)
			continue
		}
		out = append(out, b)
	}
	return append(out, finished...), nil
}

func (s *Service) listBooks(ctx context.Context, user string) ([]model.Book, error) {
	var books []model.Book
	err := s.read(ctx, func(tx repository.Tx) error {
		var err error
		books, err = tx.ListBooks(ctx, user)
		return err
	})
	return books, err
}

// BookAt returns the non-finished book holding rank n.
func (s *Service) BookAt(ctx context.Context, user string, n int) (model.Book, error) {
	if n < 1 {
		return model.Book{}, invalid("position must be at least 1, got %d", n)
	}
	var book model.Book
	err := s.read(ctx, func(tx repository.Tx) error {
		var err error
		book, err = tx.BookAtRank(ctx, user, n)
		return err
	})
	return book, err
}

// QueueStats returns the mean score of each quarter of user's ranked queue.
func (s *Service) QueueStats(ctx context.Context, user string) (stats.Quartiles, error) {
	var scores []float64
	err := s.read(ctx, func(tx repository.Tx) error {
		ranked, err := tx.ListRanked(ctx, user)
		if err != nil {
			return err
		}
		scores = make([]float64, len(ranked))
		for i, b := range ranked {
			scores[i] = b.Score
		}
		return nil
	})
	if err != nil {
		return stats.Quartiles{}, err
	}
	return stats.ComputeQuartiles(scores), nil
}

// PreviewScore scores in under user's active formula without storing it.
func (s *Service) PreviewScore(ctx context.Context, user string, in types.BookInput) (scoring.Breakdown, error) {
	if strings.TrimSpace(user) == "" {
		return scoring.Breakdown{}, invalid("user is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		return scoring.Breakdown{}, invalid("unknown status %q", in.Status)
	}
	book := bookFromInput(in)
	s.inferClass(&book)

	var cfg *model.FormulaConfig
	err := s.read(ctx, func(tx repository.Tx) error {
		var err error
		cfg, err = tx.GetFormula(ctx, user)
		return err
	})
	if err != nil {
		return scoring.Breakdown{}, err
	}
	metrics.RecordScoreComputations(1)
	return s.calculator.Explain(book, cfg), nil
}

// applyRanks persists sibling rank changes and records them.
func (s *Service) applyRanks(ctx context.Context, tx repository.Tx, user, op string, changes []model.RankChange) error {
	if len(changes) > 0 {
		if err := tx.ApplyRanks(ctx, user, changes); err != nil {
			return err
		}
	}
	metrics.RecordRankOperation(op, len(changes))
	s.logger.Debug(ctx, "ranks shifted",
		logger.String("userID", user),
		logger.String("op", op),
		logger.Int("shifted", len(changes)),
	)
	return nil
}

func (s *Service) inferClass(b *model.Book) {
	if b.Class == "" && b.Category != "" {
		b.Class = s.calculator.ClassOf(b.Category)
	}
}

func validateInput(user string, in types.BookInput) error {
	switch {
	case strings.TrimSpace(user) == "":
		return invalid("user is required")
	case strings.TrimSpace(in.Title) == "":
		return invalid("title is required")
	case in.Status != "" && !in.Status.Valid():
		return invalid("unknown status %q", in.Status)
	case in.Rank != nil && *in.Rank < 0:
		return invalid("rank must not be negative")
	case in.Rank != nil && *in.Rank > 0 && in.Status == model.StatusFinished:
		return invalid("a finished book cannot hold a rank")
	case in.Rating != nil && (*in.Rating < 1 || *in.Rating > 5):
		return invalid("rating must be between 1 and 5")
	}
	return nil
}

func validatePatch(user string, p types.BookPatch) error {
	switch {
	case strings.TrimSpace(user) == "":
		return invalid("user is required")
	case p.Title != nil && strings.TrimSpace(*p.Title) == "":
		return invalid("title must not be empty")
	case p.Status != nil && !p.Status.Valid():
		return invalid("unknown status %q", *p.Status)
	case p.Rank != nil && *p.Rank < 1:
		return invalid("rank must be at least 1")
	case p.Rating != nil && (*p.Rating < 1 || *p.Rating > 5):
		return invalid("rating must be between 1 and 5")
	}
	return nil
}

func bookFromInput(in types.BookInput) model.Book {
	status := in.Status
	if status == "" {
		status = model.StatusUnread
	}
	return model.Book{
		Title:         strings.TrimSpace(in.Title),
		OriginalTitle: in.OriginalTitle,
		Author:        in.Author,
		Status:        status,
		Type:          in.Type,
		Availability:  in.Availability,
		Priority:      in.Priority,
		Year:          in.Year,
		Class:         in.Class,
		Category:      in.Category,
		Rating:        in.Rating,
		DateRead:      in.DateRead,
		Motivation:    in.Motivation,
		CoverURL:      in.CoverURL,
	}
}

func applyPatch(b model.Book, p types.BookPatch) model.Book {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	if p.Title != nil {
		b.Title = strings.TrimSpace(*p.Title)
	}
	setString(&b.OriginalTitle, p.OriginalTitle)
	setString(&b.Author, p.Author)
	setString(&b.Type, p.Type)
	setString(&b.Availability, p.Availability)
	setString(&b.Priority, p.Priority)
	setString(&b.Class, p.Class)
	setString(&b.Category, p.Category)
	setString(&b.DateRead, p.DateRead)
	setString(&b.Motivation, p.Motivation)
	setString(&b.CoverURL, p.CoverURL)
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.Year != nil {
		b.Year = model.IntPtr(*p.Year)
	}
	if p.Rating != nil {
		b.Rating = model.IntPtr(*p.Rating)
	}
	return b
}
