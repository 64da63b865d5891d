package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	service "github.com/okian/readq/internal/app"
	model "github.com/okian/readq/internal/domain/model"
	"github.com/okian/readq/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func newTestService(opts ...service.Option) *service.Service {
	var seq int
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	base := []service.Option{
		service.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("b%d", seq)
		}),
		service.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	}
	return service.New(append(base, opts...)...)
}

func addBooks(ctx context.Context, svc *service.Service, user string, titles ...string) map[string]string {
	ids := make(map[string]string, len(titles))
	for _, title := range titles {
		b, err := svc.CreateBook(ctx, user, types.BookInput{Title: title})
		So(err, ShouldBeNil)
		ids[title] = b.ID
	}
	return ids
}

// queueRanks maps titles to ranks of user's ranked queue.
func queueRanks(ctx context.Context, svc *service.Service, user string) map[string]int {
	books, err := svc.ListQueue(ctx, user)
	So(err, ShouldBeNil)
	out := make(map[string]int, len(books))
	for _, b := range books {
		if b.Ranked() {
			out[b.Title] = *b.Rank
		}
	}
	return out
}

func TestService_CreateAndDelete(t *testing.T) {
	Convey("Given a queue A=1 B=2 C=3", t, func() {
		ctx := context.Background()
		svc := newTestService()
		ids := addBooks(ctx, svc, "alice", "A", "B", "C")
		So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"A": 1, "B": 2, "C": 3})

		Convey("When D is inserted at rank 2", func() {
			d, err := svc.CreateBook(ctx, "alice", types.BookInput{Title: "D", Rank: model.IntPtr(2)})
			So(err, ShouldBeNil)
			So(*d.Rank, ShouldEqual, 2)

			Convey("Then later books shift back", func() {
				So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"A": 1, "D": 2, "B": 3, "C": 4})
			})

			Convey("And deleting B closes the gap", func() {
				So(svc.DeleteBook(ctx, "alice", ids["B"]), ShouldBeNil)
				So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"A": 1, "D": 2, "C": 3})

				_, err := svc.GetBook(ctx, "alice", ids["B"])
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a finished book is created", func() {
			b, err := svc.CreateBook(ctx, "alice", types.BookInput{Title: "Done", Status: model.StatusFinished, Availability: "physical"})

			Convey("Then it holds no rank and scores zero", func() {
				So(err, ShouldBeNil)
				So(b.Rank, ShouldBeNil)
				So(b.Score, ShouldEqual, 0.0)
				So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"A": 1, "B": 2, "C": 3})
			})

			Convey("Then it is listed after the queue", func() {
				all, err := svc.ListBooks(ctx, "alice")
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 4)
				So(all[3].Title, ShouldEqual, "Done")
			})
		})

		Convey("When the input is invalid", func() {
			_, err := svc.CreateBook(ctx, "alice", types.BookInput{Title: "  "})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = svc.CreateBook(ctx, "alice", types.BookInput{Title: "X", Status: "lent"})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = svc.CreateBook(ctx, "alice", types.BookInput{Title: "X", Rating: model.IntPtr(6)})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			_, err = svc.CreateBook(ctx, "", types.BookInput{Title: "X"})
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)

			So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"A": 1, "B": 2, "C": 3})
		})

		Convey("When a category without class is given", func() {
			b, err := svc.CreateBook(ctx, "alice", types.BookInput{Title: "E", Category: "Nothing Known"})

			Convey("Then the default class is inferred", func() {
				So(err, ShouldBeNil)
				So(b.Class, ShouldEqual, "Personal Development")
			})
		})
	})
}

func TestService_Move(t *testing.T) {
	Convey("Given a queue A=1 B=2 C=3 D=4", t, func() {
		ctx := context.Background()
		svc := newTestService()
		ids := addBooks(ctx, svc, "alice", "A", "B", "C", "D")

		Convey("When D moves to rank 2", func() {
			moved, err := svc.MoveBook(ctx, "alice", ids["D"], 2)

			Convey("Then B and C shift back", func() {
				So(err, ShouldBeNil)
				So(*moved.Rank, ShouldEqual, 2)
				So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"A": 1, "D": 2, "B": 3, "C": 4})
			})
		})

		Convey("When A moves to the back", func() {
			_, err := svc.MoveBook(ctx, "alice", ids["A"], 4)
			So(err, ShouldBeNil)
			So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"B": 1, "C": 2, "D": 3, "A": 4})
		})

		Convey("When the target rank is held by nobody", func() {
			_, err := svc.MoveBook(ctx, "alice", ids["A"], 9)

			Convey("Then the move fails as an inconsistent rank and nothing changes", func() {
				So(errors.Is(err, service.ErrInconsistentRank), ShouldBeTrue)
				So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"A": 1, "B": 2, "C": 3, "D": 4})
			})
		})

		Convey("When the rank is below one", func() {
			_, err := svc.MoveBook(ctx, "alice", ids["A"], 0)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When the book position is looked up", func() {
			b, err := svc.BookAt(ctx, "alice", 3)
			So(err, ShouldBeNil)
			So(b.Title, ShouldEqual, "C")

			_, err = svc.BookAt(ctx, "alice", 5)
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)

			_, err = svc.BookAt(ctx, "alice", 0)
			So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
		})
	})
}

func TestService_FinishAndResume(t *testing.T) {
	Convey("Given a queue A=1 B=2 C=3", t, func() {
		ctx := context.Background()
		svc := newTestService()
		ids := addBooks(ctx, svc, "alice", "A", "B", "C")
		finished := model.StatusFinished
		unread := model.StatusUnread

		Convey("When B is finished", func() {
			b, err := svc.UpdateBook(ctx, "alice", ids["B"], types.BookPatch{Status: &finished})
			So(err, ShouldBeNil)

			Convey("Then its rank is cleared and the gap closes", func() {
				So(b.Rank, ShouldBeNil)
				So(b.Score, ShouldEqual, 0.0)
				So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"A": 1, "C": 2})
			})

			Convey("And resuming it without a rank appends at 3", func() {
				b, err := svc.UpdateBook(ctx, "alice", ids["B"], types.BookPatch{Status: &unread})
				So(err, ShouldBeNil)
				So(*b.Rank, ShouldEqual, 3)
				So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"A": 1, "C": 2, "B": 3})
			})

			Convey("And resuming it at rank 1 shifts the queue", func() {
				_, err := svc.UpdateBook(ctx, "alice", ids["B"], types.BookPatch{Status: &unread, Rank: model.IntPtr(1)})
				So(err, ShouldBeNil)
				So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"B": 1, "A": 2, "C": 3})
			})

			Convey("And giving it a rank while finished is rejected", func() {
				_, err := svc.MoveBook(ctx, "alice", ids["B"], 1)
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
			})
		})

		Convey("When only descriptive fields change", func() {
			title := "A, revised"
			b, err := svc.UpdateBook(ctx, "alice", ids["A"], types.BookPatch{Title: &title})

			Convey("Then the rank is kept", func() {
				So(err, ShouldBeNil)
				So(b.Title, ShouldEqual, title)
				So(*b.Rank, ShouldEqual, 1)
			})
		})

		Convey("When a scoring attribute changes", func() {
			avail := "physical"
			b, err := svc.UpdateBook(ctx, "alice", ids["C"], types.BookPatch{Availability: &avail})

			Convey("Then the score is recomputed", func() {
				So(err, ShouldBeNil)
				So(b.Score, ShouldEqual, 2.0)
			})
		})
	})
}

func TestService_Ownership(t *testing.T) {
	Convey("Given books of two users", t, func() {
		ctx := context.Background()
		svc := newTestService()
		alice := addBooks(ctx, svc, "alice", "A1", "A2")
		addBooks(ctx, svc, "bob", "B1")

		Convey("When bob touches alice's book", func() {
			_, getErr := svc.GetBook(ctx, "bob", alice["A1"])
			_, moveErr := svc.MoveBook(ctx, "bob", alice["A2"], 1)
			delErr := svc.DeleteBook(ctx, "bob", alice["A1"])

			Convey("Then every operation is rejected without changes", func() {
				So(errors.Is(getErr, service.ErrOwnership), ShouldBeTrue)
				So(errors.Is(moveErr, service.ErrOwnership), ShouldBeTrue)
				So(errors.Is(delErr, service.ErrOwnership), ShouldBeTrue)
				So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"A1": 1, "A2": 2})
				So(queueRanks(ctx, svc, "bob"), ShouldResemble, map[string]int{"B1": 1})
			})
		})

		Convey("When a book does not exist", func() {
			err := svc.DeleteBook(ctx, "alice", "missing")
			So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestService_Reorder(t *testing.T) {
	Convey("Given two users and a finished book", t, func() {
		ctx := context.Background()
		svc := newTestService()
		alice := addBooks(ctx, svc, "alice", "A", "B", "C")
		bob := addBooks(ctx, svc, "bob", "X")
		finished := model.StatusFinished
		_, err := svc.UpdateBook(ctx, "alice", alice["C"], types.BookPatch{Status: &finished})
		So(err, ShouldBeNil)

		Convey("When alice submits a mixed batch", func() {
			res, err := svc.Reorder(ctx, "alice", []types.RankAssignment{
				{BookID: alice["A"], Rank: 2},
				{BookID: alice["B"], Rank: 1},
				{BookID: bob["X"], Rank: 1},
				{BookID: "missing", Rank: 3},
				{BookID: alice["C"], Rank: 3},
				{BookID: alice["A"], Rank: 0},
			})

			Convey("Then valid pairs apply and the rest are skipped", func() {
				So(err, ShouldBeNil)
				So(res.Applied, ShouldEqual, 2)
				So(res.Skipped, ShouldResemble, []types.SkippedAssignment{
					{BookID: bob["X"], Reason: types.SkipNotOwned},
					{BookID: "missing", Reason: types.SkipNotFound},
					{BookID: alice["C"], Reason: types.SkipFinished},
					{BookID: alice["A"], Reason: types.SkipInvalidRank},
				})
				So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"B": 1, "A": 2})
				So(queueRanks(ctx, svc, "bob"), ShouldResemble, map[string]int{"X": 1})
			})
		})

		Convey("When the batch leaves duplicates", func() {
			_, err := svc.Reorder(ctx, "alice", []types.RankAssignment{{BookID: alice["B"], Rank: 1}})
			So(err, ShouldBeNil)

			Convey("Then the audit reports them and resequencing repairs them", func() {
				report, err := svc.Audit(ctx, "alice")
				So(err, ShouldBeNil)
				So(report.Consistent, ShouldBeFalse)
				So(report.Duplicates, ShouldResemble, []int{1})

				res, err := svc.Resequence(ctx, "alice")
				So(err, ShouldBeNil)
				So(res.Ranked, ShouldEqual, 2)
				So(res.Changed, ShouldEqual, 1)
				So(queueRanks(ctx, svc, "alice"), ShouldResemble, map[string]int{"A": 1, "B": 2})

				report, err = svc.Audit(ctx, "alice")
				So(err, ShouldBeNil)
				So(report.Consistent, ShouldBeTrue)
			})
		})
	})
}

func TestService_QueueStats(t *testing.T) {
	Convey("Given four queued books scored 10, 20, 30 and 40", t, func() {
		ctx := context.Background()
		svc := newTestService()
		_, err := svc.SetFormula(ctx, "alice", model.FormulaConfig{
			Category: &model.WeightTable{
				{Label: "Alpha", Value: 10},
				{Label: "Bravo", Value: 20},
				{Label: "Charlie", Value: 30},
				{Label: "Delta", Value: 40},
			},
		})
		So(err, ShouldBeNil)
		for _, c := range []string{"Alpha", "Bravo", "Charlie", "Delta"} {
			_, err := svc.CreateBook(ctx, "alice", types.BookInput{Title: c, Category: c})
			So(err, ShouldBeNil)
		}

		Convey("When stats are requested", func() {
			q, err := svc.QueueStats(ctx, "alice")

			Convey("Then each quarter holds one book", func() {
				So(err, ShouldBeNil)
				So(q.Q1, ShouldEqual, 10.0)
				So(q.Q2, ShouldEqual, 20.0)
				So(q.Q3, ShouldEqual, 30.0)
				So(q.Q4, ShouldEqual, 40.0)
				So(q.Total, ShouldEqual, 4)
			})
		})

		Convey("When the user has no books", func() {
			q, err := svc.QueueStats(ctx, "nobody")
			So(err, ShouldBeNil)
			So(q.Total, ShouldEqual, 0)
			So(q.Q1, ShouldEqual, 0.0)
		})
	})
}
