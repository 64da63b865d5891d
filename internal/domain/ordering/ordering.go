// Package ordering plans the rank changes that keep one user's queue dense.
//
// Planners are pure: they take the ranked members of a single user's queue
// and return the sibling changes an operation implies. Callers persist the
// changes and the target book together in one transaction.
package ordering

import (
	"fmt"
	"sort"

	model "github.com/okian/readq/internal/domain/model"
)

// Slot is one ranked, non-finished member of a user's queue.
type Slot struct {
	ID   string
	Rank int
}

// Slots extracts the ranked, non-finished books as slots.
func Slots(books []model.Book) []Slot {
	out := make([]Slot, 0, len(books))
	for _, b := range books {
		if b.Status.Finished() || b.Rank == nil {
			continue
		}
		out = append(out, Slot{ID: b.ID, Rank: *b.Rank})
	}
	return out
}

// MaxRank returns the highest rank held, or 0.
func MaxRank(slots []Slot) int {
	highest := 0
	for _, s := range slots {
		if s.Rank > highest {
			highest = s.Rank
		}
	}
	return highest
}

// PlanInsert places a new member at target. A target of zero or less, or
// one beyond the tail, appends. It returns the assigned rank and the shifts
// of members at or after it.
func PlanInsert(slots []Slot, target int) (int, []model.RankChange) {
	tail := MaxRank(slots) + 1
	if target <= 0 || target >= tail {
		return tail, nil
	}
	var changes []model.RankChange
	for _, s := range slots {
		if s.Rank >= target {
			changes = append(changes, model.RankChange{BookID: s.ID, From: s.Rank, To: s.Rank + 1})
		}
	}
	return target, changes
}

// PlanRemove closes the gap left by id. It returns nil when id holds no rank.
// The change for id itself is not included.
func PlanRemove(slots []Slot, id string) []model.RankChange {
	self, ok := find(slots, id)
	if !ok {
		return nil
	}
	var changes []model.RankChange
	for _, s := range slots {
		if s.ID == id {
			continue
		}
		if s.Rank > self.Rank {
			changes = append(changes, model.RankChange{BookID: s.ID, From: s.Rank, To: s.Rank - 1})
		}
	}
	return changes
}

// PlanMove rotates the members between the current rank of id and to. Both
// ranks must be held; otherwise the queue is inconsistent and ErrRankNotHeld
// is returned. The change for id itself is not included.
func PlanMove(slots []Slot, id string, to int) ([]model.RankChange, error) {
	self, ok := find(slots, id)
	if !ok {
		return nil, fmt.Errorf("%w: book %s has no rank", ErrRankNotHeld, id)
	}
	if to == self.Rank {
		return nil, nil
	}
	if !held(slots, to) {
		return nil, fmt.Errorf("%w: rank %d", ErrRankNotHeld, to)
	}
	var changes []model.RankChange
	for _, s := range slots {
		if s.ID == id {
			continue
		}
		switch {
		case to > self.Rank && s.Rank > self.Rank && s.Rank <= to:
			changes = append(changes, model.RankChange{BookID: s.ID, From: s.Rank, To: s.Rank - 1})
		case to < self.Rank && s.Rank >= to && s.Rank < self.Rank:
			changes = append(changes, model.RankChange{BookID: s.ID, From: s.Rank, To: s.Rank + 1})
		}
	}
	return changes, nil
}

// PlanResequence renumbers slots to 1..K in the order given and returns the
// members whose rank differs.
func PlanResequence(slots []Slot) []model.RankChange {
	var changes []model.RankChange
	for i, s := range slots {
		if s.Rank != i+1 {
			changes = append(changes, model.RankChange{BookID: s.ID, From: s.Rank, To: i + 1})
		}
	}
	return changes
}

// SortSlots orders slots by rank, breaking ties with less.
func SortSlots(slots []Slot, less func(a, b Slot) bool) {
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Rank != slots[j].Rank {
			return slots[i].Rank < slots[j].Rank
		}
		if less == nil {
			return false
		}
		return less(slots[i], slots[j])
	})
}

// Apply returns a copy of slots with changes applied. Slots cleared to rank
// zero are dropped.
func Apply(slots []Slot, changes []model.RankChange) []Slot {
	next := make(map[string]int, len(changes))
	for _, c := range changes {
		next[c.BookID] = c.To
	}
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if to, ok := next[s.ID]; ok {
			if to == 0 {
				continue
			}
			s.Rank = to
		}
		out = append(out, s)
	}
	return out
}

func find(slots []Slot, id string) (Slot, bool) {
	for _, s := range slots {
		if s.ID == id {
			return s, true
		}
	}
	return Slot{}, false
}

func held(slots []Slot, rank int) bool {
	for _, s := range slots {
		if s.Rank == rank {
			return true
		}
	}
	return false
}
