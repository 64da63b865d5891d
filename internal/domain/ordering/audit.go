package ordering

import (
	"sort"

	model "github.com/okian/readq/internal/domain/model"
)

// Report describes how far one user's ranks are from 1..K.
type Report struct {
	Ranked           int      `json:"ranked"`
	MaxRank          int      `json:"max_rank"`
	Duplicates       []int    `json:"duplicates"`
	Gaps             []int    `json:"gaps"`
	FinishedWithRank []string `json:"finished_with_rank"`
	Consistent       bool     `json:"consistent"`
}

// Audit inspects a user's books without changing them.
func Audit(books []model.Book) Report {
	counts := make(map[int]int)
	r := Report{Duplicates: []int{}, Gaps: []int{}, FinishedWithRank: []string{}}
	for _, b := range books {
		if b.Rank == nil {
			continue
		}
		if b.Status.Finished() {
			r.FinishedWithRank = append(r.FinishedWithRank, b.ID)
			continue
		}
		r.Ranked++
		counts[*b.Rank]++
		if *b.Rank > r.MaxRank {
			r.MaxRank = *b.Rank
		}
	}
	for rank, n := range counts {
		if n > 1 {
			r.Duplicates = append(r.Duplicates, rank)
		}
	}
	sort.Ints(r.Duplicates)
	for rank := 1; rank <= r.MaxRank; rank++ {
		if counts[rank] == 0 {
			r.Gaps = append(r.Gaps, rank)
		}
	}
	sort.Strings(r.FinishedWithRank)
	r.Consistent = r.Ranked == r.MaxRank && len(r.Duplicates) == 0 && len(r.Gaps) == 0 && len(r.FinishedWithRank) == 0
	return r
}

// Dense reports whether slots hold exactly the ranks 1..len(slots).
func Dense(slots []Slot) bool {
	seen := make([]bool, len(slots)+1)
	for _, s := range slots {
		if s.Rank < 1 || s.Rank > len(slots) || seen[s.Rank] {
			return false
		}
		seen[s.Rank] = true
	}
	return true
}
