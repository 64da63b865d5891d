// Package stats computes read-side summaries of a ranked queue.
package stats

import "math"

// Quartiles holds the mean score of each quarter of a ranked queue.
type Quartiles struct {
	Q1    float64 `json:"q1"`
	Q2    float64 `json:"q2"`
	Q3    float64 `json:"q3"`
	Q4    float64 `json:"q4"`
	Total int     `json:"total"`
}

// ComputeQuartiles splits scores, already in rank order, into four
// contiguous segments at truncated quarter boundaries and averages each one,
// rounded to one decimal. The last segment absorbs the remainder. When a
// boundary pair collapses to the same index the segment is that single
// element.
func ComputeQuartiles(scores []float64) Quartiles {
	total := len(scores)
	if total == 0 {
		return Quartiles{}
	}
	size := float64(total) / 4
	return Quartiles{
		Q1:    segmentMean(scores, 0, size),
		Q2:    segmentMean(scores, size, size*2),
		Q3:    segmentMean(scores, size*2, size*3),
		Q4:    segmentMean(scores, size*3, float64(total)),
		Total: total,
	}
}

func segmentMean(scores []float64, from, to float64) float64 {
	start, end := int(from), int(to)
	if start >= len(scores) {
		return 0
	}
	var seg []float64
	if end > start {
		seg = scores[start:end]
	} else {
		seg = scores[start : start+1]
	}
	var sum float64
	for _, s := range seg {
		sum += s
	}
	return Round1(sum / float64(len(seg)))
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
