package stats

import "github.com/conorfennell/knolstudy/internal/domain"

// Summary is the outcome of a study session.
type Summary struct {
	TotalCards     int     `json:"totalCards"`
	AverageQuality float64 `json:"averageQuality"`
	TotalTimeMs    int64   `json:"totalTimeMs"`
}

// Aggregate folds a session's reviews into a Summary.
// An empty review list yields a zero average rather than NaN.
func Aggregate(reviews []domain.ReviewRecord) Summary {
	var s Summary
	var qualitySum int
	for _, r := range reviews {
		qualitySum += r.Quality
		s.TotalTimeMs += r.TimeTakenMs
	}
	s.TotalCards = len(reviews)
	if s.TotalCards > 0 {
		s.AverageQuality = float64(qualitySum) / float64(s.TotalCards)
	}
	return s
}
