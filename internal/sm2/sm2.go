package sm2

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/knolstudy/internal/domain"
)

// Quality is the user's 0-5 rating of how well a card was recalled.
type Quality int

// The four labelled buttons map onto the 0-5 scale.
const (
	Again Quality = 0
	Hard  Quality = 3
	Good  Quality = 4
	Easy  Quality = 5
)

const (
	// InitialEasiness is the easiness factor of a card that has never been reviewed.
	InitialEasiness = 2.5
	// MinEasiness is the floor applied to the easiness factor after every review.
	MinEasiness = 1.3
)

// Valid reports whether q is on the 0-5 scale.
func (q Quality) Valid() bool {
	return q >= 0 && q <= 5
}

// IsLapse reports whether q counts as a failed recall.
func (q Quality) IsLapse() bool {
	return q < 3
}

// String returns the button label for labelled qualities and the number otherwise.
func (q Quality) String() string {
	switch q {
	case Again:
		return "again"
	case Hard:
		return "hard"
	case Good:
		return "good"
	case Easy:
		return "easy"
	}
	return strconv.Itoa(int(q))
}

var qualityByLabel = map[string]Quality{
	"again": Again,
	"hard":  Hard,
	"good":  Good,
	"easy":  Easy,
}

// ParseQuality accepts either an integer 0-5 or one of the labels
// Again, Hard, Good, Easy (case-insensitive).
func ParseQuality(s string) (Quality, error) {
	s = strings.TrimSpace(s)
	if q, ok := qualityByLabel[strings.ToLower(s)]; ok {
		return q, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", domain.ErrInvalidQuality, s)
	}
	q := Quality(n)
	if !q.Valid() {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidQuality, n)
	}
	return q, nil
}

// Next computes the schedule that follows a review of quality q at reviewedAt.
// It is a pure function of its arguments; prior is not modified.
func Next(prior domain.Schedule, q Quality, reviewedAt time.Time) (domain.Schedule, error) {
	if !q.Valid() {
		return domain.Schedule{}, fmt.Errorf("%w: %d", domain.ErrInvalidQuality, int(q))
	}

	ef := nextEasiness(prior.Easiness, q)

	var reps, interval int
	if q.IsLapse() {
		reps = 0
		interval = 1
	} else {
		reps = prior.Repetitions + 1
		switch reps {
		case 1:
			interval = 1
		case 2:
			interval = 6
		default:
			interval = int(math.Round(float64(prior.IntervalDays) * ef))
		}
	}
	// A card carried over from elsewhere may have repetitions without an interval.
	if interval < 1 {
		interval = 1
	}

	due := reviewedAt.AddDate(0, 0, interval)
	last := reviewedAt
	return domain.Schedule{
		Repetitions:    reps,
		IntervalDays:   interval,
		Easiness:       ef,
		DueAt:          &due,
		LastReviewedAt: &last,
	}, nil
}

// nextEasiness applies EF' = EF + (0.1 - (5-q)*(0.08 + (5-q)*0.02)), floored at MinEasiness.
func nextEasiness(ef float64, q Quality) float64 {
	if ef == 0 {
		ef = InitialEasiness
	}
	d := float64(5 - q)
	ef += 0.1 - d*(0.08+d*0.02)
	if ef < MinEasiness {
		ef = MinEasiness
	}
	return ef
}
