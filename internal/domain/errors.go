package domain

import "errors"

// Sentinel errors shared by the study engine. Check with errors.Is.
var (
	ErrInvalidQuality           = errors.New("quality must be between 0 and 5")
	ErrSessionNotFound          = errors.New("session not found")
	ErrCardNotFound             = errors.New("card not found")
	ErrDeckNotFound             = errors.New("deck not found")
	ErrSessionCompleted         = errors.New("session already completed")
	ErrOutOfOrderReview         = errors.New("review is not for the session's current card")
	ErrConcurrentReviewConflict = errors.New("card was modified by a concurrent review")
)
