package domain

import "time"

// SessionStatus is the lifecycle state of a study session.
type SessionStatus int

const (
	SessionCreated SessionStatus = iota
	SessionActive
	SessionCompleted
)

func (s SessionStatus) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionActive:
		return "active"
	case SessionCompleted:
		return "completed"
	}
	return "unknown"
}

// ReviewRecord records a single review made during a session.
// Quality is on the 0-5 scale.
type ReviewRecord struct {
	CardID      string    `json:"cardId"`
	Quality     int       `json:"quality"`
	TimeTakenMs int64     `json:"timeTakenMs"`
	ReviewedAt  time.Time `json:"reviewedAt"`
}

// StudySession is one user's pass over a deck's due cards. The queue is fixed
// when the session starts and consumed front to back.
type StudySession struct {
	ID        string
	DeckID    string
	UserID    string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    SessionStatus
	Queue     []string
	Cursor    int
	Reviews   []ReviewRecord
}

// Current returns the card id at the cursor, or false once the queue is exhausted.
func (s *StudySession) Current() (string, bool) {
	if s.Cursor >= len(s.Queue) {
		return "", false
	}
	return s.Queue[s.Cursor], true
}

// Remaining is the number of queued cards not yet reviewed.
func (s *StudySession) Remaining() int {
	return len(s.Queue) - s.Cursor
}

// Clone returns a deep copy that shares no slices with s.
func (s StudySession) Clone() StudySession {
	out := s
	out.Queue = append([]string(nil), s.Queue...)
	out.Reviews = append([]ReviewRecord(nil), s.Reviews...)
	if s.EndedAt != nil {
		t := *s.EndedAt
		out.EndedAt = &t
	}
	return out
}
