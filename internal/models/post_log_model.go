package models

import "time"

type LogOutcome string

const (
	LogOutcomeSuccess LogOutcome = "success"
	LogOutcomeFailure LogOutcome = "failure"
	LogOutcomeRetry   LogOutcome = "retry"
)

// PostLog is an append-only audit entry for one dispatch attempt.
type PostLog struct {
	ID        int64      `db:"id" json:"id"`
	PostID    int64      `db:"post_id" json:"post_id"`
	Platform  Platform   `db:"platform" json:"platform"`
	Outcome   LogOutcome `db:"outcome" json:"outcome"`
	Detail    string     `db:"detail" json:"detail"`
	AttemptID string     `db:"attempt_id" json:"attempt_id"`
	AttemptNo int        `db:"attempt_no" json:"attempt_no"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// PlatformOutcome is the result of one (post, platform) dispatch attempt.
type PlatformOutcome struct {
	PostID     int64    `json:"post_id"`
	Platform   Platform `json:"platform"`
	AttemptID  string   `json:"attempt_id"`
	Published  bool     `json:"published"`
	ExternalID string   `json:"external_id,omitempty"`
	Detail     string   `json:"detail"`
}

func (o *PlatformOutcome) Status() Status {
	if o.Published {
		return StatusPublished
	}
	return StatusFailed
}

func (o *PlatformOutcome) LogOutcome() LogOutcome {
	if o.Published {
		return LogOutcomeSuccess
	}
	return LogOutcomeFailure
}

// JournaledOutcome is an outcome whose database write failed, parked for
// the reconciler.
type JournaledOutcome struct {
	Outcome     PlatformOutcome `json:"outcome"`
	AttemptNo   int             `json:"attempt_no"`
	JournaledAt time.Time       `json:"journaled_at"`
	Reason      string          `json:"reason"`
}
