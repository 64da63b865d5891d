package model

import "time"

// RescoreJob asks the worker pool to recompute every score of one user.
type RescoreJob struct {
	JobID      string
	UserID     string
	Reason     string
	EnqueuedAt time.Time
}
