package domain

import "time"

type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job wraps an order with its processing metadata. A job is mutated
// only by the worker that currently holds it; completed and failed jobs
// are never touched again.
type Job struct {
	ID          string
	Order       Order
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	EnqueuedAt  time.Time
	LastError   string
	Result      *RoutingDecision
}

type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Delayed   int `json:"delayed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

type JobDetails struct {
	ID          string           `json:"id"`
	Status      JobStatus        `json:"status"`
	Attempts    int              `json:"attempts"`
	OrderNumber string           `json:"order_number"`
	LastError   string           `json:"last_error,omitempty"`
	Result      *RoutingDecision `json:"result,omitempty"`
}
