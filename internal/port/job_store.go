package port

import (
	"context"
	"errors"

	"github.com/snapfulfil/order-router/internal/core/domain"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobExists   = errors.New("job already exists")

	// ErrJobNotIdle is returned when removing a job that has already
	// been picked up by a worker or reached a terminal state.
	ErrJobNotIdle = errors.New("job is not waiting or delayed")
)

type JobStore interface {
	Create(ctx context.Context, job domain.Job) error
	Get(ctx context.Context, id string) (domain.Job, error)
	Update(ctx context.Context, job domain.Job) error

	// DeleteIdle removes the job only while it is still waiting or
	// delayed; an active or terminal job returns ErrJobNotIdle.
	DeleteIdle(ctx context.Context, id string) error

	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
}
