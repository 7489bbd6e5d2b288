package metrics

import (
	"context"
	"time"
)

// Collector records control snapshots.
type Collector interface {
	Record(ctx context.Context, snapshot *ControlSnapshot) error
	Close() error
}

// Repository stores control snapshots.
type Repository interface {
	Record(snapshot *ControlSnapshot) error
	Flush() error
	Prune(before time.Time) (int64, error)
	Close() error
}

// ControlSnapshot is one sample of the control loop.
type ControlSnapshot struct {
	Timestamp   time.Time
	PeriodTicks uint64
	Valid       bool
	Mode        string
	ActiveSpeed uint32
	DutyCycle   uint32
	Online      bool
}
