package report

import (
	"errors"
	"time"
)

var (
	// ErrBusy means a run is already walking the session pool. Runs are
	// strictly sequential; per-run pacing makes no sense with overlap.
	ErrBusy = errors.New("a report run is already in progress")

	ErrBadTarget = errors.New("target must look like @channelname")
)

type OutcomeKind int

const (
	Sent OutcomeKind = iota
	FloodDelayed
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Sent:
		return "sent"
	case FloodDelayed:
		return "flood_delayed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the per-session result of one report attempt.
type Outcome struct {
	Phone string
	Kind  OutcomeKind
	Wait  time.Duration // flood wait mandated by the service (FloodDelayed only)
	Err   error         // Failed only
}

// Summary aggregates one full run over the session pool.
type Summary struct {
	Target    string
	Total     int
	Sent      int
	Outcomes  []Outcome
	StartedAt time.Time
	DoneAt    time.Time
}

type Config struct {
	// SendInterval is the courtesy pause after each successful submission
	// before the next session is tried.
	SendInterval time.Duration

	// FloodMargin is added on top of a service-mandated flood wait.
	FloodMargin time.Duration

	// Message is the report reason text submitted with every request.
	Message string
}

func (c Config) withDefaults() Config {
	if c.SendInterval <= 0 {
		c.SendInterval = 2 * time.Second
	}
	if c.FloodMargin <= 0 {
		c.FloodMargin = 5 * time.Second
	}
	if c.Message == "" {
		c.Message = "Illegal content promotion"
	}
	return c
}
