package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures the audit store.
//
// Driver values:
//   - "file": dependency-free JSON Lines append log
//   - "sqlite": SQLite database file (requires the sqlite build tag)
//
// If Driver is empty or "none", auditing is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one administrator action: an account login attempt or a
// full report run. Keep it compact and schema-stable.
type AuditEntry struct {
	At      time.Time
	ActorID int64
	Action  string // "add_account" | "report_run"
	Phone   string // add_account only
	Target  string // report_run only
	Sent    int
	Total   int
	Error   string
	TookMS  int64
}
