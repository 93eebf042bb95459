// Package storage provides the optional audit trail of administrator actions.
//
// It records account logins and report runs; it deliberately stores nothing
// about the sessions themselves (those live solely in their credential files).
package storage

import (
	"context"
	"errors"
	"strings"

	"reportbot/pkg/logx"
)

// Store is the audit API used by the app.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if auditing is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
