// Package session owns the inventory of credential stores: one opaque
// .session file per phone number under a fixed directory.
//
// The broadcast and authentication components never touch storage paths
// directly; everything goes through Store.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"reportbot/pkg/logx"
)

const fileExt = ".session"

// Store enumerates durable sessions and resolves their storage locations.
type Store interface {
	// List returns the phone numbers of all durable sessions, sorted, each
	// exactly once. The listing reflects the storage snapshot at call time.
	List(ctx context.Context) ([]string, error)

	// Path returns the credential store location for phone. Deterministic.
	Path(phone string) string

	// Count returns the cached inventory size.
	Count() int

	Close() error
}

// FileStore keeps one credential file per phone under dir. An fsnotify
// watcher keeps the cached inventory current when files are added or removed
// behind the bot's back.
type FileStore struct {
	dir string
	log logx.Logger

	mu     sync.RWMutex
	phones []string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewFileStore(dir string, log logx.Logger) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("sessions dir is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}

	s := &FileStore{dir: dir, log: log, done: make(chan struct{})}
	phones, err := s.scan()
	if err != nil {
		return nil, err
	}
	s.phones = phones

	// Watcher is best-effort: without it the inventory is still rescanned on
	// every List call.
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("session dir watch unavailable", logx.Err(err))
	} else if err := w.Add(dir); err != nil {
		log.Warn("session dir watch failed", logx.String("dir", dir), logx.Err(err))
		_ = w.Close()
	} else {
		s.watcher = w
		go s.watch()
	}

	log.Info("session store opened", logx.String("dir", dir), logx.Int("sessions", len(phones)))
	return s, nil
}

func (s *FileStore) scan() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list sessions dir: %w", err)
	}
	phones := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		phone := strings.TrimSuffix(e.Name(), fileExt)
		if phone == "" {
			continue
		}
		phones = append(phones, phone)
	}
	sort.Strings(phones)
	return phones, nil
}

func (s *FileStore) watch() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(ev.Name, fileExt) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			phone := strings.TrimSuffix(filepath.Base(ev.Name), fileExt)
			phones, err := s.scan()
			if err != nil {
				s.log.Warn("session rescan failed", logx.Err(err))
				continue
			}
			s.mu.Lock()
			before := len(s.phones)
			s.phones = phones
			s.mu.Unlock()
			s.log.Info("session inventory changed",
				logx.String("phone", phone),
				logx.String("op", ev.Op.String()),
				logx.Int("before", before),
				logx.Int("after", len(phones)))
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn("session watch error", logx.Err(err))
		}
	}
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	phones, err := s.scan()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.phones = phones
	s.mu.Unlock()
	return append([]string(nil), phones...), nil
}

func (s *FileStore) Path(phone string) string {
	return filepath.Join(s.dir, phone+fileExt)
}

func (s *FileStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.phones)
}

func (s *FileStore) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
