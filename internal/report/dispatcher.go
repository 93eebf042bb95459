// Package report walks the stored session pool and submits one report request
// per session against a single target, pacing submissions and isolating
// per-session failures so a bad account never aborts the run.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"reportbot/internal/mtproto"
	"reportbot/internal/session"
	"reportbot/pkg/logx"
)

// Notifier receives the human-readable status line for each step of a run.
type Notifier func(ctx context.Context, text string)

type Dispatcher struct {
	cfg    Config
	store  session.Store
	dialer mtproto.Dialer
	log    logx.Logger

	running atomic.Bool

	// hold, when set, marks phones that must not be dialed right now.
	hold func(phone string) bool

	// sleep is swapped in tests; the default honors ctx cancellation.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(cfg Config, store session.Store, dialer mtproto.Dialer, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		cfg:    cfg.withDefaults(),
		store:  store,
		dialer: dialer,
		log:    log,
		sleep:  sleepCtx,
	}
}

// ParseTarget validates the sigil+name addressing syntax and returns the bare
// username.
func ParseTarget(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if len(s) < 2 || s[0] != '@' {
		return "", ErrBadTarget
	}
	name := s[1:]
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return "", ErrBadTarget
		}
	}
	return name, nil
}

// SetHold installs a predicate consulted before each dial; held phones fail
// the attempt without their credential store being opened. The app holds
// phones that are mid sign-in, so a session is never used by an
// authentication flow and a report run at once. Set before the first Run.
func (d *Dispatcher) SetHold(hold func(phone string) bool) { d.hold = hold }

// Running reports whether a run is in progress.
func (d *Dispatcher) Running() bool { return d.running.Load() }

// Run reports the target from every stored session, strictly one session at a
// time in the enumerated order. The target is validated before any session is
// opened. Per-session outcomes and a final summary are pushed through notify;
// the count of Sent outcomes comes back in the Summary.
func (d *Dispatcher) Run(ctx context.Context, target string, notify Notifier) (Summary, error) {
	username, err := ParseTarget(target)
	if err != nil {
		return Summary{}, err
	}
	if !d.running.CompareAndSwap(false, true) {
		return Summary{}, ErrBusy
	}
	defer d.running.Store(false)

	if notify == nil {
		notify = func(context.Context, string) {}
	}

	phones, err := d.store.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list sessions: %w", err)
	}

	sum := Summary{
		Target:    target,
		Total:     len(phones),
		Outcomes:  make([]Outcome, 0, len(phones)),
		StartedAt: time.Now(),
	}
	d.log.Info("report run started", logx.String("target", target), logx.Int("sessions", len(phones)))

	for i, phone := range phones {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		out := d.reportOne(ctx, phone, username)
		sum.Outcomes = append(sum.Outcomes, out)

		switch out.Kind {
		case Sent:
			sum.Sent++
			notify(ctx, fmt.Sprintf("✅ Report sent from: %s", phone))
			// Courtesy pause between successful sends; failures move on
			// immediately, and the last session has nothing to pace.
			if i < len(phones)-1 {
				if err := d.sleep(ctx, d.cfg.SendInterval); err != nil {
					return sum, err
				}
			}
		case FloodDelayed:
			notify(ctx, fmt.Sprintf("⏳ FloodWait: %ds for %s.", int(out.Wait/time.Second), phone))
			// The delayed session stays not-sent for this run; after the
			// mandated wait the run moves on to the next session.
			if err := d.sleep(ctx, out.Wait+d.cfg.FloodMargin); err != nil {
				return sum, err
			}
		case Failed:
			d.log.Error("report failed", logx.String("phone", phone), logx.Err(out.Err))
			notify(ctx, fmt.Sprintf("❌ Error with %s: %v", phone, out.Err))
		}
	}

	sum.DoneAt = time.Now()
	d.log.Info("report run finished",
		logx.String("target", target),
		logx.Int("total", sum.Total),
		logx.Int("sent", sum.Sent),
		logx.Duration("dur", sum.DoneAt.Sub(sum.StartedAt)))
	notify(ctx, fmt.Sprintf("📊 Total reports sent: %d", sum.Sent))
	return sum, nil
}

// reportOne opens, uses, and releases exactly one session. The handle never
// outlives the iteration.
func (d *Dispatcher) reportOne(ctx context.Context, phone, username string) Outcome {
	if d.hold != nil && d.hold(phone) {
		return Outcome{Phone: phone, Kind: Failed, Err: errors.New("session busy signing in")}
	}

	client, err := d.dialer.Dial(ctx, phone)
	if err != nil {
		return classify(phone, fmt.Errorf("open session: %w", err))
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			d.log.Warn("session close failed", logx.String("phone", phone), logx.Err(cerr))
		}
	}()

	authorized, err := client.Authorized(ctx)
	if err != nil {
		return classify(phone, err)
	}
	if !authorized {
		return Outcome{Phone: phone, Kind: Failed, Err: errors.New("session not authorized")}
	}

	peer, err := client.ResolvePeer(ctx, username)
	if err != nil {
		return classify(phone, err)
	}

	if err := client.Report(ctx, peer, d.cfg.Message); err != nil {
		return classify(phone, err)
	}
	return Outcome{Phone: phone, Kind: Sent}
}

func classify(phone string, err error) Outcome {
	if wait, ok := mtproto.AsFloodWait(err); ok {
		return Outcome{Phone: phone, Kind: FloodDelayed, Wait: wait}
	}
	return Outcome{Phone: phone, Kind: Failed, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
