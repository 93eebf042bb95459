package report

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"reportbot/internal/mtproto"
	"reportbot/internal/mtproto/mtprototest"
	"reportbot/pkg/logx"
)

type fakeStore struct {
	phones []string
	err    error
}

func (s *fakeStore) List(ctx context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]string(nil), s.phones...), nil
}
func (s *fakeStore) Path(phone string) string { return "testdata/" + phone + ".session" }
func (s *fakeStore) Count() int               { return len(s.phones) }
func (s *fakeStore) Close() error             { return nil }

func testConfig() Config {
	return Config{SendInterval: time.Millisecond, FloodMargin: 5 * time.Second}
}

// newTestDispatcher records sleeps instead of performing them.
func newTestDispatcher(cfg Config, store *fakeStore, dialer *mtprototest.Dialer) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(cfg, store, dialer, logx.Nop())
	var sleeps []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		sleeps = append(sleeps, dur)
		return ctx.Err()
	}
	return d, &sleeps
}

func collectNotify() (Notifier, *[]string) {
	var lines []string
	return func(_ context.Context, s string) { lines = append(lines, s) }, &lines
}

func authorized() mtprototest.Account {
	return mtprototest.Account{Authorized: true}
}

func TestRunOutcomesAndSummary(t *testing.T) {
	t.Parallel()
	dialer := mtprototest.NewDialer()
	dialer.Add("+111", authorized())
	dialer.Add("+222", mtprototest.Account{Authorized: true, ReportErr: errors.New("peer rejected")})
	dialer.Add("+333", authorized())
	store := &fakeStore{phones: []string{"+111", "+222", "+333"}}

	d, _ := newTestDispatcher(testConfig(), store, dialer)
	notify, lines := collectNotify()

	sum, err := d.Run(context.Background(), "@target", notify)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if sum.Sent != 2 || sum.Total != 3 {
		t.Fatalf("sent/total = %d/%d, want 2/3", sum.Sent, sum.Total)
	}
	if len(sum.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(sum.Outcomes))
	}

	// One line per session plus exactly one summary.
	if len(*lines) != 4 {
		t.Fatalf("notifications = %d, want 4: %q", len(*lines), *lines)
	}
	last := (*lines)[3]
	if !strings.Contains(last, "Total reports sent: 2") {
		t.Fatalf("summary line = %q", last)
	}

	// Every handle released before the next session.
	for _, phone := range store.phones {
		if dialer.Closes(phone) != 1 {
			t.Fatalf("closes(%s) = %d, want 1", phone, dialer.Closes(phone))
		}
	}
	if dialer.Reports("+222") != 0 {
		t.Fatal("failed session must not count a report")
	}
}

func TestRunEmptyPool(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(testConfig(), &fakeStore{}, mtprototest.NewDialer())
	notify, lines := collectNotify()

	sum, err := d.Run(context.Background(), "@target", notify)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if sum.Sent != 0 || sum.Total != 0 {
		t.Fatalf("sent/total = %d/%d, want 0/0", sum.Sent, sum.Total)
	}
	if len(*lines) != 1 || !strings.Contains((*lines)[0], "Total reports sent: 0") {
		t.Fatalf("want only the zero summary, got %q", *lines)
	}
}

func TestRunFloodWaitDelaysAndContinues(t *testing.T) {
	t.Parallel()
	dialer := mtprototest.NewDialer()
	dialer.Add("+111", mtprototest.Account{
		Authorized: true,
		ReportErr:  &mtproto.FloodWaitError{Wait: 30 * time.Second},
	})
	dialer.Add("+222", authorized())
	store := &fakeStore{phones: []string{"+111", "+222"}}

	cfg := testConfig()
	d, sleeps := newTestDispatcher(cfg, store, dialer)
	notify, lines := collectNotify()

	sum, err := d.Run(context.Background(), "@target", notify)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if sum.Sent != 1 {
		t.Fatalf("sent = %d, want 1 (delayed session is not retried this run)", sum.Sent)
	}

	if len(*sleeps) != 1 {
		t.Fatalf("sleeps = %v, want exactly one flood sleep", *sleeps)
	}
	want := 30*time.Second + cfg.FloodMargin
	if (*sleeps)[0] != want {
		t.Fatalf("flood sleep = %v, want %v", (*sleeps)[0], want)
	}

	// Order: flood line for +111, then (after the sleep) the +222 line.
	if len(*lines) != 3 {
		t.Fatalf("notifications = %d, want 3: %q", len(*lines), *lines)
	}
	if !strings.Contains((*lines)[0], "FloodWait: 30s for +111") {
		t.Fatalf("first line = %q", (*lines)[0])
	}
	if !strings.Contains((*lines)[1], "+222") {
		t.Fatalf("second line = %q", (*lines)[1])
	}
}

func TestRunBadTargetTouchesNoSession(t *testing.T) {
	t.Parallel()
	dialer := mtprototest.NewDialer()
	dialer.Add("+111", authorized())
	store := &fakeStore{phones: []string{"+111"}}
	d, _ := newTestDispatcher(testConfig(), store, dialer)
	notify, lines := collectNotify()

	for _, target := range []string{"", "channel", "@", "@bad name", "http://x"} {
		if _, err := d.Run(context.Background(), target, notify); !errors.Is(err, ErrBadTarget) {
			t.Fatalf("Run(%q) err = %v, want ErrBadTarget", target, err)
		}
	}
	if dialer.TotalDials() != 0 {
		t.Fatalf("dials = %d, want 0", dialer.TotalDials())
	}
	if len(*lines) != 0 {
		t.Fatalf("notifications = %q, want none", *lines)
	}
}

func TestRunPerSessionFailureIsolation(t *testing.T) {
	t.Parallel()
	dialer := mtprototest.NewDialer()
	dialer.Add("+111", mtprototest.Account{DialErr: errors.New("cannot open store")})
	dialer.Add("+222", mtprototest.Account{Authorized: false}) // never signed in
	dialer.Add("+333", mtprototest.Account{Authorized: true, ResolveErr: errors.New("no such peer")})
	dialer.Add("+444", authorized())
	store := &fakeStore{phones: []string{"+111", "+222", "+333", "+444"}}

	d, _ := newTestDispatcher(testConfig(), store, dialer)
	notify, lines := collectNotify()

	sum, err := d.Run(context.Background(), "@target", notify)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if sum.Sent != 1 {
		t.Fatalf("sent = %d, want 1", sum.Sent)
	}
	if len(*lines) != 5 {
		t.Fatalf("notifications = %d, want 4 per-session + summary", len(*lines))
	}
	for i, kind := range []OutcomeKind{Failed, Failed, Failed, Sent} {
		if sum.Outcomes[i].Kind != kind {
			t.Fatalf("outcome[%d] = %v, want %v", i, sum.Outcomes[i].Kind, kind)
		}
	}
}

func TestRunPacesBetweenSuccessfulSends(t *testing.T) {
	t.Parallel()
	dialer := mtprototest.NewDialer()
	dialer.Add("+111", authorized())
	dialer.Add("+222", authorized())
	dialer.Add("+333", authorized())
	store := &fakeStore{phones: []string{"+111", "+222", "+333"}}

	cfg := Config{SendInterval: 2 * time.Second, FloodMargin: 5 * time.Second}
	d, sleeps := newTestDispatcher(cfg, store, dialer)

	if _, err := d.Run(context.Background(), "@target", nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := []time.Duration{2 * time.Second, 2 * time.Second}
	if !reflect.DeepEqual(*sleeps, want) {
		t.Fatalf("sleeps = %v, want %v (pause after each send except the last)", *sleeps, want)
	}
}

func TestRunDoesNotPaceFailures(t *testing.T) {
	t.Parallel()
	dialer := mtprototest.NewDialer()
	dialer.Add("+111", mtprototest.Account{DialErr: errors.New("no store")})
	dialer.Add("+222", mtprototest.Account{Authorized: false})
	dialer.Add("+333", authorized())
	store := &fakeStore{phones: []string{"+111", "+222", "+333"}}

	d, sleeps := newTestDispatcher(testConfig(), store, dialer)
	if _, err := d.Run(context.Background(), "@target", nil); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(*sleeps) != 0 {
		t.Fatalf("sleeps = %v, want none (failures must not consume pacing)", *sleeps)
	}
}

func TestRunSkipsHeldSessions(t *testing.T) {
	t.Parallel()
	dialer := mtprototest.NewDialer()
	dialer.Add("+111", authorized())
	dialer.Add("+222", authorized())
	store := &fakeStore{phones: []string{"+111", "+222"}}

	d, _ := newTestDispatcher(testConfig(), store, dialer)
	d.SetHold(func(phone string) bool { return phone == "+111" })
	notify, lines := collectNotify()

	sum, err := d.Run(context.Background(), "@target", notify)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if dialer.Dials("+111") != 0 {
		t.Fatalf("dials(+111) = %d, want 0 (held session must not be opened)", dialer.Dials("+111"))
	}
	if sum.Sent != 1 || sum.Total != 2 {
		t.Fatalf("sent/total = %d/%d, want 1/2", sum.Sent, sum.Total)
	}
	if sum.Outcomes[0].Kind != Failed {
		t.Fatalf("held outcome = %v, want failed", sum.Outcomes[0].Kind)
	}
	if !strings.Contains((*lines)[0], "+111") {
		t.Fatalf("first line = %q, want error for held session", (*lines)[0])
	}
}

func TestRunRejectsOverlap(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(testConfig(), &fakeStore{}, mtprototest.NewDialer())
	d.running.Store(true)
	if _, err := d.Run(context.Background(), "@target", nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
}

func TestParseTarget(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"@channel", "channel", true},
		{"  @Some_Channel99  ", "Some_Channel99", true},
		{"channel", "", false},
		{"@", "", false},
		{"@bad channel", "", false},
		{"@bad/channel", "", false},
	}
	for _, tt := range tests {
		got, err := ParseTarget(tt.raw)
		if tt.ok && (err != nil || got != tt.want) {
			t.Fatalf("ParseTarget(%q) = (%q, %v), want %q", tt.raw, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Fatalf("ParseTarget(%q) should fail", tt.raw)
		}
	}
}
