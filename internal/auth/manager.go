package auth

import (
	"context"
	"sync"

	"reportbot/internal/mtproto"
	"reportbot/pkg/logx"
)

// Manager keys pending authentication flows by operator identity, so two
// operators can never corrupt each other's in-flight login. A flow is created
// on /add_account and deleted on any terminal transition.
type Manager struct {
	dialer mtproto.Dialer
	log    logx.Logger

	// OnTerminal, when set, observes every terminal transition (auditing).
	// Set before the manager is used; called outside the manager lock.
	OnTerminal func(operatorID int64, phone string, final Step)

	mu    sync.Mutex
	flows map[int64]*Flow
	// phones mirrors each pending flow's phone so Holds can answer without
	// touching Flow state from another goroutine.
	phones map[int64]string
}

func NewManager(dialer mtproto.Dialer, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{dialer: dialer, log: log, flows: map[int64]*Flow{}, phones: map[int64]string{}}
}

// Begin starts a fresh flow for the operator. A flow already in progress for
// the same operator is cancelled first; its handle is released.
func (m *Manager) Begin(operatorID int64) string {
	m.mu.Lock()
	old := m.flows[operatorID]
	f := newFlow(operatorID, m.dialer, m.log.With(logx.Int64("operator", operatorID)))
	m.flows[operatorID] = f
	delete(m.phones, operatorID)
	m.mu.Unlock()

	if old != nil {
		old.Cancel()
		m.log.Debug("previous flow cancelled", logx.Int64("operator", operatorID))
	}
	return "📲 Send phone number (with + country code):"
}

// Active reports whether the operator has a pending flow.
func (m *Manager) Active(operatorID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flows[operatorID] != nil
}

// Advance routes an operator message to the pending flow's current step.
// The second return is false when no flow is pending for the operator.
//
// Flows are never advanced concurrently: each operator has one conversation,
// and the manager lock is dropped while the (slow, network-bound) step runs.
func (m *Manager) Advance(ctx context.Context, operatorID int64, text string) (string, bool) {
	m.mu.Lock()
	f := m.flows[operatorID]
	m.mu.Unlock()
	if f == nil {
		return "", false
	}

	var reply string
	switch f.Step() {
	case StepAwaitingPhone:
		reply = f.SubmitPhone(ctx, text)
	case StepAwaitingCode:
		reply = f.SubmitCode(ctx, text)
	case StepAwaitingPassword:
		reply = f.SubmitPassword(ctx, text)
	default:
		f.Cancel()
	}

	if f.Step().Terminal() {
		m.remove(operatorID, f)
		m.log.Info("authentication flow ended",
			logx.Int64("operator", operatorID),
			logx.String("phone", f.Phone()),
			logx.String("step", f.Step().String()))
		if m.OnTerminal != nil {
			m.OnTerminal(operatorID, f.Phone(), f.Step())
		}
	} else {
		m.mu.Lock()
		if m.flows[operatorID] == f {
			m.phones[operatorID] = f.Phone()
		}
		m.mu.Unlock()
	}
	return reply, true
}

// Holds reports whether some pending flow is signing in the given phone. The
// report dispatcher consults this before dialing, so one credential store is
// never opened by a sign-in and a report run at the same time.
func (m *Manager) Holds(phone string) bool {
	if phone == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.phones {
		if p == phone {
			return true
		}
	}
	return false
}

// Cancel aborts the operator's pending flow, releasing its handle. The second
// return is false when there was nothing to cancel; cancelling twice is not an
// error.
func (m *Manager) Cancel(operatorID int64) bool {
	m.mu.Lock()
	f := m.flows[operatorID]
	delete(m.flows, operatorID)
	delete(m.phones, operatorID)
	m.mu.Unlock()
	if f == nil {
		return false
	}
	f.Cancel()
	return true
}

func (m *Manager) remove(operatorID int64, f *Flow) {
	m.mu.Lock()
	if m.flows[operatorID] == f {
		delete(m.flows, operatorID)
		delete(m.phones, operatorID)
	}
	m.mu.Unlock()
}

// Shutdown cancels every pending flow. Used on process stop so no handle
// outlives the app.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	flows := make([]*Flow, 0, len(m.flows))
	for _, f := range m.flows {
		flows = append(flows, f)
	}
	m.flows = map[int64]*Flow{}
	m.phones = map[int64]string{}
	m.mu.Unlock()
	for _, f := range flows {
		f.Cancel()
	}
}
