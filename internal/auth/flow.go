// Package auth drives one phone number from "number known" to "authorized":
// phone → one-time code → optional two-step password. Each flow owns at most
// one live protocol handle and releases it exactly once on every terminal
// transition.
package auth

import (
	"context"
	"errors"
	"fmt"

	"reportbot/internal/mtproto"
	"reportbot/internal/session"
	"reportbot/pkg/logx"
)

type Step int

const (
	StepAwaitingPhone Step = iota
	StepAwaitingCode
	StepAwaitingPassword
	StepDone
	StepCancelled
	StepFailed
)

func (s Step) String() string {
	switch s {
	case StepAwaitingPhone:
		return "awaiting_phone"
	case StepAwaitingCode:
		return "awaiting_code"
	case StepAwaitingPassword:
		return "awaiting_password"
	case StepDone:
		return "done"
	case StepCancelled:
		return "cancelled"
	case StepFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the flow has ended, successfully or not.
func (s Step) Terminal() bool { return s >= StepDone }

// Flow is the pending context of one in-progress authentication: the phone
// under login, the live client handle, and the current step. It is owned by a
// single conversation and must not be shared.
type Flow struct {
	operatorID int64
	dialer     mtproto.Dialer
	log        logx.Logger

	step   Step
	phone  string
	client mtproto.Client
}

func newFlow(operatorID int64, dialer mtproto.Dialer, log logx.Logger) *Flow {
	return &Flow{operatorID: operatorID, dialer: dialer, log: log, step: StepAwaitingPhone}
}

func (f *Flow) Step() Step    { return f.step }
func (f *Flow) Phone() string { return f.phone }

// release closes the live handle. Safe to call more than once; only the first
// call closes.
func (f *Flow) release() {
	if f.client == nil {
		return
	}
	if err := f.client.Close(); err != nil {
		f.log.Warn("client close failed", logx.String("phone", f.phone), logx.Err(err))
	}
	f.client = nil
}

func (f *Flow) fail(format string, args ...any) string {
	f.release()
	f.step = StepFailed
	return fmt.Sprintf(format, args...)
}

// SubmitPhone opens the credential store for the phone number and requests a
// login code. Already-authorized accounts finish immediately; nothing else
// keeps the handle open except the happy path waiting for the code.
func (f *Flow) SubmitPhone(ctx context.Context, raw string) string {
	if f.step != StepAwaitingPhone {
		return f.fail("❌ Unexpected input for state %s.", f.step)
	}

	phone, err := session.NormalizePhone(raw)
	if err != nil {
		// Not terminal: let the operator correct the number.
		return "❗ " + err.Error()
	}
	f.phone = phone

	client, err := f.dialer.Dial(ctx, phone)
	if err != nil {
		f.log.Error("connect failed", logx.String("phone", phone), logx.Err(err))
		return f.fail("❌ Failed to connect to Telegram. Please try again.")
	}
	f.client = client

	authorized, err := client.Authorized(ctx)
	if err != nil {
		f.log.Error("authorization probe failed", logx.String("phone", phone), logx.Err(err))
		return f.fail("❌ Failed to connect to Telegram. Please try again.")
	}
	if authorized {
		f.release()
		f.step = StepDone
		return "⚠️ Already logged in."
	}

	if err := client.SendCode(ctx); err != nil {
		f.log.Error("send code failed", logx.String("phone", phone), logx.Err(err))
		return f.fail("❌ Failed to send login code. Please try again.")
	}

	f.step = StepAwaitingCode
	return "✅ Code sent! Enter it:"
}

// SubmitCode attempts sign-in with the one-time code. The handle is kept open
// only when the account requires the two-step password.
func (f *Flow) SubmitCode(ctx context.Context, code string) string {
	if f.step != StepAwaitingCode || f.client == nil {
		return f.fail("❌ No session found. Please restart the process.")
	}

	err := f.client.SignIn(ctx, code)
	switch {
	case err == nil:
		f.release()
		f.step = StepDone
		return "🎉 Account added successfully!"
	case errors.Is(err, mtproto.ErrPasswordNeeded):
		f.step = StepAwaitingPassword
		return "🔑 Two-step verification is enabled. Please enter your password:"
	default:
		f.log.Error("login failed", logx.String("phone", f.phone), logx.Err(err))
		return f.fail("❌ Login failed: %v", err)
	}
}

// SubmitPassword attempts the two-step verification sign-in. Terminal either
// way; the handle is always released.
func (f *Flow) SubmitPassword(ctx context.Context, password string) string {
	if f.step != StepAwaitingPassword || f.client == nil {
		return f.fail("❌ No session found. Please restart the process.")
	}

	err := f.client.SignInPassword(ctx, password)
	if err != nil {
		f.log.Error("password login failed", logx.String("phone", f.phone), logx.Err(err))
		return f.fail("❌ Password login failed: %v", err)
	}
	f.release()
	f.step = StepDone
	return "🎉 Account added successfully with password!"
}

// Cancel aborts the flow from any state. Idempotent.
func (f *Flow) Cancel() {
	f.release()
	if !f.step.Terminal() {
		f.step = StepCancelled
	}
}
