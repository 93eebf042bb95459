// Package mtproto defines the port to the Telegram user-account protocol.
//
// The bot core only ever talks to these interfaces. Real MTProto drivers live
// out of tree and are injected at startup; mtprototest provides the scriptable
// in-memory driver used by unit tests and the "sim" dry-run mode.
package mtproto

import "context"

// Credentials identify the API application the user clients connect as.
type Credentials struct {
	APIID   int
	APIHash string
}

// Peer is an opaque protocol-level entity resolved from a public username.
type Peer struct {
	ID         int64
	AccessHash int64
	Username   string
}

// Client is a live, connected handle bound to one phone number's credential
// store. A Client must never be shared between two flows; the owner closes it
// exactly once.
type Client interface {
	// Authorized reports whether the credential store already holds a valid
	// authorization for this phone number.
	Authorized(ctx context.Context) (bool, error)

	// SendCode asks the service to deliver a one-time login code.
	SendCode(ctx context.Context) error

	// SignIn completes login with the one-time code. Returns
	// ErrPasswordNeeded when the account has two-step verification enabled;
	// the handle stays usable for SignInPassword in that case.
	SignIn(ctx context.Context, code string) error

	// SignInPassword completes the two-step verification password check.
	SignInPassword(ctx context.Context, password string) error

	// ResolvePeer resolves a public @username to a protocol entity.
	ResolvePeer(ctx context.Context, username string) (Peer, error)

	// Report submits one report request against the peer.
	Report(ctx context.Context, peer Peer, message string) error

	Close() error
}

// Dialer opens a Client for one phone number. Dialing creates the credential
// store file when it does not exist yet.
type Dialer interface {
	Dial(ctx context.Context, phone string) (Client, error)
}
