// Package mtprototest provides a scriptable in-memory mtproto.Dialer.
//
// It backs the unit tests and the "sim" driver used for dry runs: accounts are
// plain structs, sign-in is checked against scripted codes/passwords, and every
// dial/close is recorded so tests can assert the handle lifecycle.
package mtprototest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"reportbot/internal/mtproto"
)

// Account scripts the behavior of one phone number.
//
// Zero value: not authorized, any code accepted, no two-step password, all
// calls succeed.
type Account struct {
	Authorized bool
	Code       string // expected login code; empty accepts any
	Password   string // non-empty enables two-step verification

	DialErr     error
	SendCodeErr error
	ResolveErr  error
	ReportErr   error
}

type accountState struct {
	acct       Account
	authorized bool
	dials      int
	closes     int
	reports    int
}

type Dialer struct {
	mu       sync.Mutex
	accounts map[string]*accountState
	open     int
}

func NewDialer() *Dialer {
	return &Dialer{accounts: map[string]*accountState{}}
}

// Add scripts phone with the given behavior, replacing any previous script.
func (d *Dialer) Add(phone string, acct Account) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.accounts[phone] = &accountState{acct: acct, authorized: acct.Authorized}
}

func (d *Dialer) state(phone string) *accountState {
	st, ok := d.accounts[phone]
	if !ok {
		st = &accountState{}
		d.accounts[phone] = st
	}
	return st
}

func (d *Dialer) Dial(ctx context.Context, phone string) (mtproto.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	st := d.state(phone)
	st.dials++
	if st.acct.DialErr != nil {
		return nil, st.acct.DialErr
	}
	d.open++
	return &client{d: d, phone: phone, st: st}, nil
}

// Dials reports how many times phone was dialed.
func (d *Dialer) Dials(phone string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state(phone).dials
}

// TotalDials reports the number of Dial calls across all phones.
func (d *Dialer) TotalDials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, st := range d.accounts {
		n += st.dials
	}
	return n
}

// Closes reports how many times phone's handles were closed.
func (d *Dialer) Closes(phone string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state(phone).closes
}

// Open reports the number of currently open handles.
func (d *Dialer) Open() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// Reports reports how many report requests phone submitted.
func (d *Dialer) Reports(phone string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state(phone).reports
}

// IsAuthorized reports whether phone finished sign-in at some point.
func (d *Dialer) IsAuthorized(phone string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state(phone).authorized
}

type client struct {
	d     *Dialer
	phone string
	st    *accountState

	mu       sync.Mutex
	closed   bool
	codeSeen bool
}

func (c *client) guard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("mtprototest: use of closed client for %s", c.phone)
	}
	return nil
}

func (c *client) Authorized(ctx context.Context) (bool, error) {
	if err := c.guard(); err != nil {
		return false, err
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return c.st.authorized, nil
}

func (c *client) SendCode(ctx context.Context) error {
	if err := c.guard(); err != nil {
		return err
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	return c.st.acct.SendCodeErr
}

func (c *client) SignIn(ctx context.Context, code string) error {
	if err := c.guard(); err != nil {
		return err
	}
	c.d.mu.Lock()
	badCode := c.st.acct.Code != "" && code != c.st.acct.Code
	needPassword := !badCode && c.st.acct.Password != ""
	if !badCode && !needPassword {
		c.st.authorized = true
	}
	c.d.mu.Unlock()

	if badCode {
		return mtproto.ErrCodeInvalid
	}
	if needPassword {
		c.mu.Lock()
		c.codeSeen = true
		c.mu.Unlock()
		return mtproto.ErrPasswordNeeded
	}
	return nil
}

func (c *client) SignInPassword(ctx context.Context, password string) error {
	if err := c.guard(); err != nil {
		return err
	}
	c.mu.Lock()
	codeSeen := c.codeSeen
	c.mu.Unlock()
	if !codeSeen {
		return errors.New("mtprototest: password before code")
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if password != c.st.acct.Password {
		return mtproto.ErrPasswordInvalid
	}
	c.st.authorized = true
	return nil
}

func (c *client) ResolvePeer(ctx context.Context, username string) (mtproto.Peer, error) {
	if err := c.guard(); err != nil {
		return mtproto.Peer{}, err
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.st.acct.ResolveErr != nil {
		return mtproto.Peer{}, c.st.acct.ResolveErr
	}
	return mtproto.Peer{ID: int64(len(username)), Username: username}, nil
}

func (c *client) Report(ctx context.Context, peer mtproto.Peer, message string) error {
	if err := c.guard(); err != nil {
		return err
	}
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	if c.st.acct.ReportErr != nil {
		return c.st.acct.ReportErr
	}
	c.st.reports++
	return nil
}

func (c *client) Close() error {
	c.mu.Lock()
	wasClosed := c.closed
	c.closed = true
	c.mu.Unlock()

	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	c.st.closes++
	if !wasClosed {
		c.d.open--
	}
	return nil
}
