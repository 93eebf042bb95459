package mtproto

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPasswordNeeded is not a failure: it signals that sign-in must
	// continue with the two-step verification password.
	ErrPasswordNeeded = errors.New("two-step verification password needed")

	ErrCodeInvalid     = errors.New("login code invalid")
	ErrPasswordInvalid = errors.New("password invalid")
)

// FloodWaitError is the rate-limit signal: the caller must wait at least Wait
// before issuing further requests with the same credential.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry in %s", e.Wait)
}

// AsFloodWait extracts the mandated wait duration if err carries one.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return 0, false
}
