package mtproto

import (
	"context"
	"strings"
	"testing"
	"time"
)

type nopDialer struct{}

func (nopDialer) Dial(ctx context.Context, phone string) (Client, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	Register("test-driver", func(o Options) (Dialer, error) {
		if o.Credentials.APIID != 7 {
			t.Fatalf("options not forwarded: %+v", o)
		}
		return nopDialer{}, nil
	})

	d, err := OpenDialer("test-driver", Options{Credentials: Credentials{APIID: 7}})
	if err != nil {
		t.Fatalf("OpenDialer: %v", err)
	}
	if d == nil {
		t.Fatal("nil dialer")
	}

	_, err = OpenDialer("nope", Options{})
	if err == nil || !strings.Contains(err.Error(), "unknown mtproto driver") {
		t.Fatalf("err = %v, want unknown driver", err)
	}
	if !strings.Contains(err.Error(), "test-driver") {
		t.Fatalf("err should list registered drivers: %v", err)
	}
}

func TestAsFloodWait(t *testing.T) {
	t.Parallel()
	err := &FloodWaitError{Wait: 30 * time.Second}
	if w, ok := AsFloodWait(err); !ok || w != 30*time.Second {
		t.Fatalf("AsFloodWait = (%v, %v)", w, ok)
	}
	if _, ok := AsFloodWait(ErrCodeInvalid); ok {
		t.Fatal("plain errors must not classify as flood wait")
	}
}
