package telegram

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestStopPollingOnce(t *testing.T) {
	t.Parallel()
	var calls int32
	a := &Adapter{
		stopFn:   func() { atomic.AddInt32(&calls, 1) },
		stopOnce: new(sync.Once),
	}

	done := make(chan struct{})
	go func() {
		a.stopPolling()
		close(done)
	}()
	a.stopPolling()
	<-done

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("stop calls = %d, want 1", got)
	}
}

func TestStopPollingBeforeStart(t *testing.T) {
	t.Parallel()
	a := &Adapter{stopFn: func() { t.Error("must not stop a poller that never started") }}
	a.stopPolling()
}

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 4000)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	lines := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		lines = append(lines, strings.Repeat("x", 50))
	}
	s := strings.Join(lines, "\n")

	chunks := splitText(s, 400)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 400 {
			t.Fatalf("chunk %d exceeds limit: %d", i, len([]rune(c)))
		}
		// Newline-preferred splits keep lines intact.
		for _, l := range strings.Split(c, "\n") {
			if len(l) != 50 {
				t.Fatalf("chunk %d split mid-line: %q", i, l)
			}
		}
	}

	joined := strings.Join(chunks, "\n")
	if strings.ReplaceAll(joined, "\n", "") != strings.ReplaceAll(s, "\n", "") {
		t.Fatal("content lost while splitting")
	}
}
