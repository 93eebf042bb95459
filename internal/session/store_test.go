package session

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"reportbot/pkg/logx"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("opaque"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestFileStoreListSortedAndFiltered(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "+222.session"))
	touch(t, filepath.Join(dir, "+111.session"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, ".session")) // empty phone, ignored
	if err := os.Mkdir(filepath.Join(dir, "sub.session"), 0o755); err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(dir, logx.Nop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()

	phones, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"+111", "+222"}; !reflect.DeepEqual(phones, want) {
		t.Fatalf("List = %v, want %v", phones, want)
	}
	if s.Count() != 2 {
		t.Fatalf("Count = %d, want 2", s.Count())
	}
}

func TestFileStoreListReflectsNewFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := NewFileStore(dir, logx.Nop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()

	phones, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(phones) != 0 {
		t.Fatalf("List = %v, want empty", phones)
	}

	touch(t, filepath.Join(dir, "+333.session"))
	phones, err = s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(phones) != 1 || phones[0] != "+333" {
		t.Fatalf("List = %v, want [+333]", phones)
	}
}

func TestFileStoreCreatesDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "sessions")
	s, err := NewFileStore(dir, logx.Nop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Fatalf("sessions dir not created: %v", err)
	}
}

func TestFileStorePathDeterministic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := NewFileStore(dir, logx.Nop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()

	p1 := s.Path("+15551234567")
	p2 := s.Path("+15551234567")
	if p1 != p2 {
		t.Fatalf("Path not deterministic: %q vs %q", p1, p2)
	}
	if want := filepath.Join(dir, "+15551234567.session"); p1 != want {
		t.Fatalf("Path = %q, want %q", p1, want)
	}
}

func TestFileStoreCloseIdempotent(t *testing.T) {
	t.Parallel()
	s, err := NewFileStore(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"+15551234567", "+15551234567", true},
		{" +1 555 123-4567 ", "+15551234567", true},
		{"15551234567", "", false},
		{"+1555abc", "", false},
		{"+123", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.raw)
		if tt.ok && (err != nil || got != tt.want) {
			t.Fatalf("NormalizePhone(%q) = (%q, %v), want %q", tt.raw, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Fatalf("NormalizePhone(%q) should fail", tt.raw)
		}
	}
}
