package terminal

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func newTestTerminal(t *testing.T, shellCommand string) *Terminal {
	t.Helper()
	term := NewTerminal("test-"+t.Name(), shellCommand)
	if err := term.Start("", nil, 0, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(term.Close)
	return term
}

func readUntil(t *testing.T, sub *Subscriber, want string, timeout time.Duration) string {
	t.Helper()
	deadline := time.After(timeout)
	var got bytes.Buffer
	for {
		select {
		case chunk, ok := <-sub.Chunks:
			if !ok {
				t.Fatalf("subscriber closed before seeing %q, got %q", want, got.String())
			}
			got.Write(chunk)
			if strings.Contains(got.String(), want) {
				return got.String()
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q, got %q", want, got.String())
		}
	}
}

func TestTerminalEchoRoundTrip(t *testing.T) {
	term := newTestTerminal(t, "/bin/sh")
	sub := term.Hub().Subscribe()
	defer term.Hub().Unsubscribe(sub)

	if _, err := term.Write([]byte("echo hi\n")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}

	readUntil(t, sub, "hi", 2*time.Second)
}

func TestTerminalResizeBoundaries(t *testing.T) {
	term := newTestTerminal(t, "/bin/sh")

	if err := term.Resize(40, 132); err != nil {
		t.Fatalf("Resize(40,132) should succeed: %v", err)
	}

	cases := []struct {
		rows, cols uint16
	}{
		{0, 80},
		{24, 0},
		{1001, 80},
		{24, 1001},
	}
	for _, c := range cases {
		if err := term.Resize(c.rows, c.cols); err == nil {
			t.Errorf("Resize(%d,%d) should fail", c.rows, c.cols)
		}
	}
}

func TestTerminalCloseIsIdempotent(t *testing.T) {
	term := newTestTerminal(t, "/bin/sh")
	term.Close()
	term.Close() // must not panic

	if term.IsActive() {
		t.Fatal("terminal should be inactive after Close")
	}
	if _, err := term.Write([]byte("x")); err != ErrNotActive {
		t.Fatalf("Write after Close should return ErrNotActive, got %v", err)
	}
	if err := term.Resize(24, 80); err != ErrNotActive {
		t.Fatalf("Resize after Close should return ErrNotActive, got %v", err)
	}
}

func TestTerminalLastActivityMonotonic(t *testing.T) {
	term := newTestTerminal(t, "/bin/sh")

	first := term.Info().LastActivity
	time.Sleep(10 * time.Millisecond)
	if _, err := term.Write([]byte("echo a\n")); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	second := term.Info().LastActivity

	if second.Before(first) {
		t.Fatalf("last activity went backwards: %v -> %v", first, second)
	}
}

func TestTerminalShellExitDeactivates(t *testing.T) {
	term := NewTerminal("test-exit", "/bin/sh -c exit")
	if err := term.Start("", nil, 0, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer term.Close()

	select {
	case <-term.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("terminal did not deactivate after shell exited")
	}
	if term.IsActive() {
		t.Fatal("terminal should report inactive once the shell has exited")
	}
}

func TestSplitShellCommand(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"/bin/sh", []string{"/bin/sh"}},
		{`/bin/sh -c "echo hi"`, []string{"/bin/sh", "-c", "echo hi"}},
		{`/bin/sh -c 'echo "quoted"'`, []string{"/bin/sh", "-c", `echo "quoted"`}},
		{`cmd arg\ with\ space`, []string{"cmd", "arg with space"}},
	}
	for _, c := range cases {
		got, err := splitShellCommand(c.in)
		if err != nil {
			t.Fatalf("splitShellCommand(%q) error: %v", c.in, err)
		}
		if len(got) != len(c.want) {
			t.Fatalf("splitShellCommand(%q) = %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("splitShellCommand(%q)[%d] = %q, want %q", c.in, i, got[i], c.want[i])
			}
		}
	}
}

func TestSplitShellCommandUnterminatedQuote(t *testing.T) {
	if _, err := splitShellCommand(`echo "unterminated`); err == nil {
		t.Fatal("expected an error for an unterminated quote")
	}
}
