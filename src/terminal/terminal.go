// Package terminal implements the PTY-backed terminal core: one Terminal
// per session, a Hub fanning its output out to subscribers, and a Registry
// that owns every Terminal's lifetime.
package terminal

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
)

const (
	// readChunkSize bounds a single pump read.
	readChunkSize = 1024

	// maxDimension bounds resize().
	maxDimension = 1000

	defaultCols = 80
	defaultRows = 24

	// restReadBufferCap bounds the separate ring buffer backing Peek: a
	// REST read must never consume bytes a WebSocket subscriber is also
	// waiting to see, so it reads from its own buffer instead of the
	// hub's replay backlog.
	restReadBufferCap = 1 << 20
)

// Info is the read-only snapshot returned by Terminal.Info / Registry.List.
type Info struct {
	ID           string    `json:"id"`
	Active       bool      `json:"active"`
	ShellCommand string    `json:"shell_command"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	IdleSeconds  float64   `json:"idle_seconds"`
}

// Terminal owns one child process and its controlling PTY. It is safe for
// concurrent use: Write/Resize/Close/Info may be called from any goroutine
// while the pump goroutine drains the PTY master.
//
// Invariant: while active, exactly one pump goroutine is reading the master
// fd. The pump is the sole producer into the Terminal's Hub.
type Terminal struct {
	id           string
	shellCommand string

	mu           sync.Mutex
	ptmx         *os.File
	cmd          *exec.Cmd
	active       bool
	createdAt    time.Time
	lastActivity time.Time
	usePgrp      bool

	hub *Hub

	readMu  sync.Mutex
	readBuf []byte

	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewTerminal constructs a Terminal but does not start it; callers must
// call Start before using it. id must already be validated by the caller
// (see Registry.Create).
func NewTerminal(id, shellCommand string) *Terminal {
	return &Terminal{
		id:           id,
		shellCommand: shellCommand,
		createdAt:    time.Now(),
		hub:          newHub(),
		doneCh:       make(chan struct{}),
	}
}

// Start parses the shell command, spawns the child with a PTY as its
// controlling terminal, and launches the pump. On failure the Terminal is
// left inactive and must be discarded; the registry never inserts a
// Terminal whose Start failed.
func (t *Terminal) Start(workingDir string, envOverrides map[string]string, cols, rows uint16) error {
	argv, err := splitShellCommand(t.shellCommand)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadArgument, err)
	}
	if len(argv) == 0 {
		shell := os.Getenv("SHELL")
		if shell == "" {
			shell = "/bin/sh"
		}
		argv = []string{shell}
	}
	if filepathIsAbs(argv[0]) {
		if _, statErr := os.Stat(argv[0]); statErr != nil {
			return fmt.Errorf("%w: %v", ErrSpawnFailed, statErr)
		}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	cmd.Env = mergeEnv(os.Environ(), envOverrides)

	usePgrp := runtime.GOOS == "linux"
	if usePgrp {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	if cols == 0 {
		cols = defaultCols
	}
	if rows == 0 {
		rows = defaultRows
	}
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	t.mu.Lock()
	t.ptmx = ptmx
	t.cmd = cmd
	t.usePgrp = usePgrp
	t.active = true
	t.lastActivity = time.Now()
	t.mu.Unlock()

	go t.pump()
	go t.watchChildExit()

	return nil
}

// pump repeatedly reads up to readChunkSize bytes from the PTY master and
// publishes them to the hub. It is the sole producer into the hub and must
// never drop bytes between a read and the matching publish. It exits on
// EOF or any I/O error, after which Write/Resize fail with ErrNotActive.
func (t *Terminal) pump() {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("terminal %s: pump panic: %v", t.id, r)
		}
		t.deactivate()
	}()

	buf := make([]byte, readChunkSize)
	for {
		t.mu.Lock()
		ptmx := t.ptmx
		t.mu.Unlock()
		if ptmx == nil {
			return
		}

		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.touch()
			t.hub.publish(chunk)
			t.appendReadBuf(chunk)
		}
		if err != nil {
			// EOF or a closed/broken fd: the shell is gone or we closed it
			// ourselves. Either way the pump's job is done.
			return
		}
	}
}

// watchChildExit reaps the child process in the background so a shell that
// exits on its own (the user typed "exit") is noticed even if nothing is
// reading from the PTY at that moment.
func (t *Terminal) watchChildExit() {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	if cmd == nil {
		return
	}
	_ = cmd.Wait()
	t.deactivate()
}

// touch updates last-activity on every read and write; monotone
// non-decreasing since time.Now never goes backwards within a process.
func (t *Terminal) touch() {
	t.mu.Lock()
	t.lastActivity = time.Now()
	t.mu.Unlock()
}

// Write forwards bytes to the PTY master. Requires the terminal to be
// active.
func (t *Terminal) Write(p []byte) (int, error) {
	t.mu.Lock()
	if !t.active || t.ptmx == nil {
		t.mu.Unlock()
		return 0, ErrNotActive
	}
	ptmx := t.ptmx
	t.mu.Unlock()

	n, err := ptmx.Write(p)
	t.touch()
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrNotActive, err)
	}
	return n, nil
}

// Resize sets the PTY window size. rows and cols must be positive and at
// most 1000.
func (t *Terminal) Resize(rows, cols uint16) error {
	if rows == 0 || cols == 0 || int(rows) > maxDimension || int(cols) > maxDimension {
		return ErrBadArgument
	}

	t.mu.Lock()
	if !t.active || t.ptmx == nil {
		t.mu.Unlock()
		return ErrNotActive
	}
	ptmx := t.ptmx
	t.mu.Unlock()

	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
		return fmt.Errorf("%w: %v", ErrNotActive, err)
	}
	t.touch()
	return nil
}

// deactivate marks the terminal inactive and unblocks Done. Idempotent.
func (t *Terminal) deactivate() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.active = false
		t.mu.Unlock()
		close(t.doneCh)
	})
}

// Close cancels the pump, forcefully terminates the child if still alive,
// closes the PTY fd, and sets active=false. Idempotent: closing an
// already-closed Terminal is a no-op, not an error.
func (t *Terminal) Close() {
	t.mu.Lock()
	ptmx := t.ptmx
	cmd := t.cmd
	usePgrp := t.usePgrp
	t.mu.Unlock()

	if ptmx != nil {
		_ = ptmx.Close()
	}
	if cmd != nil && cmd.Process != nil {
		pid := cmd.Process.Pid
		if usePgrp {
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		} else {
			_ = cmd.Process.Kill()
		}
	}
	t.deactivate()
	t.hub.closeAll()
}

// Done returns a channel closed once the terminal has deactivated, whether
// by explicit Close, idle reap, or the child exiting on its own.
func (t *Terminal) Done() <-chan struct{} {
	return t.doneCh
}

// IsActive reports whether the pump is still running.
func (t *Terminal) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Hub returns the terminal's fan-out hub.
func (t *Terminal) Hub() *Hub {
	return t.hub
}

// appendReadBuf feeds the REST-read ring buffer, kept distinct from the
// hub's backlog so a GET .../read never steals bytes a WebSocket
// subscriber is waiting on.
func (t *Terminal) appendReadBuf(chunk []byte) {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	t.readBuf = append(t.readBuf, chunk...)
	if len(t.readBuf) > restReadBufferCap {
		t.readBuf = append([]byte(nil), t.readBuf[len(t.readBuf)-restReadBufferCap:]...)
	}
}

// Peek returns a copy of the last size bytes of output accumulated since
// the terminal started (or since the ring buffer wrapped), for the
// non-streaming REST read endpoint. It never blocks and never consumes
// bytes a Hub subscriber would otherwise receive.
func (t *Terminal) Peek(size int) []byte {
	t.readMu.Lock()
	defer t.readMu.Unlock()
	if size <= 0 || size > len(t.readBuf) {
		size = len(t.readBuf)
	}
	out := make([]byte, size)
	copy(out, t.readBuf[len(t.readBuf)-size:])
	return out
}

// Info returns a point-in-time snapshot of the terminal's metadata.
func (t *Terminal) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{
		ID:           t.id,
		Active:       t.active,
		ShellCommand: t.shellCommand,
		CreatedAt:    t.createdAt,
		LastActivity: t.lastActivity,
		IdleSeconds:  time.Since(t.lastActivity).Seconds(),
	}
}

func filepathIsAbs(p string) bool {
	return strings.HasPrefix(p, "/")
}

// mergeEnv layers envOverrides on top of the parent environment and forces
// a TERM value suitable for the client-side terminal emulator.
func mergeEnv(parent []string, overrides map[string]string) []string {
	overridden := make(map[string]bool, len(overrides))
	for k := range overrides {
		overridden[k] = true
	}

	merged := make([]string, 0, len(parent)+len(overrides)+1)
	for _, kv := range parent {
		idx := strings.IndexByte(kv, '=')
		if idx <= 0 {
			continue
		}
		if !overridden[kv[:idx]] {
			merged = append(merged, kv)
		}
	}
	for k, v := range overrides {
		merged = append(merged, k+"="+v)
	}
	merged = append(merged, "TERM=xterm-256color")
	return merged
}

// splitShellCommand tokenizes a shell command string with shell-style
// quoting: single quotes, double quotes, and backslash escapes. An empty
// input returns a nil slice so the caller can fall back to $SHELL.
func splitShellCommand(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var args []string
	var cur strings.Builder
	haveArg := false
	inSingle, inDouble := false, false

	flush := func() {
		if haveArg {
			args = append(args, cur.String())
			cur.Reset()
			haveArg = false
		}
	}

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case inSingle:
			if c == '\'' {
				inSingle = false
			} else {
				cur.WriteRune(c)
			}
		case inDouble:
			if c == '"' {
				inDouble = false
			} else if c == '\\' && i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\\') {
				i++
				cur.WriteRune(runes[i])
			} else {
				cur.WriteRune(c)
			}
		case c == '\\' && i+1 < len(runes):
			i++
			cur.WriteRune(runes[i])
			haveArg = true
		case c == '\'':
			inSingle = true
			haveArg = true
		case c == '"':
			inDouble = true
			haveArg = true
		case c == ' ' || c == '\t':
			flush()
		default:
			cur.WriteRune(c)
			haveArg = true
		}
	}
	if inSingle || inDouble {
		return nil, fmt.Errorf("unterminated quote in shell command")
	}
	flush()
	return args, nil
}

// ParseDimension turns a query string from the WebSocket handshake into a
// uint16 dimension, defaulting when empty. It checks only that the value
// parses as a uint16, not the 1..maxDimension range Resize enforces.
func ParseDimension(s string, def uint16) (uint16, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadArgument, err)
	}
	return uint16(v), nil
}
