package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/terma-io/terma/src/llmassist"
	"github.com/terma-io/terma/src/terminal"
)

// fakeConn is an in-memory Conn for testing the bridge without a live
// WebSocket: inbound frames are queued by the test, outbound writes are
// recorded for assertions.
type fakeConn struct {
	inbound  chan []byte
	outbound chan []byte
	closed   chan struct{}
	code     int
	reason   string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	msg, ok := <-c.inbound
	if !ok {
		return nil, context.Canceled
	}
	return msg, nil
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case c.outbound <- data:
	default:
	}
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	select {
	case <-c.closed:
	default:
		c.code, c.reason = code, reason
		close(c.closed)
	}
	return nil
}

func (c *fakeConn) send(v interface{}) {
	data, _ := json.Marshal(v)
	c.inbound <- data
}

func newTestRegistry(t *testing.T) *terminal.Registry {
	t.Helper()
	reg := terminal.NewRegistry(time.Hour, time.Hour)
	reg.Start()
	t.Cleanup(reg.Stop)
	return reg
}

func waitForOutbound(t *testing.T, c *fakeConn, timeout time.Duration) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.outbound:
		var v map[string]interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			t.Fatalf("unmarshal outbound frame: %v", err)
		}
		return v
	case <-time.After(timeout):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

func TestBridgeBindRejectsInvalidPath(t *testing.T) {
	reg := newTestRegistry(t)
	conn := newFakeConn()
	b := New(conn, reg, &llmassist.FakeAnalyzer{}, llmassist.NewContextStore(""))

	err := b.Bind("/bad/nested/path", terminal.CreateOptions{})
	if err == nil {
		t.Fatal("expected an error for a nested path")
	}
	if conn.code != CloseInvalidPath {
		t.Fatalf("close code = %d, want %d", conn.code, CloseInvalidPath)
	}
	if b.State() != StateClosing {
		t.Fatalf("state = %v, want StateClosing", b.State())
	}
}

func TestBridgeBindCreatesSessionAndSubscribes(t *testing.T) {
	reg := newTestRegistry(t)
	conn := newFakeConn()
	b := New(conn, reg, &llmassist.FakeAnalyzer{}, llmassist.NewContextStore(""))

	if err := b.Bind("/my-session", terminal.CreateOptions{ShellCommand: "/bin/sh"}); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}
	if b.State() != StateBound {
		t.Fatalf("state = %v, want StateBound", b.State())
	}
	if _, err := reg.Get("my-session"); err != nil {
		t.Fatalf("expected session to exist: %v", err)
	}
}

func TestBridgeInputIsWrittenToSession(t *testing.T) {
	reg := newTestRegistry(t)
	conn := newFakeConn()
	b := New(conn, reg, &llmassist.FakeAnalyzer{}, llmassist.NewContextStore(""))

	if err := b.Bind("/echo-session", terminal.CreateOptions{ShellCommand: "/bin/sh"}); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	conn.send(clientMessage{Type: "input", Data: "echo hello-bridge\n"})

	deadline := time.After(3 * time.Second)
	for {
		select {
		case data := <-conn.outbound:
			var out outputMessage
			if err := json.Unmarshal(data, &out); err == nil && out.Type == "output" {
				if strings.Contains(out.Data, "hello-bridge") {
					cancel()
					<-done
					return
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for echoed output")
		}
	}
}

func TestBridgeResizeInvalidDimensionDoesNotCrash(t *testing.T) {
	reg := newTestRegistry(t)
	conn := newFakeConn()
	b := New(conn, reg, &llmassist.FakeAnalyzer{}, llmassist.NewContextStore(""))

	if err := b.Bind("/resize-session", terminal.CreateOptions{ShellCommand: "/bin/sh"}); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	conn.send(clientMessage{Type: "resize", Rows: 5000, Cols: 5000})
	conn.send(clientMessage{Type: "input", Data: "true\n"})

	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done
}

func TestBridgeLLMAssistSendsLoadingThenResult(t *testing.T) {
	reg := newTestRegistry(t)
	conn := newFakeConn()
	analyzer := &llmassist.FakeAnalyzer{
		CommandResponse: func(sessionID, command string) (string, error) {
			return "this lists files", nil
		},
	}
	b := New(conn, reg, analyzer, llmassist.NewContextStore(""))

	if err := b.Bind("/assist-session", terminal.CreateOptions{ShellCommand: "/bin/sh"}); err != nil {
		t.Fatalf("Bind() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	conn.send(clientMessage{Type: "llm_assist", Command: "?ls -la"})

	first := waitForOutbound(t, conn, 2*time.Second)
	if first["loading"] != true {
		t.Fatalf("first frame = %v, want loading=true", first)
	}

	second := waitForOutbound(t, conn, 2*time.Second)
	if second["content"] != "this lists files" {
		t.Fatalf("second frame content = %v, want %q", second["content"], "this lists files")
	}
	if second["loading"] == true {
		t.Fatalf("second frame still loading: %v", second)
	}

	cancel()
	<-done
}

func TestDeriveAssistArgsStripsLeadingQuestionMark(t *testing.T) {
	command, output, ok := deriveAssistArgs(clientMessage{Command: "?ls -la"})
	if !ok || command != "ls -la" || output != "" {
		t.Fatalf("got (%q, %q, %v)", command, output, ok)
	}
}

func TestDeriveAssistArgsSplitsOutputAnalysis(t *testing.T) {
	msg := clientMessage{
		Command:          "ls -la\nOutput:\ntotal 0\n-rw-r--r-- 1 user user 0 file.txt",
		IsOutputAnalysis: true,
	}
	command, output, ok := deriveAssistArgs(msg)
	if !ok || command != "ls -la" {
		t.Fatalf("command = %q, ok = %v", command, ok)
	}
	if output != "total 0\n-rw-r--r-- 1 user user 0 file.txt" {
		t.Fatalf("output = %q", output)
	}
}

func TestDeriveAssistArgsEmptyCommandIsRejected(t *testing.T) {
	_, _, ok := deriveAssistArgs(clientMessage{Command: "?"})
	if ok {
		t.Fatal("expected ok=false for an empty command after stripping '?'")
	}
}
