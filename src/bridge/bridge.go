// Package bridge implements the per-WebSocket-connection component that
// translates the JSON wire protocol into Terminal operations and
// subscriber-output frames.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/terma-io/terma/src/llmassist"
	"github.com/terma-io/terma/src/terminal"
)

// State is the per-connection state machine:
// Opening -> Bound -> Closing, with no other transitions.
type State int32

const (
	StateOpening State = iota
	StateBound
	StateClosing
)

// WebSocket close codes
const (
	CloseInvalidPath  = 1008
	CloseCannotCreate = 1011
)

// Conn abstracts the transport Bridge talks over, so it can be exercised
// with a fake in tests without a live gorilla/websocket connection.
type Conn interface {
	ReadMessage() (data []byte, err error)
	WriteJSON(v interface{}) error
	Close(code int, reason string) error
}

// Registry is the subset of *terminal.Registry the bridge needs.
type Registry interface {
	Get(id string) (*terminal.Terminal, error)
	Create(id string, opts terminal.CreateOptions) (string, error)
	Write(id string, data []byte) (int, error)
	Resize(id string, rows, cols uint16) error
	Subscribe(id string) (*terminal.Subscriber, error)
	Unsubscribe(id string, sub *terminal.Subscriber)
}

// Bridge binds exactly one client connection to one session for the
// lifetime of the connection. It never closes the underlying Terminal:
// multiple bridges may share one session, and the session outlives any
// single client.
type Bridge struct {
	conn     Conn
	registry Registry
	analyzer llmassist.AnalyzerPort
	context  *llmassist.ContextStore

	mu        sync.Mutex
	state     State
	sessionID string
	sub       *terminal.Subscriber
}

// New constructs a Bridge in the Opening state.
func New(conn Conn, registry Registry, analyzer llmassist.AnalyzerPort, context *llmassist.ContextStore) *Bridge {
	return &Bridge{
		conn:     conn,
		registry: registry,
		analyzer: analyzer,
		context:  context,
		state:    StateOpening,
	}
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// splitPath extracts a candidate session id from the `*path` wildcard
// segment gin hands the handler for route "/ws/*path" (which retains its
// leading slash, e.g. "/abc-123" or "/abc/def" or "/"). Anything other
// than exactly one non-empty, regex-valid segment is a malformed path.
func splitPath(rawPath string) (string, bool) {
	trimmed := strings.TrimPrefix(rawPath, "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", false
	}
	if !terminal.ValidSessionID(trimmed) {
		return "", false
	}
	return trimmed, true
}

// Bind resolves the session from rawPath, creating it if absent, and
// subscribes to its hub. On success the Bridge transitions to Bound and
// Run may be called. On failure the connection is closed with the
// appropriate code and the Bridge transitions straight to Closing.
func (b *Bridge) Bind(rawPath string, createOpts terminal.CreateOptions) error {
	id, ok := splitPath(rawPath)
	if !ok {
		b.toClosing()
		_ = b.conn.Close(CloseInvalidPath, "invalid path")
		return fmt.Errorf("%w: malformed session path %q", terminal.ErrBadArgument, rawPath)
	}

	if _, err := b.registry.Get(id); err != nil {
		if _, createErr := b.registry.Create(id, createOpts); createErr != nil && createErr != terminal.ErrDuplicateSession {
			b.toClosing()
			_ = b.conn.Close(CloseCannotCreate, "cannot create")
			return fmt.Errorf("cannot create session %q: %w", id, createErr)
		}
	}

	sub, err := b.registry.Subscribe(id)
	if err != nil {
		b.toClosing()
		_ = b.conn.Close(CloseCannotCreate, "cannot create")
		return fmt.Errorf("cannot subscribe to session %q: %w", id, err)
	}

	b.mu.Lock()
	b.sessionID = id
	b.sub = sub
	b.state = StateBound
	b.mu.Unlock()

	return nil
}

func (b *Bridge) toClosing() {
	b.mu.Lock()
	b.state = StateClosing
	b.mu.Unlock()
}

// Run drives the two cooperative loops until either side terminates, then
// unsubscribes and closes the connection. Must be called after a
// successful Bind.
func (b *Bridge) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		b.outboundLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		b.inboundLoop(ctx)
	}()
	wg.Wait()

	b.shutdown()
}

func (b *Bridge) shutdown() {
	b.mu.Lock()
	id, sub := b.sessionID, b.sub
	b.state = StateClosing
	b.mu.Unlock()

	if sub != nil {
		b.registry.Unsubscribe(id, sub)
	}
	_ = b.conn.Close(0, "")
}

// outboundLoop forwards every chunk the hub delivers as an {"type":
// "output"} frame, until the subscription ends or a write fails.
func (b *Bridge) outboundLoop(ctx context.Context) {
	b.mu.Lock()
	sub := b.sub
	b.mu.Unlock()

	for {
		select {
		case chunk, ok := <-sub.Chunks:
			if !ok {
				return
			}
			if err := b.conn.WriteJSON(newOutputMessage(chunk)); err != nil {
				return
			}
		case <-sub.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// inboundLoop parses each inbound text frame as JSON and dispatches by
// type. Malformed JSON and unknown types are logged and do not close the
// connection.
func (b *Bridge) inboundLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := b.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			logrus.Warnf("bridge: malformed inbound frame: %v", err)
			continue
		}

		b.dispatch(ctx, msg)
	}
}

func (b *Bridge) dispatch(ctx context.Context, msg clientMessage) {
	b.mu.Lock()
	sessionID := b.sessionID
	b.mu.Unlock()

	switch msg.Type {
	case "input":
		if _, err := b.registry.Write(sessionID, []byte(msg.Data)); err != nil {
			logrus.Warnf("bridge: write to session %s failed: %v", sessionID, err)
		}
	case "resize":
		rows, cols := msg.Rows, msg.Cols
		if rows == 0 {
			rows = 24
		}
		if cols == 0 {
			cols = 80
		}
		if err := b.registry.Resize(sessionID, uint16(rows), uint16(cols)); err != nil {
			logrus.Warnf("bridge: resize session %s failed: %v", sessionID, err)
		}
	case "llm_assist":
		// Runs in its own goroutine so a slow analyzer never blocks this
		// loop from servicing subsequent input/resize frames.
		go b.handleLLMAssist(ctx, sessionID, msg)
	default:
		logrus.Warnf("bridge: unknown message type %q on session %s", msg.Type, sessionID)
	}
}

func (b *Bridge) handleLLMAssist(ctx context.Context, sessionID string, msg clientMessage) {
	_ = b.conn.WriteJSON(llmResponseMessage{Type: "llm_response", Content: "Analyzing…", Loading: true})

	command, output, ok := deriveAssistArgs(msg)
	if !ok {
		_ = b.conn.WriteJSON(llmResponseMessage{
			Type:    "llm_response",
			Content: "Please provide a command to explain.",
			Loading: false,
		})
		return
	}

	b.context.Append(sessionID, "user", command)

	var (
		result string
		err    error
	)
	if output != "" {
		result, err = b.analyzer.AnalyzeOutput(ctx, sessionID, command, llmassist.TruncateOutput(output, 2000))
	} else {
		result, err = b.analyzer.AnalyzeCommand(ctx, sessionID, command)
	}

	if err != nil {
		logrus.Errorf("bridge: llm assist failed for session %s: %v", sessionID, err)
		_ = b.conn.WriteJSON(llmResponseMessage{Type: "llm_response", Content: err.Error(), Error: true})
		return
	}

	b.context.Append(sessionID, "assistant", result)
	_ = b.conn.WriteJSON(llmResponseMessage{Type: "llm_response", Content: result, Loading: false})
}

// deriveAssistArgs splits on the output delimiter when is_output_analysis
// is set, otherwise strips a leading '?'. ok is false when there is
// nothing left to analyze.
func deriveAssistArgs(msg clientMessage) (command, output string, ok bool) {
	const delimiter = "\nOutput:\n"

	if msg.IsOutputAnalysis {
		parts := strings.SplitN(msg.Command, delimiter, 2)
		command = parts[0]
		if len(parts) == 2 {
			output = parts[1]
		}
		return command, output, command != ""
	}

	command = strings.TrimPrefix(msg.Command, "?")
	return command, "", command != ""
}
