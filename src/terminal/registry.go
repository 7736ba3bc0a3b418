package terminal

import (
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// sessionIDPattern matches caller-supplied session ids: alphanumerics and
// hyphens only.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ValidSessionID reports whether id is acceptable as a caller-supplied
// session id.
func ValidSessionID(id string) bool {
	return id != "" && sessionIDPattern.MatchString(id)
}

// CreateOptions customizes Registry.Create beyond the bare id.
type CreateOptions struct {
	ShellCommand string
	WorkingDir   string
	Env          map[string]string

	// Cols/Rows seed the PTY's initial window size; zero selects the
	// default of 80x24.
	Cols uint16
	Rows uint16
}

// Registry is the authoritative owner of every Terminal's lifetime: create,
// lookup, close, and idle reaping. It is the single point through which
// Terminals are mutated.
type Registry struct {
	cfgMu           sync.RWMutex
	cleanupInterval time.Duration
	idleTimeout     time.Duration

	// createMu serializes the entire check-insert-start sequence in
	// Create, not just the map mutation, so two concurrent Create calls
	// for the same id cannot both observe no live session and both spawn
	// a process.
	createMu sync.Mutex

	mu sync.RWMutex
	// sessions is guarded by mu.
	sessions map[string]*Terminal

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry constructs a Registry with the given reaper parameters.
// Passing a zero duration selects its default (cleanup interval 3600s,
// idle timeout 86400s).
func NewRegistry(cleanupInterval, idleTimeout time.Duration) *Registry {
	if cleanupInterval <= 0 {
		cleanupInterval = 3600 * time.Second
	}
	if idleTimeout <= 0 {
		idleTimeout = 86400 * time.Second
	}
	return &Registry{
		cleanupInterval: cleanupInterval,
		idleTimeout:     idleTimeout,
		sessions:        make(map[string]*Terminal),
		stopCh:          make(chan struct{}),
	}
}

// Start launches the idle reaper. Safe to call once; Stop tears it down.
func (r *Registry) Start() {
	r.wg.Add(1)
	go r.reapLoop()
}

// Stop cancels the reaper and closes every Terminal.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()

	r.mu.Lock()
	victims := make([]*Terminal, 0, len(r.sessions))
	for id, t := range r.sessions {
		victims = append(victims, t)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, t := range victims {
		t.Close()
	}
}

// Create returns the session id of a new or pre-existing Terminal. If id is
// empty, a UUIDv4 is generated. If id already names a live session, its id
// is returned along with ErrDuplicateSession so the caller knows nothing
// new was created. A failed spawn never leaves a partial entry.
//
// createMu holds for the whole check-insert-start sequence: without it, two
// concurrent Create calls for the same id can both pass the liveness check
// before either inserts, and both spawn a real process, leaking one.
func (r *Registry) Create(id string, opts CreateOptions) (string, error) {
	if id == "" {
		id = uuid.NewString()
	} else if !ValidSessionID(id) {
		return "", ErrBadArgument
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	r.mu.Lock()
	if existing, ok := r.sessions[id]; ok && existing.IsActive() {
		r.mu.Unlock()
		return id, ErrDuplicateSession
	}
	placeholder := NewTerminal(id, opts.ShellCommand)
	r.sessions[id] = placeholder
	r.mu.Unlock()

	if err := placeholder.Start(opts.WorkingDir, opts.Env, opts.Cols, opts.Rows); err != nil {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		return "", err
	}

	logrus.Infof("terminal registry: created session %s (shell=%q)", id, opts.ShellCommand)
	return id, nil
}

// Get returns the Terminal for id, or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Terminal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return t, nil
}

// Close removes id from the registry and closes its Terminal. Returns
// whether id was present; closing an unknown id is not an error.
func (r *Registry) Close(id string) bool {
	r.mu.Lock()
	t, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	t.Close()
	logrus.Infof("terminal registry: closed session %s", id)
	return true
}

// List returns a snapshot of every current Terminal's Info.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.sessions))
	for _, t := range r.sessions {
		infos = append(infos, t.Info())
	}
	return infos
}

// Write, Resize, Subscribe, Unsubscribe, Peek are convenience passthroughs
// to the owning Terminal.

func (r *Registry) Write(id string, data []byte) (int, error) {
	t, err := r.Get(id)
	if err != nil {
		return 0, err
	}
	return t.Write(data)
}

func (r *Registry) Resize(id string, rows, cols uint16) error {
	t, err := r.Get(id)
	if err != nil {
		return err
	}
	return t.Resize(rows, cols)
}

func (r *Registry) Subscribe(id string) (*Subscriber, error) {
	t, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return t.Hub().Subscribe(), nil
}

func (r *Registry) Unsubscribe(id string, sub *Subscriber) {
	t, err := r.Get(id)
	if err != nil {
		return
	}
	t.Hub().Unsubscribe(sub)
}

// Peek returns the last size bytes of a session's accumulated output for
// the REST read endpoint.
func (r *Registry) Peek(id string, size int) ([]byte, error) {
	t, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return t.Peek(size), nil
}

// SetTimeouts updates the reaper's cleanup interval and idle timeout in
// place, for config hot-reload. A zero value leaves the corresponding field
// unchanged. The new cleanup interval takes effect starting the next reap
// cycle; the new idle timeout applies to that same cycle's sweep.
func (r *Registry) SetTimeouts(cleanupInterval, idleTimeout time.Duration) {
	r.cfgMu.Lock()
	defer r.cfgMu.Unlock()
	if cleanupInterval > 0 {
		r.cleanupInterval = cleanupInterval
	}
	if idleTimeout > 0 {
		r.idleTimeout = idleTimeout
	}
}

func (r *Registry) reapLoop() {
	defer r.wg.Done()

	r.cfgMu.RLock()
	interval := r.cleanupInterval
	r.cfgMu.RUnlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reapOnce()

			r.cfgMu.RLock()
			newInterval := r.cleanupInterval
			r.cfgMu.RUnlock()
			if newInterval != interval {
				interval = newInterval
				ticker.Reset(interval)
			}
		case <-r.stopCh:
			return
		}
	}
}

// reapOnce snapshots idle victims under the map lock, then closes them
// outside it so a slow Close never blocks Create/Get/List.
func (r *Registry) reapOnce() {
	now := time.Now()

	r.cfgMu.RLock()
	idleTimeout := r.idleTimeout
	r.cfgMu.RUnlock()

	r.mu.Lock()
	victims := make(map[string]*Terminal)
	for id, t := range r.sessions {
		info := t.Info()
		if now.Sub(info.LastActivity) > idleTimeout {
			victims[id] = t
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for id, t := range victims {
		t.Close()
		logrus.Infof("terminal registry: reaped idle session %s (idle > %v)", id, idleTimeout)
	}
}
