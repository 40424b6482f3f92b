package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lessonchat/internal/logger"
)

// Config controls lane sizing
type Config struct {
	// QueueSize bounds the tasks waiting on one session lane
	QueueSize int
	// IdleTimeout is how long an empty lane goroutine lingers before exiting
	IdleTimeout time.Duration
}

// DefaultConfig returns classroom-scale lane settings
func DefaultConfig() Config {
	return Config{QueueSize: 256, IdleTimeout: 30 * time.Second}
}

// Hub serializes work per session.
// ARCHITECTURAL DISCOVERY: Each session gets its own lane, a FIFO queue
// drained by one goroutine. Work for one session is applied strictly in
// arrival order while different sessions proceed in parallel.
type Hub struct {
	config Config

	lanes           map[string]*lane
	shutdownChannel chan struct{}
	wg              sync.WaitGroup

	// TECHNICAL DISCOVERY: One mutex guards lanes, queues and running state,
	// so enqueue and lane retirement can never interleave
	running bool
	mu      sync.Mutex
}

type lane struct {
	sessionID string
	queue     []*task
	wake      chan struct{}
}

type task struct {
	ctx    context.Context
	fn     func(context.Context) error
	result chan error
}

// Stats describes current lane usage
type Stats struct {
	Lanes  int `json:"lanes"`
	Queued int `json:"queued"`
}

// NewHub creates a new hub
func NewHub(config Config) *Hub {
	defaults := DefaultConfig()
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	return &Hub{
		config: config,
		lanes:  make(map[string]*lane),
	}
}

// Start begins accepting work. Cancelling ctx stops the hub.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	shutdown := make(chan struct{})
	h.shutdownChannel = shutdown
	h.mu.Unlock()

	logger.Info("hub_started", "queue_size", h.config.QueueSize, "idle_timeout", h.config.IdleTimeout)

	go func() {
		select {
		case <-ctx.Done():
			_ = h.Stop()
		case <-shutdown:
		}
	}()
	return nil
}

// Stop rejects new work, lets every lane drain its queue, and waits for the lanes to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	h.wg.Wait()
	logger.Info("hub_stopped")
	return nil
}

// IsRunning reports whether the hub accepts work
func (h *Hub) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Do runs fn on sessionID's lane and returns its error.
// FUNCTIONAL DISCOVERY: Once queued a task always runs, even if ctx is
// cancelled while it waits. Do then returns ctx.Err() without the result.
func (h *Hub) Do(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	t := &task{ctx: ctx, fn: fn, result: make(chan error, 1)}

	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	l, ok := h.lanes[sessionID]
	if !ok {
		l = &lane{sessionID: sessionID, wake: make(chan struct{}, 1)}
		h.lanes[sessionID] = l
		h.wg.Add(1)
		go h.runLane(l, h.shutdownChannel)
	}
	if len(l.queue) >= h.config.QueueSize {
		h.mu.Unlock()
		return ErrLaneFull
	}
	l.queue = append(l.queue, t)
	h.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}

	select {
	case err := <-t.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the current number of lanes and queued tasks
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Stats{Lanes: len(h.lanes)}
	for _, l := range h.lanes {
		s.Queued += len(l.queue)
	}
	return s
}

// runLane drains one session's queue
func (h *Hub) runLane(l *lane, shutdown <-chan struct{}) {
	defer h.wg.Done()

	idle := time.NewTimer(h.config.IdleTimeout)
	defer idle.Stop()

	for {
		if t := h.next(l); t != nil {
			t.result <- execute(t)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(h.config.IdleTimeout)
			continue
		}

		select {
		case <-l.wake:
		case <-idle.C:
			if h.retire(l) {
				return
			}
			idle.Reset(h.config.IdleTimeout)
		case <-shutdown:
			if h.retire(l) {
				return
			}
		}
	}
}

// next pops the oldest task or returns nil when the queue is empty
func (h *Hub) next(l *lane) *task {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	t := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return t
}

// retire removes an empty lane. It returns false if work arrived meanwhile.
func (h *Hub) retire(l *lane) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(l.queue) > 0 {
		return false
	}
	if h.lanes[l.sessionID] == l {
		delete(h.lanes, l.sessionID)
	}
	return true
}

func execute(t *task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("hub_task_panic", "panic", r)
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return t.fn(t.ctx)
}
