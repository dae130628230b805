package task

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/events"
	"github.com/phrazzld/mediaforge-api/internal/relocation"
	"github.com/phrazzld/mediaforge-api/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
)

// Config holds the engine's tuning knobs.
type Config struct {
	// MaxConcurrency bounds the running set.
	MaxConcurrency int
	// ReservedSlots shrinks the pending queue's admission threshold.
	ReservedSlots int
	// RetryDelay is the fixed wait before relaunching a capacity-rejected task.
	RetryDelay time.Duration
	// MaxRetries bounds relaunch attempts. Zero means unbounded.
	MaxRetries int
	// PollInterval is the status watcher's tick.
	PollInterval time.Duration
	// WatchTimeout fails tasks whose provider job runs longer.
	WatchTimeout time.Duration
	// ResultTimeout bounds fetching a finished job's result.
	ResultTimeout time.Duration
	// RelocationTimeout bounds copying the result into durable storage.
	RelocationTimeout time.Duration
	// SweepSchedule is a cron spec for the stale-task sweep. Empty disables it.
	SweepSchedule string
	// StaleAfter is how long a processing record may go without updates
	// before the sweep looks at it.
	StaleAfter time.Duration
	// WebhookDedupSize is the number of recent webhook deliveries remembered.
	WebhookDedupSize int
	// WebhookURL is passed to providers so they can call back on completion.
	WebhookURL string
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:    4,
		RetryDelay:        30 * time.Second,
		MaxRetries:        30,
		PollInterval:      2 * time.Second,
		WatchTimeout:      15 * time.Minute,
		ResultTimeout:     15 * time.Second,
		RelocationTimeout: 2 * time.Minute,
		SweepSchedule:     "@every 5m",
		StaleAfter:        10 * time.Minute,
		WebhookDedupSize:  1024,
	}
}

// Engine admits tasks, dispatches them to providers within the concurrency
// bound, retries capacity rejections, and reconciles provider status from
// both polling and webhooks into the task records.
//
// A single mutex guards the pending queue, the running set, the waiting
// pool and the watcher registry. No I/O happens while it is held; every
// path re-checks membership after an await.
type Engine struct {
	repo      Repository
	kinds     *KindRegistry
	relocator relocation.Relocator
	emitter   events.EventEmitter
	cfg       Config
	clock     Clock
	logger    *slog.Logger

	mu       sync.Mutex
	pending  []*QueueItem
	running  map[uuid.UUID]*QueueItem
	waiting  *waitingPool
	watchers map[string]*watchHandle
	started  bool
	stopped  bool
	// admitting counts submissions that passed the capacity check and are
	// still persisting their record. They hold a pending place.
	admitting int

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup
	wake   chan struct{}

	success   singleflight.Group
	delivered *lru.Cache[string, struct{}]
	cron      *cron.Cron
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithEventEmitter sets the emitter notified of finished tasks.
func WithEventEmitter(em events.EventEmitter) Option {
	return func(e *Engine) { e.emitter = em }
}

// NewEngine creates an Engine. Start must be called before tasks are launched.
func NewEngine(
	repo Repository,
	kinds *KindRegistry,
	relocator relocation.Relocator,
	cfg Config,
	logger *slog.Logger,
	opts ...Option,
) (*Engine, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, fmt.Errorf("max concurrency must be positive, got %d", cfg.MaxConcurrency)
	}
	if cfg.WebhookDedupSize <= 0 {
		cfg.WebhookDedupSize = DefaultConfig().WebhookDedupSize
	}
	delivered, err := lru.New[string, struct{}](cfg.WebhookDedupSize)
	if err != nil {
		return nil, fmt.Errorf("create webhook dedup cache: %w", err)
	}
	if relocator == nil {
		relocator = relocation.Passthrough
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		repo:      repo,
		kinds:     kinds,
		relocator: relocator,
		cfg:       cfg,
		clock:     systemClock{},
		logger:    logger.With("component", "task_engine"),
		running:   make(map[uuid.UUID]*QueueItem),
		waiting:   newWaitingPool(),
		watchers:  make(map[string]*watchHandle),
		ctx:       ctx,
		cancel:    cancel,
		wake:      make(chan struct{}, 1),
		delivered: delivered,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SubmitRequest is a new task submission.
type SubmitRequest struct {
	Kind     string
	Priority int
	Owner    *uuid.UUID
	Metadata map[string]any
	InputRef string
}

// SubmitResult reports the created task and its 1-based position in the
// pending queue at admission time.
type SubmitResult struct {
	TaskID        uuid.UUID
	QueuePosition int
}

// Submit admits a task. It fails fast with ErrCapacity when the running set
// is full and the pending queue has reached its threshold; in that case
// nothing is persisted.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	kind, ok := e.kinds.Get(req.Kind)
	if !ok {
		return SubmitResult{}, fmt.Errorf("%w: %q", ErrUnknownKind, req.Kind)
	}

	metadata := make(map[string]any, len(req.Metadata)+1)
	maps.Copy(metadata, req.Metadata)
	if _, ok := metadata["input_url"]; !ok && req.InputRef != "" {
		metadata["input_url"] = req.InputRef
	}
	if _, err := kind.BuildJobSpec(metadata); err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return SubmitResult{}, ErrEngineStopped
	}
	if e.saturatedLocked() {
		running, pending := len(e.running), len(e.pending)
		e.mu.Unlock()
		e.logger.WarnContext(ctx, "rejecting submission, engine at capacity",
			"kind", req.Kind,
			"running", running,
			"pending", pending)
		return SubmitResult{}, ErrCapacity
	}
	e.admitting++
	e.mu.Unlock()

	rec, err := e.repo.Create(ctx, CreateParams{
		Kind:     kind.Name(),
		Priority: req.Priority,
		UserID:   req.Owner,
		InputRef: req.InputRef,
		Metadata: metadata,
	})
	if err != nil {
		e.mu.Lock()
		e.admitting--
		e.mu.Unlock()
		return SubmitResult{}, fmt.Errorf("create task record: %w", err)
	}

	item := newQueueItem(rec, kind, metadata, e.clock.Now())

	e.mu.Lock()
	e.admitting--
	e.pending = append(e.pending, item)
	sortPending(e.pending)
	position := positionOf(e.pending, item.TaskID)
	e.dispatchLocked()
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "task admitted",
		"task_id", rec.ID,
		"kind", kind.Name(),
		"priority", req.Priority,
		"queue_position", position)

	return SubmitResult{TaskID: rec.ID, QueuePosition: position}, nil
}

func (e *Engine) saturatedLocked() bool {
	limit := e.cfg.MaxConcurrency
	return len(e.running) >= limit && len(e.pending)+e.admitting+e.cfg.ReservedSlots >= limit
}

// dispatch moves as many pending items to the running set as there are free
// slots and launches them. It is safe to call at any time.
func (e *Engine) dispatch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dispatchLocked()
}

func (e *Engine) dispatchLocked() {
	if !e.started || e.stopped {
		return
	}
	available := e.cfg.MaxConcurrency - len(e.running)
	for available > 0 && len(e.pending) > 0 {
		item := e.pending[0]
		e.pending[0] = nil
		e.pending = e.pending[1:]
		e.startLaunchLocked(item)
		available--
	}
}

func (e *Engine) startLaunchLocked(item *QueueItem) {
	item.Status = ItemRunning
	e.running[item.TaskID] = item
	e.wg.Go(func() { e.launch(item) })
}

// isRunning reports whether item still occupies a running slot.
func (e *Engine) isRunning(item *QueueItem) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running[item.TaskID] == item
}

// release frees item's running slot, stops its watcher and dispatches. It
// is a no-op for items that no longer hold a slot.
func (e *Engine) release(item *QueueItem, outcome ItemStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if item.ExternalID != "" {
		e.stopWatcherLocked(item.ExternalID)
	}
	if e.running[item.TaskID] == item {
		delete(e.running, item.TaskID)
		item.Status = outcome
	}
	e.dispatchLocked()
}

// Get returns the record for taskID.
func (e *Engine) Get(ctx context.Context, taskID uuid.UUID) (*domain.TaskRecord, error) {
	rec, err := e.repo.Get(ctx, taskID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return rec, nil
}

// Kinds returns the names of the registered job kinds.
func (e *Engine) Kinds() []string {
	return e.kinds.Names()
}

// Snapshot is a point-in-time view of the engine's collections.
type Snapshot struct {
	MaxConcurrency int               `json:"max_concurrency"`
	RunningCount   int               `json:"running_count"`
	Running        []RunningSnapshot `json:"running"`
	Pending        []PendingSnapshot `json:"pending"`
	Waiting        []WaitingSnapshot `json:"waiting"`
	Watchers       int               `json:"watchers"`
}

// RunningSnapshot describes a task holding a running slot.
type RunningSnapshot struct {
	TaskID     uuid.UUID `json:"task_id"`
	Kind       string    `json:"kind"`
	ExternalID string    `json:"external_id,omitempty"`
	Retries    int       `json:"retries"`
}

// PendingSnapshot describes a queued task.
type PendingSnapshot struct {
	TaskID      uuid.UUID `json:"task_id"`
	Kind        string    `json:"kind"`
	Priority    int       `json:"priority"`
	Position    int       `json:"position"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// WaitingSnapshot describes a task waiting to be relaunched.
type WaitingSnapshot struct {
	TaskID        uuid.UUID `json:"task_id"`
	Kind          string    `json:"kind"`
	Retries       int       `json:"retries"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
}

// Snapshot returns the current state of the queue.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		MaxConcurrency: e.cfg.MaxConcurrency,
		RunningCount:   len(e.running),
		Running:        make([]RunningSnapshot, 0, len(e.running)),
		Pending:        make([]PendingSnapshot, 0, len(e.pending)),
		Waiting:        make([]WaitingSnapshot, 0, e.waiting.len()),
		Watchers:       len(e.watchers),
	}
	for _, item := range e.running {
		snap.Running = append(snap.Running, RunningSnapshot{
			TaskID:     item.TaskID,
			Kind:       item.Kind.Name(),
			ExternalID: item.ExternalID,
			Retries:    item.Retries,
		})
	}
	sort.Slice(snap.Running, func(i, j int) bool {
		return snap.Running[i].TaskID.String() < snap.Running[j].TaskID.String()
	})
	for i, item := range e.pending {
		snap.Pending = append(snap.Pending, PendingSnapshot{
			TaskID:      item.TaskID,
			Kind:        item.Kind.Name(),
			Priority:    item.Priority,
			Position:    i + 1,
			SubmittedAt: item.SubmittedAt,
		})
	}
	for _, item := range e.waiting.snapshot() {
		snap.Waiting = append(snap.Waiting, WaitingSnapshot{
			TaskID:        item.TaskID,
			Kind:          item.Kind.Name(),
			Retries:       item.Retries,
			NextAttemptAt: item.NextAttemptAt,
		})
	}
	return snap
}
