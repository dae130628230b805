package task

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/domain"
	"github.com/phrazzld/mediaforge-api/internal/events"
	"github.com/phrazzld/mediaforge-api/internal/processing"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory provider. Jobs report "running" until a test
// changes their status.
type fakeClient struct {
	mu sync.Mutex

	nextID    int
	created   []processing.JobSpec
	statuses  map[string]processing.StatusReport
	results   map[string]processing.Result
	resultErr error
	cancelled []string
	running   int
	peak      int

	// createFn, when set, replaces the default CreateJob behavior.
	createFn func(ctx context.Context, spec processing.JobSpec) (string, error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		statuses: make(map[string]processing.StatusReport),
		results:  make(map[string]processing.Result),
	}
}

func (c *fakeClient) CreateJob(ctx context.Context, spec processing.JobSpec) (string, error) {
	c.mu.Lock()
	fn := c.createFn
	c.mu.Unlock()
	if fn != nil {
		id, err := fn(ctx, spec)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.recordCreateLocked(id, spec)
		c.mu.Unlock()
		return id, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := fmt.Sprintf("job-%d", c.nextID)
	c.recordCreateLocked(id, spec)
	return id, nil
}

func (c *fakeClient) recordCreateLocked(id string, spec processing.JobSpec) {
	c.created = append(c.created, spec)
	if _, ok := c.statuses[id]; !ok {
		c.statuses[id] = processing.StatusReport{Status: "running"}
	}
	c.running++
	if c.running > c.peak {
		c.peak = c.running
	}
}

func (c *fakeClient) GetStatus(ctx context.Context, externalID string) (processing.StatusReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	report, ok := c.statuses[externalID]
	if !ok {
		return processing.StatusReport{}, fmt.Errorf("unknown job %s", externalID)
	}
	return report, nil
}

func (c *fakeClient) GetResult(ctx context.Context, externalID string) (processing.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resultErr != nil {
		return processing.Result{}, c.resultErr
	}
	if res, ok := c.results[externalID]; ok {
		return res, nil
	}
	return processing.Result{OutputRef: "https://provider.example.com/out/" + externalID}, nil
}

func (c *fakeClient) Cancel(ctx context.Context, externalID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, externalID)
	return true, nil
}

// finish sets a job's reported status and frees it from the peak counter.
func (c *fakeClient) finish(externalID, status, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[externalID] = processing.StatusReport{Status: status, Error: errMsg}
	c.running--
}

// setStatus sets a job's reported status without touching the peak counter.
func (c *fakeClient) setStatus(externalID, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[externalID] = processing.StatusReport{Status: status}
}

func (c *fakeClient) setResult(externalID string, res processing.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[externalID] = res
}

func (c *fakeClient) createdCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.created)
}

func (c *fakeClient) createdLabels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	labels := make([]string, 0, len(c.created))
	for _, spec := range c.created {
		labels = append(labels, fmt.Sprint(spec.Input["label"]))
	}
	return labels
}

func (c *fakeClient) peakConcurrency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

func (c *fakeClient) cancelledIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cancelled...)
}

// fakeRelocator records relocations and returns CDN references.
type fakeRelocator struct {
	mu    sync.Mutex
	calls []string
	err   error
	delay time.Duration
}

func (r *fakeRelocator) Relocate(ctx context.Context, remoteRef, keyHint string) (string, error) {
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, keyHint)
	if r.err != nil {
		return "", r.err
	}
	return "https://cdn.example.com/" + keyHint, nil
}

func (r *fakeRelocator) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// recordingEmitter captures finished events.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskFinishedEvent
}

func (r *recordingEmitter) EmitEvent(ctx context.Context, event *events.TaskFinishedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEmitter) count(taskID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.TaskID == taskID {
			n++
		}
	}
	return n
}

const testKindName = "test_kind"

func newTestKind(client processing.Client) Kind {
	return NewKind(testKindName, "test", client, func(md map[string]any) (processing.JobSpec, error) {
		if md["invalid"] != nil {
			return processing.JobSpec{}, fmt.Errorf("invalid flag set")
		}
		return processing.JobSpec{Model: "test-model", Input: md}, nil
	})
}

func testConfig() Config {
	return Config{
		MaxConcurrency:    2,
		RetryDelay:        20 * time.Millisecond,
		MaxRetries:        30,
		PollInterval:      5 * time.Millisecond,
		WatchTimeout:      5 * time.Second,
		ResultTimeout:     time.Second,
		RelocationTimeout: time.Second,
		StaleAfter:        time.Minute,
		WebhookDedupSize:  16,
	}
}

type testHarness struct {
	engine    *Engine
	repo      *MemoryRepository
	client    *fakeClient
	relocator *fakeRelocator
	emitter   *recordingEmitter
}

func newHarness(t *testing.T, cfg Config) *testHarness {
	t.Helper()
	h := &testHarness{
		repo:      NewMemoryRepository(),
		client:    newFakeClient(),
		relocator: &fakeRelocator{},
		emitter:   &recordingEmitter{},
	}
	h.engine = h.newEngine(t, cfg)
	return h
}

// newEngine builds an engine over the harness collaborators without starting it.
func (h *testHarness) newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	kinds, err := NewKindRegistry(newTestKind(h.client))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := NewEngine(h.repo, kinds, h.relocator, cfg, logger, WithEventEmitter(h.emitter))
	require.NoError(t, err)
	return engine
}

func (h *testHarness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.engine.Start(context.Background()))
	t.Cleanup(h.engine.Stop)
}

func (h *testHarness) submit(t *testing.T, priority int, label string) SubmitResult {
	t.Helper()
	res, err := h.engine.Submit(context.Background(), SubmitRequest{
		Kind:     testKindName,
		Priority: priority,
		Metadata: map[string]any{"label": label},
	})
	require.NoError(t, err)
	return res
}

func (h *testHarness) record(t *testing.T, id uuid.UUID) *domain.TaskRecord {
	t.Helper()
	rec, err := h.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (h *testHarness) status(id uuid.UUID) domain.TaskStatus {
	rec, err := h.repo.Get(context.Background(), id)
	if err != nil {
		return ""
	}
	return rec.Status
}

func (h *testHarness) externalID(id uuid.UUID) string {
	rec, err := h.repo.Get(context.Background(), id)
	if err != nil || rec.ExternalID == nil {
		return ""
	}
	return *rec.ExternalID
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
