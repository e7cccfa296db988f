package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/ksuid"

	"github.com/datallboy/modfetch/internal/domain"
	"github.com/datallboy/modfetch/internal/event"
	"github.com/datallboy/modfetch/internal/infra/logger"
	"github.com/datallboy/modfetch/internal/store"
)

const (
	DefaultPollInterval = time.Second
	DefaultBackoffBase  = 2 * time.Second
	DefaultMaxRetries   = 3
)

// Transferer runs one transfer to completion. engine.Engine satisfies it.
type Transferer interface {
	Transfer(ctx context.Context, req domain.TransferRequest) *domain.TransferResult
}

// Resolver turns a refresh endpoint into a fresh download URL.
type Resolver interface {
	Resolve(ctx context.Context, endpoint string) (string, error)
}

// Manager owns the queue. A single processing loop takes one item at a
// time; every other method may be called from any goroutine.
type Manager struct {
	mu    sync.Mutex
	items []*domain.QueuedTransfer

	// The item the loop is running, if any
	activeID     string
	activeCancel context.CancelFunc

	loopCancel context.CancelFunc
	loopDone   chan struct{}

	store    store.QueueStore
	engine   Transferer
	bus      event.Bus
	resolver Resolver
	log      *logger.Logger

	pollInterval time.Duration
	backoffBase  time.Duration
	maxRetries   int
	now          func() time.Time

	wake chan struct{}
}

type Option func(*Manager)

func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithBackoffBase sets the base of the retry delay base*2^retryCount.
func WithBackoffBase(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.backoffBase = d
		}
	}
}

// WithMaxRetries is applied to enqueued items that don't set their own.
func WithMaxRetries(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxRetries = n
		}
	}
}

func WithResolver(r Resolver) Option {
	return func(m *Manager) { m.resolver = r }
}

func withClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New loads the persisted queue. Items left in progress by a previous
// process are demoted to pending since nothing can still be running them.
func New(ctx context.Context, st store.QueueStore, engine Transferer, bus event.Bus, log *logger.Logger, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:        st,
		engine:       engine,
		bus:          bus,
		log:          log,
		pollInterval: DefaultPollInterval,
		backoffBase:  DefaultBackoffBase,
		maxRetries:   DefaultMaxRetries,
		now:          time.Now,
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}

	items, err := st.LoadQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load queue: %w", err)
	}

	demoted := 0
	for _, item := range items {
		if item.Status == domain.StatusInProgress {
			item.Status = domain.StatusPending
			demoted++
		}
	}
	m.items = items

	if demoted > 0 {
		m.log.Info("Recovered %d interrupted transfer(s) as pending", demoted)
		m.mu.Lock()
		m.persistLocked()
		m.mu.Unlock()
	}

	return m, nil
}

// Enqueue adds a transfer and wakes the loop. Id, status, timestamps and
// retry bookkeeping are always assigned here.
func (m *Manager) Enqueue(item domain.QueuedTransfer) (string, error) {
	if item.URL == "" || item.OutputPath == "" {
		return "", fmt.Errorf("%w: url and output path are required", domain.ErrInvalidRequest)
	}

	queued := item.Clone()
	queued.ID = ksuid.New().String()
	queued.Status = domain.StatusPending
	queued.QueuedAt = m.now()
	queued.StartedAt = nil
	queued.CompletedAt = nil
	queued.NextRetryAt = nil
	queued.RetryCount = 0
	queued.BytesDownloaded = 0
	queued.Speed = 0
	queued.LastError = ""
	if queued.FileName == "" {
		queued.FileName = filepath.Base(queued.OutputPath)
	}
	if queued.MaxRetries <= 0 {
		queued.MaxRetries = m.maxRetries
	}

	m.mu.Lock()
	m.items = append(m.items, queued)
	m.persistLocked()
	snapshot := queued.Clone()
	m.mu.Unlock()

	m.log.Info("Queued %s (priority %d) as %s", queued.FileName, queued.Priority, queued.ID)
	m.publish(event.TransferStatus, snapshot)
	m.signal()

	return queued.ID, nil
}

// Remove deletes an item in any state, cancelling it first if it is running.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	idx := m.indexLocked(id)
	if idx < 0 {
		m.mu.Unlock()
		return domain.ErrNotFound
	}

	m.cancelActiveLocked(id)
	m.items = append(m.items[:idx], m.items[idx+1:]...)
	m.persistLocked()
	m.mu.Unlock()

	m.log.Info("Removed %s from queue", id)
	return nil
}

// Pause stops a running transfer. The partial file stays on disk so a
// later resume continues from it.
func (m *Manager) Pause(id string) error {
	m.mu.Lock()
	item := m.findLocked(id)
	if item == nil {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	if !item.Status.CanTransition(domain.StatusPaused) {
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot pause a %s transfer", domain.ErrInvalidTransition, item.Status)
	}

	item.Status = domain.StatusPaused
	item.Speed = 0
	m.cancelActiveLocked(id)
	m.persistLocked()
	snapshot := item.Clone()
	m.mu.Unlock()

	m.log.Info("Paused %s", snapshot.FileName)
	m.publish(event.TransferStatus, snapshot)
	return nil
}

// Resume puts a paused item back in line.
func (m *Manager) Resume(id string) error {
	m.mu.Lock()
	item := m.findLocked(id)
	if item == nil {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	if item.Status != domain.StatusPaused {
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot resume a %s transfer", domain.ErrInvalidTransition, item.Status)
	}

	item.Status = domain.StatusPending
	item.NextRetryAt = nil
	m.persistLocked()
	snapshot := item.Clone()
	m.mu.Unlock()

	m.log.Info("Resumed %s", snapshot.FileName)
	m.publish(event.TransferStatus, snapshot)
	m.signal()
	return nil
}

// Clear empties the queue, cancelling the running transfer if there is one.
func (m *Manager) Clear() {
	m.mu.Lock()
	if m.activeCancel != nil {
		m.activeCancel()
	}
	n := len(m.items)
	m.items = []*domain.QueuedTransfer{}
	m.persistLocked()
	m.mu.Unlock()

	m.log.Info("Cleared %d item(s) from queue", n)
}

func (m *Manager) Get(id string) (*domain.QueuedTransfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := m.findLocked(id)
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item.Clone(), nil
}

// List returns copies of every item in enqueue order.
func (m *Manager) List() []*domain.QueuedTransfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// ActiveID reports the id of the running item, or "".
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// StartProcessing launches the loop. Calling it while the loop runs is a
// logged no-op.
func (m *Manager) StartProcessing(ctx context.Context) {
	m.mu.Lock()
	if m.loopDone != nil {
		m.mu.Unlock()
		m.log.Info("Queue processing already running")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.loopCancel = cancel
	m.loopDone = done
	m.mu.Unlock()

	go func() {
		m.run(loopCtx)

		m.mu.Lock()
		if m.loopDone == done {
			m.loopCancel = nil
			m.loopDone = nil
		}
		m.mu.Unlock()

		cancel()
		close(done)
	}()
}

// StopProcessing cancels the loop and waits for it to exit. A transfer it
// interrupts goes back to pending rather than paused, so it resumes
// automatically on the next StartProcessing.
func (m *Manager) StopProcessing() {
	m.mu.Lock()
	cancel, done := m.loopCancel, m.loopDone
	if done == nil {
		m.mu.Unlock()
		m.log.Debug("Queue processing is not running")
		return
	}
	m.mu.Unlock()

	cancel()
	<-done

	m.log.Info("Queue processing stopped")
}

func (m *Manager) run(ctx context.Context) {
	m.log.Info("Queue processing started")

	for {
		if ctx.Err() != nil {
			return
		}

		job, wait := m.claimNext(ctx)
		if job == nil {
			timer := time.NewTimer(wait)
			select {
			case <-m.wake:
			case <-timer.C:
			case <-ctx.Done():
			}
			timer.Stop()
			continue
		}

		m.publish(event.TransferStatus, job.started)
		m.process(ctx, job)
	}
}

type job struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	req     domain.TransferRequest
	started *domain.QueuedTransfer
}

// claimNext picks the best eligible item and marks it in progress. With
// nothing eligible it returns how long to idle: the poll interval, or less
// when a backoff expires sooner.
func (m *Manager) claimNext(ctx context.Context) (*job, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	wait := m.pollInterval

	var next *domain.QueuedTransfer
	for _, item := range m.items {
		if item.Status != domain.StatusPending {
			continue
		}
		if !item.ReadyAt(now) {
			if d := item.NextRetryAt.Sub(now); d < wait {
				wait = d
			}
			continue
		}
		// Strictly better only, so equal items keep enqueue order
		if next == nil || item.Priority < next.Priority ||
			(item.Priority == next.Priority && item.QueuedAt.Before(next.QueuedAt)) {
			next = item
		}
	}

	if next == nil {
		return nil, wait
	}

	next.Status = domain.StatusInProgress
	next.StartedAt = domain.TimePtr(now)
	next.NextRetryAt = nil

	jobCtx, cancel := context.WithCancel(ctx)
	m.activeID = next.ID
	m.activeCancel = cancel
	m.persistLocked()

	j := &job{
		id:      next.ID,
		ctx:     jobCtx,
		cancel:  cancel,
		req:     m.requestLocked(next),
		started: next.Clone(),
	}

	m.log.Info("Starting %s (attempt %d of %d)", next.FileName, next.RetryCount+1, next.MaxRetries)
	return j, 0
}

func (m *Manager) process(loopCtx context.Context, j *job) {
	defer j.cancel()

	result := m.engine.Transfer(j.ctx, j.req)

	m.mu.Lock()
	m.activeID = ""
	m.activeCancel = nil

	item := m.findLocked(j.id)
	if item == nil {
		// Removed while it was running
		m.mu.Unlock()
		return
	}

	// A cancelled loop means shutdown, not a user pause
	m.applyResultLocked(item, result, loopCtx.Err() != nil)
	m.persistLocked()
	snapshot := item.Clone()
	m.mu.Unlock()

	m.publish(event.TransferStatus, snapshot)
	if snapshot.Status.IsTerminal() {
		m.publish(event.TransferFinished, snapshot)
	}
}

func (m *Manager) applyResultLocked(item *domain.QueuedTransfer, result *domain.TransferResult, stopped bool) {
	now := m.now()
	item.Speed = 0
	if result.TotalBytes > 0 {
		item.TotalBytes = result.TotalBytes
	}
	if result.ETag != "" {
		item.Options.ETag = result.ETag
	}

	switch {
	case result.Success:
		item.Status = domain.StatusCompleted
		item.CompletedAt = domain.TimePtr(now)
		item.RetryCount = 0
		item.NextRetryAt = nil
		item.LastError = ""
		if item.TotalBytes > 0 {
			item.BytesDownloaded = item.TotalBytes
		}
		m.log.Info("Completed %s (%s)", item.FileName, humanize.Bytes(uint64(item.TotalBytes)))

	case item.Status != domain.StatusInProgress:
		// Paused (or paused and resumed) while running: the user's choice stands

	case result.Cancelled:
		if stopped {
			item.Status = domain.StatusPending
		} else {
			item.Status = domain.StatusPaused
		}
		m.log.Info("Transfer %s interrupted, now %s", item.FileName, item.Status)

	default:
		item.RetryCount++
		item.LastError = result.Error
		if item.RetryCount >= item.MaxRetries {
			item.Status = domain.StatusFailed
			item.NextRetryAt = nil
			m.log.Error("Transfer %s failed after %d attempt(s): %s", item.FileName, item.RetryCount, result.Error)
			return
		}

		delay := m.backoff(item.RetryCount)
		item.Status = domain.StatusPending
		item.NextRetryAt = domain.TimePtr(now.Add(delay))
		m.log.Warn("Transfer %s failed (attempt %d of %d), retrying in %s: %s",
			item.FileName, item.RetryCount, item.MaxRetries, delay, result.Error)
	}
}

// backoff is base * 2^retryCount.
func (m *Manager) backoff(retryCount int) time.Duration {
	if retryCount > 30 {
		retryCount = 30
	}
	return m.backoffBase * time.Duration(1<<uint(retryCount))
}

func (m *Manager) requestLocked(item *domain.QueuedTransfer) domain.TransferRequest {
	opts := item.Clone().Options
	req := domain.TransferRequest{
		ID:          item.ID,
		URL:         item.URL,
		Destination: item.OutputPath,
		Options:     opts,
		OnProgress:  m.progressHandler(item.ID),
	}

	if endpoint := opts.RefreshEndpoint; endpoint != "" && m.resolver != nil {
		req.Refresh = func(ctx context.Context, staleURL string) (string, error) {
			m.log.Debug("Refreshing stale link %s via %s", staleURL, endpoint)
			return m.resolver.Resolve(ctx, endpoint)
		}
	}
	return req
}

// progressHandler mirrors engine progress onto the item. Progress is never
// persisted on its own.
func (m *Manager) progressHandler(id string) func(domain.Progress) {
	return func(p domain.Progress) {
		m.mu.Lock()
		if item := m.findLocked(id); item != nil && item.Status == domain.StatusInProgress {
			item.BytesDownloaded = p.BytesDownloaded
			if p.TotalBytes > 0 {
				item.TotalBytes = p.TotalBytes
			}
			item.Speed = p.Speed
		}
		m.mu.Unlock()

		p.TransferID = id
		m.publish(event.TransferProgress, p)
	}
}

func (m *Manager) cancelActiveLocked(id string) {
	if m.activeID == id && m.activeCancel != nil {
		m.activeCancel()
	}
}

// persistLocked writes the full snapshot. Failures are logged, never
// returned: the in-memory queue stays authoritative.
func (m *Manager) persistLocked() {
	if err := m.store.SaveQueue(context.Background(), m.items); err != nil {
		m.log.Error("Failed to persist queue: %v", err)
	}
}

func (m *Manager) snapshotLocked() []*domain.QueuedTransfer {
	out := make([]*domain.QueuedTransfer, len(m.items))
	for i, item := range m.items {
		out[i] = item.Clone()
	}
	return out
}

func (m *Manager) findLocked(id string) *domain.QueuedTransfer {
	if idx := m.indexLocked(id); idx >= 0 {
		return m.items[idx]
	}
	return nil
}

func (m *Manager) indexLocked(id string) int {
	for i, item := range m.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
		// Signal already pending, no need to block
	}
}

func (m *Manager) publish(topic event.Type, payload any) {
	if m.bus == nil {
		return
	}
	id := ""
	switch p := payload.(type) {
	case *domain.QueuedTransfer:
		id = p.ID
	case domain.Progress:
		id = p.TransferID
	}
	m.bus.Publish(topic, id, payload)
}
