package api

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	checkupapp "github.com/khanhnv2901/secheckup/internal/application/checkup"
	"github.com/khanhnv2901/secheckup/internal/checker"
	"github.com/khanhnv2901/secheckup/internal/domain/checkup"
	"github.com/khanhnv2901/secheckup/internal/report"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

const (
	defaultMaxCheckups = 1000
	subscriberBuffer   = 32
	defaultListLimit   = 25
	allCheckups        = ""
)

var errShuttingDown = errors.New("checkup manager is shutting down")

// Orchestrator is the part of the checkup application service the manager
// drives.
type Orchestrator interface {
	Catalog(mode checkup.Mode) *checker.Catalog
	Prepare(req checkupapp.Request) (*checkupapp.Plan, error)
	Execute(ctx context.Context, plan *checkupapp.Plan, observer checkupapp.Observer) error
	GetCheckup(ctx context.Context, id string) (*checkup.Checkup, error)
	ListCheckups(ctx context.Context, limit int) ([]*checkup.Checkup, error)
	DeleteCheckup(ctx context.Context, id string) error
}

type liveCheckup struct {
	view   checkupapp.View
	cancel context.CancelFunc
}

type subscription struct {
	checkupID string
	ch        chan checkupapp.Event
}

// CheckupManager runs checkups in the background, keeps the state of
// recent ones in memory and fans their events out to subscribers.
type CheckupManager struct {
	mu          sync.RWMutex
	orch        Orchestrator
	live        map[string]*liveCheckup
	subscribers map[*subscription]struct{}
	maxCheckups int // Maximum number of checkups to keep in memory
	logger      *zap.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewCheckupManager creates a manager. Runs it starts outlive the request
// that started them and stop on Shutdown.
func NewCheckupManager(orch Orchestrator, logger *zap.Logger) *CheckupManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &CheckupManager{
		orch:        orch,
		live:        make(map[string]*liveCheckup),
		subscribers: make(map[*subscription]struct{}),
		maxCheckups: defaultMaxCheckups,
		logger:      logger,
		baseCtx:     ctx,
		stop:        stop,
	}
}

// SetMaxCheckups configures how many checkups are retained in memory
func (m *CheckupManager) SetMaxCheckups(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max > 0 {
		m.maxCheckups = max
	}
}

// Start validates req and runs the checkup asynchronously. The returned
// view is the idle checkup.
func (m *CheckupManager) Start(ctx context.Context, req checkupapp.Request) (*checkupapp.View, error) {
	if m.baseCtx.Err() != nil {
		return nil, errShuttingDown
	}
	plan, err := m.orch.Prepare(req)
	if err != nil {
		return nil, err
	}
	view := checkupapp.NewView(plan.Checkup)

	// Shutdown stops baseCtx under mu, so no run is added once Wait begins.
	m.mu.Lock()
	if m.baseCtx.Err() != nil {
		m.mu.Unlock()
		return nil, errShuttingDown
	}
	runCtx, cancel := context.WithCancel(m.baseCtx)
	m.live[view.ID] = &liveCheckup{view: view, cancel: cancel}
	m.pruneLocked()
	m.broadcastLocked(checkupapp.Event{Kind: checkupapp.EventCheckup, CheckupID: view.ID, Checkup: cloneView(view)})
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer cancel()
		if err := m.orch.Execute(runCtx, plan, m.observe); err != nil {
			m.logger.Warn("checkup finished with error", zap.String("checkup_id", view.ID), zap.Error(err))
		}
	}()

	return cloneView(view), nil
}

// Get returns a live checkup, falling back to storage.
func (m *CheckupManager) Get(ctx context.Context, id string) (*checkupapp.View, error) {
	m.mu.RLock()
	entry, ok := m.live[id]
	var view *checkupapp.View
	if ok {
		view = cloneView(entry.view)
	}
	m.mu.RUnlock()
	if ok {
		return view, nil
	}

	c, err := m.orch.GetCheckup(ctx, id)
	if err != nil {
		return nil, err
	}
	v := checkupapp.NewView(c)
	return &v, nil
}

// List returns unfinished checkups first, then saved ones newest first.
func (m *CheckupManager) List(ctx context.Context, limit int) ([]checkupapp.View, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	m.mu.RLock()
	views := make([]checkupapp.View, 0, len(m.live))
	seen := make(map[string]struct{}, len(m.live))
	for id, entry := range m.live {
		if !entry.view.Finished() {
			views = append(views, *cloneView(entry.view))
			seen[id] = struct{}{}
		}
	}
	m.mu.RUnlock()
	sort.Slice(views, func(i, j int) bool {
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})

	saved, err := m.orch.ListCheckups(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, c := range saved {
		if _, dup := seen[c.ID()]; dup {
			continue
		}
		views = append(views, checkupapp.NewView(c))
	}
	if len(views) > limit {
		views = views[:limit]
	}
	return views, nil
}

// Delete cancels a running checkup and removes it from memory and storage.
func (m *CheckupManager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	entry, wasLive := m.live[id]
	if wasLive {
		entry.cancel()
		delete(m.live, id)
	}
	m.mu.Unlock()

	err := m.orch.DeleteCheckup(ctx, id)
	if errors.Is(err, sharedErrors.ErrCheckupNotFound) && wasLive {
		return nil
	}
	return err
}

// Cancel stops a running checkup. It reports whether one was found; the
// checkup then ends failed with a cancellation cause.
func (m *CheckupManager) Cancel(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.live[id]
	if !ok || entry.view.Finished() {
		return false
	}
	entry.cancel()
	return true
}

// Document returns the renderable form of a checkup.
func (m *CheckupManager) Document(ctx context.Context, id string) (report.Document, error) {
	view, err := m.Get(ctx, id)
	if err != nil {
		return report.Document{}, err
	}
	return view.Document(), nil
}

// Describe lists the probes of the given mode.
func (m *CheckupManager) Describe(mode string) ([]checker.ProbeDescriptor, error) {
	parsed, err := checkup.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	return m.orch.Catalog(parsed).Describe(), nil
}

// Subscribe returns a channel receiving events for checkupID, or for every
// checkup when checkupID is empty. Slow subscribers drop events.
func (m *CheckupManager) Subscribe(checkupID string) (<-chan checkupapp.Event, func()) {
	sub := &subscription{checkupID: checkupID, ch: make(chan checkupapp.Event, subscriberBuffer)}
	m.mu.Lock()
	m.subscribers[sub] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			m.mu.Lock()
			if _, ok := m.subscribers[sub]; ok {
				delete(m.subscribers, sub)
				close(sub.ch)
			}
			m.mu.Unlock()
		})
	}
}

// Shutdown cancels running checkups and waits for them to finish saving.
func (m *CheckupManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.stop()
	m.mu.Unlock()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	for sub := range m.subscribers {
		delete(m.subscribers, sub)
		close(sub.ch)
	}
	m.mu.Unlock()
	return nil
}

// observe folds an orchestrator event into the live view and broadcasts it.
func (m *CheckupManager) observe(e checkupapp.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live[e.CheckupID]
	if !ok {
		// Deleted while running; keep broadcasting so watchers see the end.
		m.broadcastLocked(e)
		return
	}
	switch e.Kind {
	case checkupapp.EventCheckup:
		if e.Checkup != nil {
			entry.view = *cloneView(*e.Checkup)
		}
	case checkupapp.EventVerdict:
		if e.Verdict != nil {
			entry.view.Verdicts = append(entry.view.Verdicts, *e.Verdict)
			entry.view.Summary = report.Summarize(entry.view.Verdicts)
		}
	}
	m.broadcastLocked(e)
}

func (m *CheckupManager) broadcastLocked(e checkupapp.Event) {
	for sub := range m.subscribers {
		if sub.checkupID != allCheckups && sub.checkupID != e.CheckupID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			m.logger.Debug("dropping event for slow subscriber",
				zap.String("checkup_id", e.CheckupID),
				zap.String("kind", string(e.Kind)),
			)
		}
	}
}

// pruneLocked drops the oldest finished checkups beyond maxCheckups. They
// remain available from storage.
func (m *CheckupManager) pruneLocked() {
	if len(m.live) <= m.maxCheckups {
		return
	}
	finished := make([]checkupapp.View, 0, len(m.live))
	for _, entry := range m.live {
		if entry.view.Finished() {
			finished = append(finished, entry.view)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].CreatedAt.Before(finished[j].CreatedAt)
	})
	toRemove := len(m.live) - m.maxCheckups
	if toRemove > len(finished) {
		toRemove = len(finished)
	}
	for i := 0; i < toRemove; i++ {
		delete(m.live, finished[i].ID)
	}
}

func cloneView(v checkupapp.View) *checkupapp.View {
	cp := v
	cp.Verdicts = append([]checker.Verdict(nil), v.Verdicts...)
	return &cp
}
