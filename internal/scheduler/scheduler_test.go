package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupsense/groupsense/internal/core/domain"
	errs "github.com/groupsense/groupsense/internal/core/errors"
	"github.com/groupsense/groupsense/internal/platform/config"
	db "github.com/groupsense/groupsense/internal/storage"
)

type mockGroups struct {
	backlogs []db.GroupBacklog
	err      error
}

func (m *mockGroups) GroupBacklogs(_ context.Context) ([]db.GroupBacklog, error) {
	return m.backlogs, m.err
}

// quietBacklog is a backlog whose newest message is old enough to be due
// under any window used in these tests.
func quietBacklog(groupID, orgID string, unbatched int) db.GroupBacklog {
	return db.GroupBacklog{
		GroupID:         groupID,
		OrganizationID:  orgID,
		Unbatched:       unbatched,
		NewestMessageTS: time.Now().Add(-24 * time.Hour),
	}
}

type mockProcessor struct {
	mu sync.Mutex

	created     []string
	createErr   error
	pending     int
	processed   int
	processErr  error
	swept       int
	gaugeCalled int
}

func (m *mockProcessor) CreateBatchForGroup(_ context.Context, orgID, groupID string) (*domain.MessageBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}

	m.created = append(m.created, groupID)
	m.pending++

	return &domain.MessageBatch{ID: groupID + "-batch", OrganizationID: orgID, GroupID: groupID}, nil
}

func (m *mockProcessor) ProcessNext(_ context.Context) (*domain.MessageBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == 0 {
		return nil, errs.ErrNoPendingBatch
	}

	m.pending--

	if m.processErr != nil {
		return nil, m.processErr
	}

	m.processed++

	return &domain.MessageBatch{ID: "batch"}, nil
}

func (m *mockProcessor) SweepStale(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.swept++

	return nil
}

func (m *mockProcessor) UpdateBacklogGauge(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gaugeCalled++
}

func newTestScheduler(groups *mockGroups, proc *mockProcessor) *Scheduler {
	cfg := &config.Config{
		BatchMaxMessages: 200,
		BatchQuietWindow: 15 * time.Minute,
	}
	logger := zerolog.Nop()

	return New(cfg, groups, proc, &logger)
}

func TestTick_CreatesAndDrains(t *testing.T) {
	groups := &mockGroups{backlogs: []db.GroupBacklog{
		quietBacklog("g1", "org1", 12),
		quietBacklog("g2", "org1", 250),
	}}
	proc := &mockProcessor{}

	newTestScheduler(groups, proc).Tick(context.Background())

	assert.Equal(t, []string{"g1", "g2"}, proc.created)
	assert.Equal(t, 2, proc.processed)
	assert.Equal(t, 0, proc.pending)
	assert.Equal(t, 1, proc.gaugeCalled)
}

func TestBacklogDue(t *testing.T) {
	now := time.Now()
	fallback := 15 * time.Minute
	maxBatch := 200

	cases := []struct {
		name    string
		backlog db.GroupBacklog
		want    bool
	}{
		{
			name:    "quiet past the global window",
			backlog: db.GroupBacklog{Unbatched: 5, NewestMessageTS: now.Add(-16 * time.Minute)},
			want:    true,
		},
		{
			name:    "still chatting below the cap",
			backlog: db.GroupBacklog{Unbatched: 5, NewestMessageTS: now.Add(-time.Minute)},
			want:    false,
		},
		{
			name:    "backlog at the size cap",
			backlog: db.GroupBacklog{Unbatched: 200, NewestMessageTS: now.Add(-time.Second)},
			want:    true,
		},
		{
			name: "group window shorter than the global one",
			backlog: db.GroupBacklog{
				Unbatched:          5,
				NewestMessageTS:    now.Add(-3 * time.Minute),
				QuietWindowSeconds: 120,
			},
			want: true,
		},
		{
			name: "group window longer than the global one",
			backlog: db.GroupBacklog{
				Unbatched:          5,
				NewestMessageTS:    now.Add(-16 * time.Minute),
				QuietWindowSeconds: 3600,
			},
			want: false,
		},
		{
			name: "zero window falls back to the global one",
			backlog: db.GroupBacklog{
				Unbatched:          5,
				NewestMessageTS:    now.Add(-16 * time.Minute),
				QuietWindowSeconds: 0,
			},
			want: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, backlogDue(tc.backlog, now, fallback, maxBatch))
		})
	}
}

func TestTick_GroupWindowOverridesGlobal(t *testing.T) {
	// Quiet for 5 minutes: short-window group is due, default group is not.
	newest := time.Now().Add(-5 * time.Minute)
	groups := &mockGroups{backlogs: []db.GroupBacklog{
		{GroupID: "g-fast", OrganizationID: "org1", Unbatched: 3, NewestMessageTS: newest, QuietWindowSeconds: 120},
		{GroupID: "g-default", OrganizationID: "org1", Unbatched: 3, NewestMessageTS: newest},
	}}
	proc := &mockProcessor{}

	newTestScheduler(groups, proc).Tick(context.Background())

	assert.Equal(t, []string{"g-fast"}, proc.created)
}

func TestTick_EmptyBacklogIsQuietNoOp(t *testing.T) {
	groups := &mockGroups{}
	proc := &mockProcessor{}

	newTestScheduler(groups, proc).Tick(context.Background())

	assert.Empty(t, proc.created)
	assert.Zero(t, proc.processed)
}

func TestTick_RacedGroupIsSkipped(t *testing.T) {
	groups := &mockGroups{backlogs: []db.GroupBacklog{quietBacklog("g1", "org1", 3)}}
	proc := &mockProcessor{createErr: errs.ErrNoMessages}

	newTestScheduler(groups, proc).Tick(context.Background())

	assert.Empty(t, proc.created)
	assert.Zero(t, proc.processed)
}

func TestTick_ProcessErrorStopsDrain(t *testing.T) {
	groups := &mockGroups{backlogs: []db.GroupBacklog{
		quietBacklog("g1", "org1", 3),
		quietBacklog("g2", "org1", 3),
	}}
	proc := &mockProcessor{processErr: assert.AnError}

	newTestScheduler(groups, proc).Tick(context.Background())

	require.Len(t, proc.created, 2)
	assert.Zero(t, proc.processed)
	// First ProcessNext consumed one item and failed; the drain stopped
	// instead of retrying within the tick.
	assert.Equal(t, 1, proc.pending)
}

func TestRun_SecondaryTickSweeps(t *testing.T) {
	groups := &mockGroups{}
	proc := &mockProcessor{}

	sched := newTestScheduler(groups, proc)
	sched.cfg.SchedulerInterval = time.Hour
	sched.cfg.JanitorInterval = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := sched.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.GreaterOrEqual(t, proc.swept, 1)
}

func TestTick_CanceledContextStopsEarly(t *testing.T) {
	groups := &mockGroups{backlogs: []db.GroupBacklog{quietBacklog("g1", "org1", 3)}}
	proc := &mockProcessor{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	newTestScheduler(groups, proc).Tick(ctx)

	assert.Empty(t, proc.created)
}
