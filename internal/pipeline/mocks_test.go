package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/groupsense/groupsense/internal/core/domain"
	errs "github.com/groupsense/groupsense/internal/core/errors"
	"github.com/groupsense/groupsense/internal/intelligence"
)

// mockRepo is an in-memory Repository with the same transition guards as
// the SQL layer.
type mockRepo struct {
	mu sync.Mutex

	batches   map[string]*domain.MessageBatch
	messages  []domain.Message
	groupCtx  map[string]*domain.GroupContext
	admins    map[string][]domain.Admin
	alerts    []domain.Alert
	summaries []domain.Summary
	analytics map[string]*domain.GroupAnalytics
	delivered []domain.DeliveryItem

	failInsertAlerts    bool
	failInsertSummary   bool
	failUpsertAnalytics bool
	failGroupContext    bool
	failOrgAdmins       bool
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		batches:   make(map[string]*domain.MessageBatch),
		groupCtx:  make(map[string]*domain.GroupContext),
		admins:    make(map[string][]domain.Admin),
		analytics: make(map[string]*domain.GroupAnalytics),
	}
}

var errMockFailure = errors.New("mock failure")

func (m *mockRepo) OldestPendingBatch(_ context.Context) (*domain.MessageBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var oldest *domain.MessageBatch

	for _, b := range m.batches {
		if b.Status != domain.BatchPending {
			continue
		}

		if oldest == nil || b.CreatedAt.Before(oldest.CreatedAt) {
			oldest = b
		}
	}

	if oldest == nil {
		return nil, errs.ErrNoPendingBatch
	}

	cp := *oldest

	return &cp, nil
}

func (m *mockRepo) BatchByID(_ context.Context, id string) (*domain.MessageBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok {
		return nil, errs.ErrBatchNotFound
	}

	cp := *b

	return &cp, nil
}

func (m *mockRepo) ClaimBatch(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok || b.Status != domain.BatchPending {
		return false, nil
	}

	now := time.Now()
	b.Status = domain.BatchProcessing
	b.LockedAt = &now

	return true, nil
}

func (m *mockRepo) FinalizeBatchDone(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok || b.Status != domain.BatchProcessing {
		return errs.ErrBatchNotPending
	}

	now := time.Now()
	b.Status = domain.BatchDone
	b.ProcessedAt = &now
	b.Error = nil

	return nil
}

func (m *mockRepo) FinalizeBatchError(_ context.Context, id, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.batches[id]
	if !ok || b.Status != domain.BatchProcessing {
		return errs.ErrBatchNotPending
	}

	now := time.Now()
	b.Status = domain.BatchError
	b.ProcessedAt = &now
	b.Error = &errMsg

	return nil
}

func (m *mockRepo) RequeueStaleBatches(_ context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64

	for _, b := range m.batches {
		if b.Status == domain.BatchProcessing && b.LockedAt != nil && time.Since(*b.LockedAt) > olderThan {
			b.Status = domain.BatchPending
			b.LockedAt = nil
			n++
		}
	}

	return n, nil
}

func (m *mockRepo) PendingBatchCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0

	for _, b := range m.batches {
		if b.Status == domain.BatchPending {
			count++
		}
	}

	return count, nil
}

func (m *mockRepo) UnbatchedMessages(_ context.Context, groupID string, cutoff time.Time, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Message

	for _, msg := range m.messages {
		if msg.GroupID == groupID && msg.BatchID == nil && !msg.MessageTS.After(cutoff) {
			out = append(out, msg)
		}

		if len(out) == limit {
			break
		}
	}

	return out, nil
}

func (m *mockRepo) CreateBatch(_ context.Context, orgID, groupID string, msgs []domain.Message) (*domain.MessageBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(msgs) == 0 {
		return nil, errs.ErrNoMessages
	}

	batch := &domain.MessageBatch{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		GroupID:        groupID,
		Status:         domain.BatchPending,
		StartTS:        msgs[0].MessageTS,
		EndTS:          msgs[len(msgs)-1].MessageTS,
		MessageCount:   len(msgs),
		CreatedAt:      time.Now(),
	}

	for _, sel := range msgs {
		for i := range m.messages {
			if m.messages[i].ID != sel.ID {
				continue
			}

			if m.messages[i].BatchID != nil {
				return nil, fmt.Errorf("message %s already batched", sel.ID)
			}

			id := batch.ID
			m.messages[i].BatchID = &id
		}
	}

	m.batches[batch.ID] = batch

	cp := *batch

	return &cp, nil
}

func (m *mockRepo) MessagesForBatch(_ context.Context, batchID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Message

	for _, msg := range m.messages {
		if msg.BatchID != nil && *msg.BatchID == batchID {
			out = append(out, msg)
		}
	}

	return out, nil
}

func (m *mockRepo) GroupContext(_ context.Context, groupID string) (*domain.GroupContext, error) {
	if m.failGroupContext {
		return nil, errMockFailure
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	gc, ok := m.groupCtx[groupID]
	if !ok {
		return nil, errs.ErrGroupNotFound
	}

	cp := *gc

	return &cp, nil
}

func (m *mockRepo) OrgAdmins(_ context.Context, orgID string) ([]domain.Admin, error) {
	if m.failOrgAdmins {
		return nil, errMockFailure
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.admins[orgID], nil
}

func (m *mockRepo) InsertAlerts(_ context.Context, alerts []domain.Alert) ([]domain.Alert, error) {
	if m.failInsertAlerts {
		return nil, errMockFailure
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := make([]domain.Alert, len(alerts))

	for i, a := range alerts {
		a.ID = uuid.NewString()
		a.CreatedAt = time.Now()
		m.alerts = append(m.alerts, a)
		inserted[i] = a
	}

	return inserted, nil
}

func (m *mockRepo) InsertSummary(_ context.Context, s *domain.Summary) error {
	if m.failInsertSummary {
		return errMockFailure
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = uuid.NewString()
	m.summaries = append(m.summaries, *s)

	return nil
}

func (m *mockRepo) UpsertGroupAnalytics(_ context.Context, ga *domain.GroupAnalytics) error {
	if m.failUpsertAnalytics {
		return errMockFailure
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%s|%d|%d", ga.GroupID, ga.PeriodStart.UnixNano(), ga.PeriodEnd.UnixNano())

	if existing, ok := m.analytics[key]; ok {
		existing.SentimentScore = ga.SentimentScore
		existing.MessageCount = ga.MessageCount
		existing.AlertCountTotal = ga.AlertCountTotal

		return nil
	}

	cp := *ga
	cp.ID = uuid.NewString()
	m.analytics[key] = &cp

	return nil
}

func (m *mockRepo) EnqueueDelivery(_ context.Context, item *domain.DeliveryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item.ID = uuid.NewString()
	item.Status = domain.DeliveryPending
	m.delivered = append(m.delivered, *item)

	return nil
}

// mockIntel returns a fixed analysis or error.
type mockIntel struct {
	mu       sync.Mutex
	analysis *intelligence.Analysis
	err      error
	requests []*intelligence.Request
}

func (m *mockIntel) Analyze(_ context.Context, req *intelligence.Request) (*intelligence.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.err != nil {
		return nil, m.err
	}

	return m.analysis, nil
}
