package store

import (
	"context"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/postpilot-app/postpilot/internal/models"
)

// Memory is the in-process fallback store used when no database is
// configured, and the store of record in tests. It implements PostStore,
// ConnectionDirectory, and AttemptLog behind a single mutex and preserves the
// same compare-and-swap claim discipline as the Postgres store: the status
// check and the transition to processing happen under one critical section.
type Memory struct {
	mu          sync.Mutex
	posts       map[string]*models.ScheduledPost
	connections map[string]*models.Connection
	attempts    []*models.AttemptLogEntry
	maxAttempts int

	// Now is the clock hook; tests may replace it.
	Now func() time.Time
}

func NewMemory(maxAttempts int) *Memory {
	return &Memory{
		posts:       make(map[string]*models.ScheduledPost),
		connections: make(map[string]*models.Connection),
		maxAttempts: maxAttempts,
		Now:         time.Now,
	}
}

func copyPost(p *models.ScheduledPost) *models.ScheduledPost {
	dup := *p
	return &dup
}

func copyConnection(c *models.Connection) *models.Connection {
	dup := *c
	return &dup
}

func (m *Memory) matchTenant(userID, orgID string, t Tenant) bool {
	if userID != t.UserID {
		return false
	}
	return t.OrgID == "" || orgID == t.OrgID
}

func (m *Memory) Create(ctx context.Context, post *models.ScheduledPost) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if post.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return err
		}
		post.ID = id
	}
	now := m.Now()
	post.CreatedAt = now
	post.UpdatedAt = now
	m.posts[post.ID] = copyPost(post)
	return nil
}

func (m *Memory) GetByID(ctx context.Context, id string, t Tenant) (*models.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok || !m.matchTenant(post.UserID, post.OrgID, t) {
		return nil, ErrNotFound
	}
	return copyPost(post), nil
}

func (m *Memory) ListByTenant(ctx context.Context, t Tenant) ([]*models.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var posts []*models.ScheduledPost
	for _, post := range m.posts {
		if m.matchTenant(post.UserID, post.OrgID, t) {
			posts = append(posts, copyPost(post))
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ScheduledAt.After(posts[j].ScheduledAt)
	})
	return posts, nil
}

func (m *Memory) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit = clampLimit(limit)

	var due []*models.ScheduledPost
	for _, post := range m.posts {
		if post.Claimable() && !post.ScheduledAt.After(now) {
			due = append(due, copyPost(post))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *Memory) Claim(ctx context.Context, id string) (*models.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok || !post.Claimable() {
		return nil, nil
	}

	lockToken, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	now := m.Now()
	post.Status = models.StatusProcessing
	post.LockToken = lockToken
	post.ProcessingStartedAt = now
	post.UpdatedAt = now
	return copyPost(post), nil
}

func (m *Memory) MarkPosted(ctx context.Context, id, externalID, idempotencyKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok {
		return ErrNotFound
	}
	post.Status = models.StatusPosted
	post.ExternalID = externalID
	post.LastIdempotencyKey = idempotencyKey
	post.RetryCount = 0
	post.LastError = ""
	post.LockToken = ""
	post.ProcessingStartedAt = time.Time{}
	post.UpdatedAt = m.Now()
	return nil
}

func (m *Memory) MarkFailed(ctx context.Context, id, errorMessage string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok {
		return 0, ErrNotFound
	}
	post.RetryCount++
	post.LastError = errorMessage
	post.LockToken = ""
	post.ProcessingStartedAt = time.Time{}
	post.UpdatedAt = m.Now()
	if post.RetryCount >= m.maxAttempts {
		post.Status = models.StatusFailed
	} else {
		post.Status = models.StatusRetry
	}
	return post.RetryCount, nil
}

func (m *Memory) Reschedule(ctx context.Context, id string, t Tenant, when time.Time, clearError bool) (*models.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok || !m.matchTenant(post.UserID, post.OrgID, t) {
		return nil, ErrNotFound
	}
	post.ScheduledAt = when
	if clearError {
		post.Status = models.StatusPending
		post.LastError = ""
	} else {
		post.Status = models.StatusRetry
	}
	post.LockToken = ""
	post.ProcessingStartedAt = time.Time{}
	post.UpdatedAt = m.Now()
	return copyPost(post), nil
}

func (m *Memory) UpdateApproval(ctx context.Context, id string, t Tenant, approval models.ApprovalStatus, reviewer, notes string) (*models.ScheduledPost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	post, ok := m.posts[id]
	if !ok || !m.matchTenant(post.UserID, post.OrgID, t) {
		return nil, ErrNotFound
	}
	now := m.Now()
	post.ApprovalStatus = approval
	post.ApprovedBy = reviewer
	post.ApprovedAt = now
	post.ReviewNotes = notes
	if approval == models.ApprovalRejected {
		post.Status = models.StatusRejected
	} else {
		post.Status = models.StatusPending
	}
	post.UpdatedAt = now
	return copyPost(post), nil
}

func (m *Memory) RecoverStaleProcessing(ctx context.Context, timeout time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	cutoff := now.Add(-timeout)
	recovered := 0
	for _, post := range m.posts {
		if post.Status != models.StatusProcessing {
			continue
		}
		if post.ProcessingStartedAt.IsZero() || post.ProcessingStartedAt.After(cutoff) {
			continue
		}
		post.Status = models.StatusRetry
		post.LastError = staleLockError(timeout)
		post.LockToken = ""
		post.ProcessingStartedAt = time.Time{}
		post.UpdatedAt = now
		recovered++
	}
	return recovered, nil
}

// PutConnection seeds a connection; the OAuth callback flow does this in
// production.
func (m *Memory) PutConnection(conn *models.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conn.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return err
		}
		conn.ID = id
	}
	m.connections[conn.ID] = copyConnection(conn)
	return nil
}

func (m *Memory) List(ctx context.Context, t Tenant) ([]*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var connections []*models.Connection
	for _, conn := range m.connections {
		if m.matchTenant(conn.UserID, conn.OrgID, t) {
			connections = append(connections, copyConnection(conn))
		}
	}
	sort.Slice(connections, func(i, j int) bool {
		return connections[i].CreatedAt.Before(connections[j].CreatedAt)
	})
	return connections, nil
}

func (m *Memory) ListExpiring(ctx context.Context, before time.Time) ([]*models.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var connections []*models.Connection
	for _, conn := range m.connections {
		if conn.RefreshToken == "" {
			continue
		}
		if conn.ExpiresAt.IsZero() || !conn.ExpiresAt.After(before) {
			connections = append(connections, copyConnection(conn))
		}
	}
	return connections, nil
}

func (m *Memory) SetToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[id]
	if !ok {
		return ErrNotFound
	}
	if accessToken != "" {
		conn.AccessToken = accessToken
	}
	if refreshToken != "" {
		conn.RefreshToken = refreshToken
	}
	conn.ExpiresAt = expiresAt
	conn.UpdatedAt = m.Now()
	return nil
}

func (m *Memory) Append(ctx context.Context, entry *models.AttemptLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return err
		}
		entry.ID = id
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.Now()
	}
	dup := *entry
	m.attempts = append(m.attempts, &dup)
	return nil
}

func (m *Memory) ListByScheduledID(ctx context.Context, scheduledID string, t Tenant) ([]*models.AttemptLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var entries []*models.AttemptLogEntry
	for i := len(m.attempts) - 1; i >= 0; i-- {
		e := m.attempts[i]
		if e.ScheduledID != scheduledID {
			continue
		}
		if !m.matchTenant(e.UserID, e.OrgID, t) {
			continue
		}
		dup := *e
		entries = append(entries, &dup)
	}
	return entries, nil
}
