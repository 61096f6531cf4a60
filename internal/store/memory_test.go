package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot-app/postpilot/internal/models"
)

func newTestPost(t *testing.T, m *Memory, status models.Status, scheduledAt time.Time) *models.ScheduledPost {
	t.Helper()
	post := &models.ScheduledPost{
		UserID:      "user-1",
		OrgID:       "org-1",
		Provider:    models.ProviderInstagram,
		Caption:     "hello world",
		ScheduledAt: scheduledAt,
		Status:      status,
	}
	require.NoError(t, m.Create(context.Background(), post))
	return post
}

func TestMemoryClaimAtMostOnce(t *testing.T) {
	m := NewMemory(3)
	post := newTestPost(t, m, models.StatusPending, time.Now().Add(-time.Minute))

	const claimers = 32
	var wg sync.WaitGroup
	winners := make(chan *models.ScheduledPost, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := m.Claim(context.Background(), post.ID)
			assert.NoError(t, err)
			if claimed != nil {
				winners <- claimed
			}
		}()
	}
	wg.Wait()
	close(winners)

	var count int
	for claimed := range winners {
		count++
		assert.Equal(t, models.StatusProcessing, claimed.Status)
		assert.NotEmpty(t, claimed.LockToken)
		assert.False(t, claimed.ProcessingStartedAt.IsZero())
	}
	assert.Equal(t, 1, count, "exactly one claimer must win")
}

func TestMemoryClaimSkipsUnclaimableStatuses(t *testing.T) {
	m := NewMemory(3)
	for _, status := range []models.Status{
		models.StatusDraft,
		models.StatusReview,
		models.StatusProcessing,
		models.StatusPosted,
		models.StatusFailed,
		models.StatusRejected,
	} {
		post := newTestPost(t, m, status, time.Now().Add(-time.Minute))
		claimed, err := m.Claim(context.Background(), post.ID)
		require.NoError(t, err)
		assert.Nil(t, claimed, "status %s must not be claimable", status)
	}
}

func TestMemoryListDue(t *testing.T) {
	m := NewMemory(3)
	now := time.Now()

	later := newTestPost(t, m, models.StatusPending, now.Add(-time.Minute))
	earlier := newTestPost(t, m, models.StatusRetry, now.Add(-time.Hour))
	newTestPost(t, m, models.StatusPending, now.Add(time.Hour))
	newTestPost(t, m, models.StatusDraft, now.Add(-time.Hour))
	newTestPost(t, m, models.StatusPosted, now.Add(-time.Hour))

	due, err := m.ListDue(context.Background(), now, 0)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, earlier.ID, due[0].ID, "due posts come back oldest first")
	assert.Equal(t, later.ID, due[1].ID)
}

func TestMemoryListDueHonorsLimit(t *testing.T) {
	m := NewMemory(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		newTestPost(t, m, models.StatusPending, now.Add(-time.Duration(i+1)*time.Minute))
	}

	due, err := m.ListDue(context.Background(), now, 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestMemoryMarkFailedSettlesStatus(t *testing.T) {
	m := NewMemory(3)
	post := newTestPost(t, m, models.StatusPending, time.Now().Add(-time.Minute))
	ctx := context.Background()

	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := m.Claim(ctx, post.ID)
		require.NoError(t, err)
		require.NotNil(t, claimed)

		count, err := m.MarkFailed(ctx, post.ID, "boom")
		require.NoError(t, err)
		assert.Equal(t, attempt, count)

		got, err := m.GetByID(ctx, post.ID, Tenant{UserID: "user-1", OrgID: "org-1"})
		require.NoError(t, err)
		assert.Equal(t, "boom", got.LastError)
		assert.Empty(t, got.LockToken)

		if attempt < 3 {
			assert.Equal(t, models.StatusRetry, got.Status)
		} else {
			assert.Equal(t, models.StatusFailed, got.Status)
		}
	}

	claimed, err := m.Claim(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, claimed, "terminally failed posts are never claimed again")
}

func TestMemoryMarkPostedClearsFailureState(t *testing.T) {
	m := NewMemory(3)
	post := newTestPost(t, m, models.StatusPending, time.Now().Add(-time.Minute))
	ctx := context.Background()

	_, err := m.Claim(ctx, post.ID)
	require.NoError(t, err)
	_, err = m.MarkFailed(ctx, post.ID, "transient")
	require.NoError(t, err)

	_, err = m.Claim(ctx, post.ID)
	require.NoError(t, err)
	require.NoError(t, m.MarkPosted(ctx, post.ID, "ext_123", "scheduled:x:attempt:2"))

	got, err := m.GetByID(ctx, post.ID, Tenant{UserID: "user-1", OrgID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPosted, got.Status)
	assert.Equal(t, "ext_123", got.ExternalID)
	assert.Equal(t, "scheduled:x:attempt:2", got.LastIdempotencyKey)
	assert.Zero(t, got.RetryCount)
	assert.Empty(t, got.LastError)
	assert.Empty(t, got.LockToken)

	// Marking the same success twice leaves the record unchanged.
	require.NoError(t, m.MarkPosted(ctx, post.ID, "ext_123", "scheduled:x:attempt:2"))
	again, err := m.GetByID(ctx, post.ID, Tenant{UserID: "user-1", OrgID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPosted, again.Status)
	assert.Equal(t, "ext_123", again.ExternalID)
	assert.Zero(t, again.RetryCount)
}

func TestMemoryRecoverStaleProcessing(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	timeout := 15 * time.Minute

	stale := newTestPost(t, m, models.StatusPending, time.Now().Add(-2*time.Hour))
	fresh := newTestPost(t, m, models.StatusPending, time.Now().Add(-2*time.Hour))

	base := time.Now()
	m.Now = func() time.Time { return base.Add(-timeout - time.Minute) }
	_, err := m.Claim(ctx, stale.ID)
	require.NoError(t, err)

	m.Now = func() time.Time { return base.Add(-time.Minute) }
	_, err = m.Claim(ctx, fresh.ID)
	require.NoError(t, err)

	m.Now = func() time.Time { return base }
	recovered, err := m.RecoverStaleProcessing(ctx, timeout)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	tenant := Tenant{UserID: "user-1", OrgID: "org-1"}
	got, err := m.GetByID(ctx, stale.ID, tenant)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRetry, got.Status)
	assert.Contains(t, got.LastError, "stale processing lock")
	assert.Empty(t, got.LockToken)

	// Recovered posts are claimable again.
	claimed, err := m.Claim(ctx, stale.ID)
	require.NoError(t, err)
	assert.NotNil(t, claimed)

	still, err := m.GetByID(ctx, fresh.ID, tenant)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, still.Status)
}

func TestMemoryRescheduleClearError(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	tenant := Tenant{UserID: "user-1", OrgID: "org-1"}
	post := newTestPost(t, m, models.StatusPending, time.Now().Add(-time.Minute))

	_, err := m.Claim(ctx, post.ID)
	require.NoError(t, err)
	_, err = m.MarkFailed(ctx, post.ID, "transient")
	require.NoError(t, err)

	when := time.Now().Add(time.Hour)
	got, err := m.Reschedule(ctx, post.ID, tenant, when, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, got.LastError)
	assert.True(t, got.ScheduledAt.Equal(when))

	got, err = m.Reschedule(ctx, post.ID, tenant, when, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRetry, got.Status)
}

func TestMemoryTenantScope(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	post := newTestPost(t, m, models.StatusPending, time.Now())

	_, err := m.GetByID(ctx, post.ID, Tenant{UserID: "someone-else", OrgID: "org-1"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.GetByID(ctx, post.ID, Tenant{UserID: "user-1", OrgID: "other-org"})
	assert.ErrorIs(t, err, ErrNotFound)

	// Empty org scope matches any org for the same user.
	got, err := m.GetByID(ctx, post.ID, Tenant{UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, post.ID, got.ID)

	_, err = m.Reschedule(ctx, post.ID, Tenant{UserID: "someone-else"}, time.Now(), true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUpdateApproval(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	tenant := Tenant{UserID: "user-1", OrgID: "org-1"}

	post := newTestPost(t, m, models.StatusReview, time.Now().Add(time.Hour))
	got, err := m.UpdateApproval(ctx, post.ID, tenant, models.ApprovalApproved, "reviewer-1", "lgtm")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, models.ApprovalApproved, got.ApprovalStatus)
	assert.Equal(t, "reviewer-1", got.ApprovedBy)
	assert.False(t, got.ApprovedAt.IsZero())

	rejected := newTestPost(t, m, models.StatusReview, time.Now().Add(time.Hour))
	got, err = m.UpdateApproval(ctx, rejected.ID, tenant, models.ApprovalRejected, "reviewer-1", "off brand")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, got.Status)
	assert.Equal(t, "off brand", got.ReviewNotes)

	claimed, err := m.Claim(ctx, rejected.ID)
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestMemoryAttemptLogNewestFirst(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	tenant := Tenant{UserID: "user-1", OrgID: "org-1"}

	for i := 1; i <= 3; i++ {
		require.NoError(t, m.Append(ctx, &models.AttemptLogEntry{
			ScheduledID: "post-1",
			UserID:      "user-1",
			OrgID:       "org-1",
			Status:      models.AttemptRetry,
			Attempt:     i,
		}))
	}
	require.NoError(t, m.Append(ctx, &models.AttemptLogEntry{
		ScheduledID: "post-2",
		UserID:      "user-1",
		OrgID:       "org-1",
		Status:      models.AttemptSuccess,
		Attempt:     1,
	}))

	entries, err := m.ListByScheduledID(ctx, "post-1", tenant)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 3, entries[0].Attempt)
	assert.Equal(t, 1, entries[2].Attempt)

	other, err := m.ListByScheduledID(ctx, "post-1", Tenant{UserID: "someone-else"})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemoryConnectionDirectory(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	tenant := Tenant{UserID: "user-1", OrgID: "org-1"}

	conn := &models.Connection{
		UserID:       "user-1",
		OrgID:        "org-1",
		Provider:     models.ProviderFacebook,
		AccessToken:  "tok",
		RefreshToken: "refresh",
		PageID:       "page-1",
		ExpiresAt:    time.Now().Add(10 * time.Minute),
	}
	require.NoError(t, m.PutConnection(conn))

	conns, err := m.List(ctx, tenant)
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "page-1", conns[0].PageID)

	expiring, err := m.ListExpiring(ctx, time.Now().Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, expiring, 1)

	newExpiry := time.Now().Add(24 * time.Hour)
	require.NoError(t, m.SetToken(ctx, conn.ID, "tok2", "", newExpiry))

	conns, err = m.List(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, "tok2", conns[0].AccessToken)
	assert.Equal(t, "refresh", conns[0].RefreshToken, "empty refresh token leaves the old one")

	expiring, err = m.ListExpiring(ctx, time.Now().Add(30*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, expiring)

	assert.ErrorIs(t, m.SetToken(ctx, "missing", "x", "y", time.Now()), ErrNotFound)
}
