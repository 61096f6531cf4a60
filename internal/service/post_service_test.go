package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/store"
	"github.com/postpilot-app/postpilot/internal/transfer"
)

func newPostService(t *testing.T) (PostService, *store.Memory) {
	t.Helper()
	mem := store.NewMemory(3)
	return NewPostService(mem, mem), mem
}

var testTenant = store.Tenant{UserID: "user-1", OrgID: "org-1"}

func TestCreatePost(t *testing.T) {
	s, _ := newPostService(t)

	when := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Second)
	post, delay, err := s.CreatePost(context.Background(), testTenant, &transfer.PostCreation{
		Provider:    "instagram",
		Caption:     "launch day",
		MediaURL:    "https://cdn.example.com/a.jpg",
		ScheduledAt: when.Format(time.RFC3339),
	})

	require.NoError(t, err)
	assert.NotEmpty(t, post.ID)
	assert.Equal(t, models.ProviderInstagram, post.Provider)
	assert.Equal(t, models.StatusPending, post.Status)
	assert.Equal(t, models.ApprovalApproved, post.ApprovalStatus)
	assert.True(t, post.ScheduledAt.Equal(when))
	assert.InDelta(t, (2 * time.Hour).Seconds(), delay.Seconds(), 5)
}

func TestCreatePostShortTimeLayout(t *testing.T) {
	s, _ := newPostService(t)

	post, _, err := s.CreatePost(context.Background(), testTenant, &transfer.PostCreation{
		Provider:    "facebook",
		Caption:     "launch day",
		ScheduledAt: "2026-09-15T14:30",
	})

	require.NoError(t, err)
	assert.Equal(t, 2026, post.ScheduledAt.Year())
	assert.Equal(t, time.September, post.ScheduledAt.Month())
}

func TestCreatePostPastTimeDispatchesImmediately(t *testing.T) {
	s, _ := newPostService(t)

	_, delay, err := s.CreatePost(context.Background(), testTenant, &transfer.PostCreation{
		Provider:    "facebook",
		Caption:     "launch day",
		ScheduledAt: time.Now().Add(-time.Hour).Format(time.RFC3339),
	})

	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), delay)
}

func TestCreatePostValidation(t *testing.T) {
	s, _ := newPostService(t)
	ctx := context.Background()
	when := time.Now().Add(time.Hour).Format(time.RFC3339)

	_, _, err := s.CreatePost(ctx, testTenant, &transfer.PostCreation{
		Provider: "instagram", ScheduledAt: when,
	})
	assert.ErrorContains(t, err, "caption")

	_, _, err = s.CreatePost(ctx, testTenant, &transfer.PostCreation{
		Provider: "myspace", Caption: "x", ScheduledAt: when,
	})
	assert.ErrorContains(t, err, "unknown provider")

	_, _, err = s.CreatePost(ctx, testTenant, &transfer.PostCreation{
		Provider: "instagram", Caption: "x", ScheduledAt: "next tuesday",
	})
	assert.ErrorContains(t, err, "invalid scheduled time")

	_, _, err = s.CreatePost(ctx, testTenant, &transfer.PostCreation{
		Provider: "instagram", Caption: "x", ScheduledAt: when, Status: "posted",
	})
	assert.ErrorContains(t, err, "invalid initial status")
}

func TestCreatePostDraftAndReview(t *testing.T) {
	s, _ := newPostService(t)
	ctx := context.Background()
	when := time.Now().Add(time.Hour).Format(time.RFC3339)

	draft, _, err := s.CreatePost(ctx, testTenant, &transfer.PostCreation{
		Provider: "instagram", Caption: "x", ScheduledAt: when, Status: "draft",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, draft.Status)
	assert.Equal(t, models.ApprovalDraft, draft.ApprovalStatus)

	review, _, err := s.CreatePost(ctx, testTenant, &transfer.PostCreation{
		Provider: "instagram", Caption: "x", ScheduledAt: when, Status: "review",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, review.Status)
	assert.Equal(t, models.ApprovalReview, review.ApprovalStatus)
}

func TestApproveFlow(t *testing.T) {
	s, _ := newPostService(t)
	ctx := context.Background()
	when := time.Now().Add(time.Hour).Format(time.RFC3339)

	post, _, err := s.CreatePost(ctx, testTenant, &transfer.PostCreation{
		Provider: "instagram", Caption: "x", ScheduledAt: when, Status: "review",
	})
	require.NoError(t, err)

	approved, err := s.Approve(ctx, testTenant, "reviewer-1", &transfer.ApprovalRequest{
		PostID: post.ID, Decision: "approved", Notes: "lgtm",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, approved.Status)
	assert.Equal(t, "reviewer-1", approved.ApprovedBy)

	_, err = s.Approve(ctx, testTenant, "reviewer-1", &transfer.ApprovalRequest{
		PostID: post.ID, Decision: "maybe",
	})
	assert.ErrorContains(t, err, "invalid approval decision")
}

func TestRescheduleClearsError(t *testing.T) {
	s, mem := newPostService(t)
	ctx := context.Background()

	post, _, err := s.CreatePost(ctx, testTenant, &transfer.PostCreation{
		Provider:    "facebook",
		Caption:     "x",
		ScheduledAt: time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	require.NoError(t, err)

	_, err = mem.Claim(ctx, post.ID)
	require.NoError(t, err)
	_, err = mem.MarkFailed(ctx, post.ID, "boom")
	require.NoError(t, err)

	when := time.Now().Add(3 * time.Hour).UTC().Truncate(time.Second)
	got, err := s.Reschedule(ctx, testTenant, &transfer.RescheduleRequest{
		PostID:      post.ID,
		ScheduledAt: when.Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, got.LastError)
	assert.True(t, got.ScheduledAt.Equal(when))
}

func TestAttemptsRequirePostID(t *testing.T) {
	s, _ := newPostService(t)

	_, err := s.Attempts(context.Background(), testTenant, "")
	assert.Error(t, err)

	_, err = s.PostInfo(context.Background(), testTenant, "")
	assert.Error(t, err)
}
