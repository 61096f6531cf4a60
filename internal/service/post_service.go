package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/store"
	"github.com/postpilot-app/postpilot/internal/transfer"
)

const scheduledTimeLayout = "2006-01-02T15:04"

type PostService interface {
	CreatePost(ctx context.Context, t store.Tenant, pc *transfer.PostCreation) (*models.ScheduledPost, time.Duration, error)
	List(ctx context.Context, t store.Tenant) ([]*models.ScheduledPost, error)
	PostInfo(ctx context.Context, t store.Tenant, postID string) (*models.ScheduledPost, error)
	Approve(ctx context.Context, t store.Tenant, reviewer string, req *transfer.ApprovalRequest) (*models.ScheduledPost, error)
	Reschedule(ctx context.Context, t store.Tenant, req *transfer.RescheduleRequest) (*models.ScheduledPost, error)
	Attempts(ctx context.Context, t store.Tenant, postID string) ([]*models.AttemptLogEntry, error)
}

type postService struct {
	posts    store.PostStore
	attempts store.AttemptLog
}

func NewPostService(posts store.PostStore, attempts store.AttemptLog) PostService {
	return &postService{posts: posts, attempts: attempts}
}

func (s *postService) CreatePost(ctx context.Context, t store.Tenant, pc *transfer.PostCreation) (*models.ScheduledPost, time.Duration, error) {
	if pc == nil {
		err := errors.New("post creation data is nil")
		slog.Error(err.Error())
		return nil, 0, err
	}
	if pc.Caption == "" {
		err := errors.New("caption cannot be empty")
		slog.Info(err.Error())
		return nil, 0, err
	}

	provider := models.Provider(pc.Provider)
	if !provider.Valid() {
		err := fmt.Errorf("unknown provider: %s", pc.Provider)
		slog.Info(err.Error())
		return nil, 0, err
	}

	scheduledAt, err := parseScheduledAt(pc.ScheduledAt)
	if err != nil {
		err = fmt.Errorf("invalid scheduled time format: %w", err)
		slog.Error(err.Error())
		return nil, 0, err
	}

	status := models.StatusPending
	approval := models.ApprovalApproved
	switch pc.Status {
	case "", string(models.StatusPending):
	case string(models.StatusDraft):
		status = models.StatusDraft
		approval = models.ApprovalDraft
	case string(models.StatusReview):
		status = models.StatusReview
		approval = models.ApprovalReview
	default:
		err := fmt.Errorf("invalid initial status: %s", pc.Status)
		slog.Info(err.Error())
		return nil, 0, err
	}

	post := &models.ScheduledPost{
		UserID:         t.UserID,
		OrgID:          t.OrgID,
		Provider:       provider,
		Caption:        pc.Caption,
		MediaURL:       pc.MediaURL,
		CampaignID:     pc.CampaignID,
		ScheduledAt:    scheduledAt,
		Status:         status,
		ApprovalStatus: approval,
	}

	if err := s.posts.Create(ctx, post); err != nil {
		return nil, 0, fmt.Errorf("error creating post: %w", err)
	}

	delay := time.Until(scheduledAt)
	if delay < 0 {
		delay = 0
	}
	return post, delay, nil
}

func (s *postService) List(ctx context.Context, t store.Tenant) ([]*models.ScheduledPost, error) {
	posts, err := s.posts.ListByTenant(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	return posts, nil
}

func (s *postService) PostInfo(ctx context.Context, t store.Tenant, postID string) (*models.ScheduledPost, error) {
	if postID == "" {
		err := errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}
	return s.posts.GetByID(ctx, postID, t)
}

func (s *postService) Approve(ctx context.Context, t store.Tenant, reviewer string, req *transfer.ApprovalRequest) (*models.ScheduledPost, error) {
	if req.PostID == "" {
		err := errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	var decision models.ApprovalStatus
	switch req.Decision {
	case string(models.ApprovalApproved):
		decision = models.ApprovalApproved
	case string(models.ApprovalRejected):
		decision = models.ApprovalRejected
	default:
		err := fmt.Errorf("invalid approval decision: %s", req.Decision)
		slog.Info(err.Error())
		return nil, err
	}

	return s.posts.UpdateApproval(ctx, req.PostID, t, decision, reviewer, req.Notes)
}

func (s *postService) Reschedule(ctx context.Context, t store.Tenant, req *transfer.RescheduleRequest) (*models.ScheduledPost, error) {
	if req.PostID == "" {
		err := errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	when, err := parseScheduledAt(req.ScheduledAt)
	if err != nil {
		err = fmt.Errorf("invalid scheduled time format: %w", err)
		slog.Info(err.Error())
		return nil, err
	}

	// Manual reschedules clear the error so the post re-enters the queue as
	// pending rather than retry.
	return s.posts.Reschedule(ctx, req.PostID, t, when, true)
}

func (s *postService) Attempts(ctx context.Context, t store.Tenant, postID string) ([]*models.AttemptLogEntry, error) {
	if postID == "" {
		err := errors.New("post id is not valid")
		slog.Info(err.Error())
		return nil, err
	}
	return s.attempts.ListByScheduledID(ctx, postID, t)
}

func parseScheduledAt(value string) (time.Time, error) {
	if when, err := time.Parse(time.RFC3339, value); err == nil {
		return when, nil
	}
	return time.Parse(scheduledTimeLayout, value)
}
