package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	config "github.com/postpilot-app/postpilot/configs"
	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/publisher"
	"github.com/postpilot-app/postpilot/internal/store"
)

// Dispatcher drives the claim -> publish -> resolve loop. It is safe to
// invoke concurrently with itself (overlapping timer ticks, multiple
// processes): coordination rests entirely on the store's atomic claim, and a
// lost race is skipped silently.
type Dispatcher struct {
	posts    store.PostStore
	conns    store.ConnectionDirectory
	attempts store.AttemptLog
	registry *publisher.Registry
	media    *http.Client
	cfg      config.Dispatcher

	now    func() time.Time
	jitter func(n int64) int64
}

func New(
	posts store.PostStore,
	conns store.ConnectionDirectory,
	attempts store.AttemptLog,
	registry *publisher.Registry,
	media *http.Client,
	cfg config.Dispatcher) *Dispatcher {

	if media == nil {
		media = http.DefaultClient
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = 5 * time.Minute
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = time.Hour
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 15 * time.Minute
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 500
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Dispatcher{
		posts:    posts,
		conns:    conns,
		attempts: attempts,
		registry: registry,
		media:    media,
		cfg:      cfg,
		now:      time.Now,
		jitter:   rng.Int63n,
	}
}

type tenantKey struct {
	userID string
	orgID  string
}

// RunOnce performs one scheduler invocation: recover stale claims, fetch the
// due set, and work through it in scheduled order. A single post's failure
// never aborts the batch; outcomes are reported only through the post store
// and the attempt log.
func (d *Dispatcher) RunOnce(ctx context.Context) error {
	recovered, err := d.posts.RecoverStaleProcessing(ctx, d.cfg.ClaimTimeout)
	if err != nil {
		slog.Info(err.Error())
	} else if recovered > 0 {
		slog.Info(fmt.Sprintf("recovered %d stale processing posts", recovered))
	}

	due, err := d.posts.ListDue(ctx, d.now(), d.cfg.BatchLimit)
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("listing due posts: %w", err)
	}

	// Per-run connection cache, keyed by tenant. Local to one invocation and
	// safe to recompute.
	connCache := make(map[tenantKey][]*models.Connection)

	for _, duePost := range due {
		post, err := d.posts.Claim(ctx, duePost.ID)
		if err != nil {
			slog.Info(err.Error())
			continue
		}
		if post == nil {
			// Lost the race to a concurrent invocation, or the post was
			// handled already. Not an error.
			continue
		}
		d.process(ctx, post, connCache)
	}
	return nil
}

func (d *Dispatcher) process(ctx context.Context, post *models.ScheduledPost, connCache map[tenantKey][]*models.Connection) {
	tenant := store.Tenant{UserID: post.UserID, OrgID: post.OrgID}
	attemptNumber := post.RetryCount + 1
	idempotencyKey := fmt.Sprintf("scheduled:%s:attempt:%d", post.ID, attemptNumber)

	externalID, err := d.publish(ctx, post, tenant, connCache, idempotencyKey)
	if err != nil {
		d.resolveFailure(ctx, post, tenant, attemptNumber, idempotencyKey, err)
		return
	}

	if err := d.posts.MarkPosted(ctx, post.ID, externalID, idempotencyKey); err != nil {
		slog.Info(err.Error())
	}
	d.appendAttempt(ctx, &models.AttemptLogEntry{
		ScheduledID:    post.ID,
		UserID:         post.UserID,
		OrgID:          post.OrgID,
		Status:         models.AttemptSuccess,
		Attempt:        attemptNumber,
		ExternalID:     externalID,
		IdempotencyKey: idempotencyKey,
	})
}

func (d *Dispatcher) publish(ctx context.Context, post *models.ScheduledPost, tenant store.Tenant, connCache map[tenantKey][]*models.Connection, idempotencyKey string) (string, error) {
	key := tenantKey{userID: tenant.UserID, orgID: tenant.OrgID}
	conns, ok := connCache[key]
	if !ok {
		var err error
		conns, err = d.conns.List(ctx, tenant)
		if err != nil {
			return "", fmt.Errorf("resolving connections: %w", err)
		}
		connCache[key] = conns
	}

	pub, err := d.registry.For(post.Provider)
	if err != nil {
		return "", err
	}

	req := &publisher.Request{
		PostID:         post.ID,
		Caption:        post.Caption,
		MediaURL:       post.MediaURL,
		ScheduledAt:    post.ScheduledAt,
		IdempotencyKey: idempotencyKey,
	}

	switch post.Provider {
	case models.ProviderInstagram:
		fb := findConnection(conns, models.ProviderFacebook, func(c *models.Connection) bool {
			return c.IGUserID != ""
		})
		if fb == nil {
			return "", errors.New("No IG Business connection")
		}
		req.IGUserID = fb.IGUserID
		req.PageToken = fb.PageToken

	case models.ProviderFacebook:
		fb := findConnection(conns, models.ProviderFacebook, nil)
		if fb == nil {
			return "", errors.New("No Facebook Page connection")
		}
		req.PageID = fb.PageID
		req.PageToken = fb.PageToken

	case models.ProviderYoutube:
		yt := findConnection(conns, models.ProviderYoutube, nil)
		if yt == nil {
			return "", errors.New("No YouTube connection")
		}
		mediaBytes, mimeType, err := d.fetchMedia(ctx, post.MediaURL)
		if err != nil {
			return "", err
		}
		req.AccessToken = yt.AccessToken
		req.MediaBytes = mediaBytes
		req.MimeType = mimeType

	case models.ProviderTiktok:
		// Falls through to the adapter, which fails with its standing
		// app-approval error so the attempt log and UI surface it like any
		// other failure.
	}

	return pub.Publish(ctx, req)
}

func (d *Dispatcher) resolveFailure(ctx context.Context, post *models.ScheduledPost, tenant store.Tenant, attemptNumber int, idempotencyKey string, pubErr error) {
	slog.Info(fmt.Sprintf("publish failed for %s post %s: %v", post.Provider, post.ID, pubErr))

	retryCount, err := d.posts.MarkFailed(ctx, post.ID, pubErr.Error())
	if err != nil {
		slog.Info(err.Error())
		retryCount = attemptNumber
	}

	status := models.AttemptRetry
	if retryCount >= d.cfg.MaxAttempts {
		status = models.AttemptFailed
	}
	d.appendAttempt(ctx, &models.AttemptLogEntry{
		ScheduledID:    post.ID,
		UserID:         post.UserID,
		OrgID:          post.OrgID,
		Status:         status,
		Attempt:        retryCount,
		Error:          pubErr.Error(),
		IdempotencyKey: idempotencyKey,
	})

	if retryCount < d.cfg.MaxAttempts {
		nextRun := d.now().Add(d.retryDelayForAttempt(retryCount))
		// clearError stays false so last_error remains visible until the
		// retry succeeds.
		if _, err := d.posts.Reschedule(ctx, post.ID, tenant, nextRun, false); err != nil {
			slog.Info(err.Error())
		}
	}
}

func (d *Dispatcher) fetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("error creating media request: %w", err)
	}

	resp, err := d.media.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("unable to fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("unable to fetch media (%d %s)", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("error reading media body: %w", err)
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "video/mp4"
	}
	return body, mimeType, nil
}

func (d *Dispatcher) appendAttempt(ctx context.Context, entry *models.AttemptLogEntry) {
	if err := d.attempts.Append(ctx, entry); err != nil {
		slog.Info(err.Error())
	}
}

func findConnection(conns []*models.Connection, provider models.Provider, match func(*models.Connection) bool) *models.Connection {
	for _, conn := range conns {
		if conn.Provider != provider {
			continue
		}
		if match != nil && !match(conn) {
			continue
		}
		return conn
	}
	return nil
}
