package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	config "github.com/postpilot-app/postpilot/configs"
	"github.com/postpilot-app/postpilot/internal/models"
	"github.com/postpilot-app/postpilot/internal/store"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// TokenRefreshJob keeps stored connection credentials fresh so the dispatch
// engine never publishes with an expired token. It runs on a cron schedule
// and refreshes connections expiring within the lookahead window.
type TokenRefreshJob struct {
	cfg    config.Config
	conns  store.ConnectionDirectory
	client *http.Client
}

const refreshLookahead = 30 * time.Minute

func NewTokenRefreshJob(cfg config.Config, conns store.ConnectionDirectory) *TokenRefreshJob {
	return &TokenRefreshJob{cfg: cfg, conns: conns, client: http.DefaultClient}
}

func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	connections, err := j.conns.ListExpiring(ctx, time.Now().Add(refreshLookahead))
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, conn := range connections {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(conn *models.Connection) {
			defer wg.Done()
			defer func() { <-semaphore }()

			switch conn.Provider {
			case models.ProviderFacebook:
				if err := j.refreshFacebook(ctx, conn); err != nil {
					slog.Info(fmt.Sprintf("unable to refresh Facebook tokens for connection %s", conn.ID))
				}
			case models.ProviderYoutube:
				if err := j.refreshYoutube(ctx, conn); err != nil {
					slog.Info(fmt.Sprintf("unable to refresh YouTube tokens for connection %s", conn.ID))
				}
			default:
				// TikTok and Instagram page tokens are refreshed through the
				// Facebook long-lived exchange or not at all.
			}
		}(conn)
	}

	wg.Wait()
}

// refreshFacebook exchanges the current user token for a fresh long-lived
// token via the Graph API.
func (j *TokenRefreshJob) refreshFacebook(ctx context.Context, conn *models.Connection) error {
	endpoint := fmt.Sprintf(
		"https://graph.facebook.com/v19.0/oauth/access_token?grant_type=fb_exchange_token&client_id=%s&client_secret=%s&fb_exchange_token=%s",
		url.QueryEscape(j.cfg.FacebookAppID),
		url.QueryEscape(j.cfg.FacebookAppSecret),
		url.QueryEscape(conn.AccessToken),
	)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := j.client.Do(httpReq)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response status: %d", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Info(err.Error())
		return err
	}
	if result.AccessToken == "" {
		return fmt.Errorf("empty access token in refresh response")
	}

	expiresAt := time.Now().Add(time.Second * time.Duration(result.ExpiresIn))
	return j.conns.SetToken(ctx, conn.ID, result.AccessToken, "", expiresAt)
}

func (j *TokenRefreshJob) refreshYoutube(ctx context.Context, conn *models.Connection) error {
	conf := &oauth2.Config{
		ClientID:     j.cfg.GoogleClientID,
		ClientSecret: j.cfg.GoogleClientSecret,
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.upload"},
		Endpoint:     google.Endpoint,
	}

	tokenSource := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: conn.RefreshToken})

	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return j.conns.SetToken(ctx, conn.ID, token.AccessToken, token.RefreshToken, token.Expiry)
}
