package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Facebook publishes a Page photo when the post carries media, a feed post
// otherwise. When the post's scheduled time is in the future the provider's
// own scheduled_publish_time is set as a secondary safety net in addition to
// the dispatch engine's timing.
type Facebook struct {
	client  *http.Client
	baseURL string
}

func NewFacebook(client *http.Client) *Facebook {
	if client == nil {
		client = http.DefaultClient
	}
	return &Facebook{client: client, baseURL: defaultGraphBaseURL}
}

// NewFacebookWithBaseURL points the adapter at an alternate Graph endpoint.
func NewFacebookWithBaseURL(client *http.Client, baseURL string) *Facebook {
	fb := NewFacebook(client)
	fb.baseURL = baseURL
	return fb
}

func (fb *Facebook) Publish(ctx context.Context, req *Request) (string, error) {
	form := url.Values{}
	form.Set("access_token", req.PageToken)

	scheduledUnix := int64(0)
	if req.ScheduledAt.After(time.Now()) {
		scheduledUnix = req.ScheduledAt.Unix()
	}
	if scheduledUnix > 0 {
		form.Set("published", "false")
		form.Set("scheduled_publish_time", strconv.FormatInt(scheduledUnix, 10))
	} else {
		form.Set("published", "true")
	}

	var endpoint string
	if req.MediaURL != "" {
		endpoint = fmt.Sprintf("%s/%s/photos", fb.baseURL, req.PageID)
		form.Set("caption", req.Caption)
		form.Set("url", req.MediaURL)
	} else {
		endpoint = fmt.Sprintf("%s/%s/feed", fb.baseURL, req.PageID)
		form.Set("message", req.Caption)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := fb.client.Do(httpReq)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}

	var result struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("FB publish error: %s", respBody)
	}
	if result.PostID != "" {
		return result.PostID, nil
	}
	if result.ID == "" {
		return "", fmt.Errorf("FB publish error: %s", respBody)
	}
	return result.ID, nil
}
