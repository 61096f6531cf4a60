package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v19.0"

// Instagram publishes through the Graph API's two-phase protocol: create a
// media container, then publish it. Requires a Facebook connection carrying
// an IG Business user id and a page token.
type Instagram struct {
	client  *http.Client
	baseURL string
}

func NewInstagram(client *http.Client) *Instagram {
	if client == nil {
		client = http.DefaultClient
	}
	return &Instagram{client: client, baseURL: defaultGraphBaseURL}
}

// NewInstagramWithBaseURL points the adapter at an alternate Graph endpoint.
func NewInstagramWithBaseURL(client *http.Client, baseURL string) *Instagram {
	ig := NewInstagram(client)
	ig.baseURL = baseURL
	return ig
}

func (ig *Instagram) Publish(ctx context.Context, req *Request) (string, error) {
	containerID, err := ig.createContainer(ctx, req)
	if err != nil {
		return "", err
	}
	return ig.publishContainer(ctx, req, containerID)
}

func (ig *Instagram) createContainer(ctx context.Context, req *Request) (string, error) {
	url := fmt.Sprintf("%s/%s/media", ig.baseURL, req.IGUserID)
	payload := map[string]interface{}{
		"image_url":    req.MediaURL,
		"caption":      req.Caption,
		"access_token": req.PageToken,
	}

	id, body, err := ig.postJSON(ctx, url, payload)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("Failed to create IG container: %s", body)
	}
	return id, nil
}

func (ig *Instagram) publishContainer(ctx context.Context, req *Request, containerID string) (string, error) {
	url := fmt.Sprintf("%s/%s/media_publish", ig.baseURL, req.IGUserID)
	payload := map[string]interface{}{
		"creation_id":  containerID,
		"access_token": req.PageToken,
	}

	id, body, err := ig.postJSON(ctx, url, payload)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("Failed to publish IG media: %s", body)
	}
	return id, nil
}

func (ig *Instagram) postJSON(ctx context.Context, url string, payload map[string]interface{}) (string, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("error marshalling payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", "", fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := ig.client.Do(httpReq)
	if err != nil {
		slog.Info(err.Error())
		return "", "", fmt.Errorf("HTTP request error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", fmt.Errorf("error reading response body: %w", err)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", string(respBody), nil
	}
	return result.ID, string(respBody), nil
}
