package publisher

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/postpilot-app/postpilot/internal/models"
)

// Request carries everything an adapter needs for one publish call: the post
// fields, the resolved connection fields, and the per-attempt idempotency
// key. MediaBytes is populated only for providers that take raw media (the
// engine fetches it before dispatching).
type Request struct {
	PostID         string
	Caption        string
	MediaURL       string
	ScheduledAt    time.Time
	IdempotencyKey string

	AccessToken string
	PageID      string
	PageToken   string
	IGUserID    string

	MediaBytes []byte
	MimeType   string
}

// Publisher is the uniform adapter contract: publish one post through one
// connection and return the provider-assigned external id.
type Publisher interface {
	Publish(ctx context.Context, req *Request) (string, error)
}

// Registry maps each provider to its adapter. Adding a provider means adding
// a field here and a case in For, so the dispatch set stays closed and
// compile-checked.
type Registry struct {
	instagram Publisher
	facebook  Publisher
	youtube   Publisher
	tiktok    Publisher
}

func NewRegistry(instagram, facebook, youtube, tiktok Publisher) *Registry {
	return &Registry{
		instagram: instagram,
		facebook:  facebook,
		youtube:   youtube,
		tiktok:    tiktok,
	}
}

// NewDefaultRegistry wires the real provider adapters.
func NewDefaultRegistry(client *http.Client) *Registry {
	return NewRegistry(
		NewInstagram(client),
		NewFacebook(client),
		NewYoutube(),
		NewTiktok(),
	)
}

func (r *Registry) For(provider models.Provider) (Publisher, error) {
	switch provider {
	case models.ProviderInstagram:
		return r.instagram, nil
	case models.ProviderFacebook:
		return r.facebook, nil
	case models.ProviderYoutube:
		return r.youtube, nil
	case models.ProviderTiktok:
		return r.tiktok, nil
	default:
		return nil, fmt.Errorf("Unsupported provider: %s", provider)
	}
}
