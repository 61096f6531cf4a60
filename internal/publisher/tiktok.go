package publisher

import (
	"context"
	"errors"
)

// ErrTiktokNotApproved is the permanent failure returned by the TikTok
// adapter. Direct posting through the Content Posting API needs an approved
// app; the adapter exists for dispatch symmetry and fails until one is
// configured. This is deliberate, not a missing case.
var ErrTiktokNotApproved = errors.New("TikTok direct post requires app approval; integrate once your app is approved")

type Tiktok struct{}

func NewTiktok() *Tiktok {
	return &Tiktok{}
}

func (tt *Tiktok) Publish(ctx context.Context, req *Request) (string, error) {
	return "", ErrTiktokNotApproved
}
