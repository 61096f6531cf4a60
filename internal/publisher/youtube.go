package publisher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Youtube uploads the media bytes the engine fetched from the post's media
// URL. When the post carries a scheduled time the video is uploaded private
// with a publishAt so the provider flips visibility at the exact moment.
type Youtube struct {
	opts []option.ClientOption
}

func NewYoutube(opts ...option.ClientOption) *Youtube {
	return &Youtube{opts: opts}
}

// truncateTitle cuts the caption to max runes, never splitting a multibyte
// character.
func truncateTitle(caption string, max int) string {
	runes := []rune(caption)
	if len(runes) <= max {
		return caption
	}
	return string(runes[:max])
}

func (yt *Youtube) Publish(ctx context.Context, req *Request) (string, error) {
	token := &oauth2.Token{AccessToken: req.AccessToken}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, yt.opts...)
	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("error creating YouTube service: %w", err)
	}

	title := truncateTitle(req.Caption, 80)
	if title == "" {
		title = "Upload"
	}

	status := &youtube.VideoStatus{PrivacyStatus: "public"}
	if !req.ScheduledAt.IsZero() {
		status = &youtube.VideoStatus{
			PrivacyStatus: "private",
			PublishAt:     req.ScheduledAt.UTC().Format(time.RFC3339),
		}
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: req.Caption,
			CategoryId:  "22",
		},
		Status: status,
	}

	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = "video/mp4"
	}

	call := service.Videos.Insert([]string{"snippet", "status"}, video)
	response, err := call.Media(bytes.NewReader(req.MediaBytes), googleapi.ContentType(mimeType)).Do()
	if err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("YouTube upload failed: %w", err)
	}
	return response.Id, nil
}
