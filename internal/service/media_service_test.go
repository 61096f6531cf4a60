package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/postpilot-app/postpilot/configs"
)

func newTestMediaService(t *testing.T) MediaService {
	t.Helper()
	s, err := NewMediaService(&config.Config{
		R2: config.R2{
			AccountID:  "test-account",
			AccessKey:  "test-key",
			SecretKey:  "test-secret",
			BucketName: "test-bucket",
		},
	})
	require.NoError(t, err)
	return s
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	s := newTestMediaService(t)

	_, err := s.Upload(context.Background(), "user-1", []byte("plain text, not media"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported media type")
}
