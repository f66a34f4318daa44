package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photorank-backend/internal/config"
)

func TestNewKey(t *testing.T) {
	key, err := NewKey(7, "image/PNG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "photos/7/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	other, err := NewKey(7, "image/png")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	_, err = NewKey(7, "application/pdf")
	assert.Error(t, err)
}

func TestPresignWithCustomEndpoint(t *testing.T) {
	// Presigning is local, no request reaches the endpoint.
	store, err := NewObjectStore(context.Background(), config.StorageConfig{
		Region:        "auto",
		Bucket:        "photos",
		AccessKey:     "AKIDEXAMPLE",
		SecretKey:     "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
		Endpoint:      "https://account.r2.example.com",
		PresignExpiry: 5 * time.Minute,
	})
	require.NoError(t, err)

	up, err := store.PresignUpload(context.Background(), "photos/1/a.jpg", "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "PUT", up.Method)

	u, err := url.Parse(up.URL)
	require.NoError(t, err)
	assert.Equal(t, "account.r2.example.com", u.Host)
	assert.Equal(t, "/photos/photos/1/a.jpg", u.Path)
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))

	down, err := store.PresignDownload(context.Background(), "photos/1/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "GET", down.Method)
	assert.Contains(t, down.URL, "X-Amz-Signature=")
}
