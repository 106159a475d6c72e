package gcs

import (
	"context"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "raw-pages"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = New(client, Config{Bucket: "  "})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "raw-pages"})
	require.NoError(t, err)
	require.NoError(t, store.Close(), "borrowed clients are not closed")
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "raw-pages"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "/", "text/html", strings.NewReader("x"))
	require.Error(t, err)
}
