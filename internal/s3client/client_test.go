package s3client

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClient_UploadGetList(t *testing.T) {
	t.Parallel()
	c := TestClient(t, "reports")
	ctx := context.Background()

	body := []byte(`<?xml version="1.0"?><testsuites/>`)
	require.NoError(t, c.Upload(ctx, "e2e-runs/r1/junit.xml", bytes.NewReader(body), int64(len(body)), "application/xml"))
	require.NoError(t, c.Upload(ctx, "e2e-runs/r1/summary.md", bytes.NewReader([]byte("# ok")), 4, "text/markdown"))
	require.NoError(t, c.Upload(ctx, "e2e-runs/r2/summary.md", bytes.NewReader([]byte("# no")), 4, "text/markdown"))

	got, err := c.GetObject(ctx, "e2e-runs/r1/junit.xml")
	require.NoError(t, err)
	require.Equal(t, body, got)

	keys, err := c.ListKeys(ctx, "e2e-runs/r1/")
	require.NoError(t, err)
	sort.Strings(keys)
	require.Equal(t, []string{"e2e-runs/r1/junit.xml", "e2e-runs/r1/summary.md"}, keys)
}

func TestClient_GetMissing(t *testing.T) {
	t.Parallel()
	c := TestClient(t, "reports")
	_, err := c.GetObject(context.Background(), "nope")
	require.True(t, errors.Is(err, ErrObjectNotFound))
}

func TestClient_URL(t *testing.T) {
	t.Parallel()
	require.Equal(t, "https://cdn.test/reports/a/b.html", NewFromS3Client(nil, "reports", "https://cdn.test/reports/").URL("/a/b.html"))
	require.Equal(t, "s3://reports/a/b.html", NewFromS3Client(nil, "reports", "").URL("a/b.html"))
}
