package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/favorites-e2e/internal/s3client"
)

func writeReports(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"junit.xml":                   "<testsuites/>",
		"results.json":                "{}",
		"report.html":                 "<html></html>",
		"screenshots/Windows_10.png":  "\x89PNG",
		"screenshots/nested/deep.txt": "x",
	}
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestCollector_Collect(t *testing.T) {
	t.Parallel()
	items, err := Collector{Dir: writeReports(t)}.Collect()
	require.NoError(t, err)

	var rels []string
	for _, a := range items {
		rels = append(rels, a.Rel)
	}
	require.Equal(t, []string{
		"junit.xml",
		"report.html",
		"results.json",
		"screenshots/Windows_10.png",
		"screenshots/nested/deep.txt",
	}, rels)
}

func TestCollector_MissingDirIsEmpty(t *testing.T) {
	t.Parallel()
	items, err := Collector{Dir: filepath.Join(t.TempDir(), "never-written")}.Collect()
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestPublisher_UploadsUnderRunPrefix(t *testing.T) {
	t.Parallel()
	store := s3client.TestClient(t, "reports")
	ctx := context.Background()

	items, err := Collector{Dir: writeReports(t)}.Collect()
	require.NoError(t, err)

	pub := Publisher{Store: store, Prefix: "/e2e-runs/"}
	published, err := pub.Publish(ctx, "run-42", items)
	require.NoError(t, err)
	require.Len(t, published, len(items))

	require.Equal(t, "e2e-runs/run-42/junit.xml", published[0].Key)
	require.Equal(t, store.URL("e2e-runs/run-42/junit.xml"), published[0].URL)

	data, err := store.GetObject(ctx, "e2e-runs/run-42/screenshots/Windows_10.png")
	require.NoError(t, err)
	require.Equal(t, "\x89PNG", string(data))

	keys, err := store.ListKeys(ctx, "e2e-runs/run-42/")
	require.NoError(t, err)
	require.Len(t, keys, len(items))
}

func TestPublisher_PartialFailure(t *testing.T) {
	t.Parallel()
	store := s3client.TestClient(t, "reports")
	dir := writeReports(t)
	items, err := Collector{Dir: dir}.Collect()
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "results.json")))

	published, err := Publisher{Store: store, Prefix: "p"}.Publish(context.Background(), "r", items)
	require.Error(t, err)
	require.Contains(t, err.Error(), "results.json")
	require.Len(t, published, len(items)-1)
}

func TestContentType(t *testing.T) {
	t.Parallel()
	require.Equal(t, "application/xml", ContentType("junit.xml"))
	require.Equal(t, "image/png", ContentType("screenshots/a.PNG"))
	require.Equal(t, "text/html; charset=utf-8", ContentType("report.html"))
	require.Equal(t, "application/octet-stream", ContentType("blob"))
}

func testPublisher_KeyShape(t *rapid.T) {
	seg := rapid.StringMatching(`[a-z0-9][a-z0-9-]{0,10}`)
	prefix := seg.Draw(t, "prefix")
	runID := seg.Draw(t, "run")
	rel := seg.Draw(t, "dir") + "/" + seg.Draw(t, "file") + ".xml"

	key := Publisher{Prefix: "/" + prefix + "/"}.Key(runID, rel)
	want := prefix + "/" + runID + "/" + rel
	if key != want {
		t.Fatalf("Key = %q, want %q", key, want)
	}
}

func TestPublisher_KeyShape(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testPublisher_KeyShape)
}
