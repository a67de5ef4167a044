// Package artifacts gathers report files and publishes them to object storage.
// Publication tolerates partial evidence: a missing report directory publishes
// nothing, and each file is attempted even if an earlier upload failed.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kuitang/favorites-e2e/internal/obs"
)

// Artifact is one file under the report directory.
type Artifact struct {
	Path string // on disk
	Rel  string // slash-separated, relative to the report dir
	Size int64
}

// Collector lists the files in a report directory.
type Collector struct {
	Dir string
}

// Collect returns every regular file under Dir, sorted by relative path.
// A missing directory yields no artifacts.
func (c Collector) Collect() ([]Artifact, error) {
	var out []Artifact
	err := filepath.WalkDir(c.Dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(c.Dir, p)
		if err != nil {
			return err
		}
		out = append(out, Artifact{Path: p, Rel: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("collect artifacts in %s: %w", c.Dir, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rel < out[j].Rel })
	return out, nil
}

// Uploader stores objects. *s3client.Client implements it.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	URL(key string) string
}

// Published is an uploaded artifact.
type Published struct {
	Rel string `json:"path"`
	Key string `json:"key"`
	URL string `json:"url"`
}

// Publisher uploads artifacts under <Prefix>/<run id>/.
type Publisher struct {
	Store  Uploader
	Prefix string
}

// Key is the object key for an artifact of a run.
func (p Publisher) Key(runID, rel string) string {
	return path.Join(strings.Trim(p.Prefix, "/"), runID, rel)
}

// Publish uploads every artifact and returns those that made it. Failures are
// joined into the returned error.
func (p Publisher) Publish(ctx context.Context, runID string, items []Artifact) ([]Published, error) {
	log := obs.From(ctx)
	var (
		published []Published
		failures  []error
	)
	for _, a := range items {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)
			break
		}
		key := p.Key(runID, a.Rel)
		if err := p.upload(ctx, key, a); err != nil {
			log.Warn("artifact_upload_failed", "key", key, "error", err)
			failures = append(failures, err)
			continue
		}
		published = append(published, Published{Rel: a.Rel, Key: key, URL: p.Store.URL(key)})
	}
	log.Info("artifacts_published", "count", len(published), "failed", len(failures))
	return published, errors.Join(failures...)
}

func (p Publisher) upload(ctx context.Context, key string, a Artifact) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.Rel, err)
	}
	defer f.Close()
	return p.Store.Upload(ctx, key, f, a.Size, ContentType(a.Rel))
}

// ContentType guesses a MIME type from the file extension.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".xml":
		return "application/xml"
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".png":
		return "image/png"
	case ".log", ".txt":
		return "text/plain; charset=utf-8"
	}
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
