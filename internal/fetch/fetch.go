// Package fetch downloads catalog models and verifies their checksums.
//
// Metadata authors fill url and sha256 per version; fetch pulls any missing
// model file, hashes the payload before committing it, and never leaves a
// partially downloaded or corrupt file behind.
package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Malagurti/face-pro/internal/catalog"
)

// ErrChecksumMismatch reports a downloaded payload whose SHA-256 digest does
// not match the metadata.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// checksumPlaceholder marks metadata whose checksum has not been filled yet.
const checksumPlaceholder = "<to-fill>"

// Status of one version after a fetch pass.
type Status string

const (
	StatusDownloaded Status = "downloaded"
	StatusExists     Status = "exists"
	StatusSkipped    Status = "skipped"
	StatusFailed     Status = "failed"
)

// Result is the outcome for one kind/version.
type Result struct {
	Kind    string
	Version string
	Path    string
	Status  Status
	Err     error
}

// Fetcher downloads model files. The zero value uses http.DefaultClient.
type Fetcher struct {
	Client *http.Client
}

func (f *Fetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

// Missing fetches every discovered version that has metadata but no model
// file. Individual failures are recorded per result; the pass keeps going.
func (f *Fetcher) Missing(dir string) []Result {
	var results []Result
	for _, entry := range catalog.Discover(dir) {
		for _, version := range entry.Versions {
			results = append(results, f.one(dir, entry.Kind, version))
		}
	}
	return results
}

func (f *Fetcher) one(dir, kind, version string) Result {
	res := Result{Kind: kind, Version: version}

	if path := catalog.ModelPath(dir, kind, version); path != "" {
		res.Path = path
		res.Status = StatusExists
		return res
	}

	meta, err := catalog.ReadMetadata(dir, kind, version)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}
	if meta.URL == "" || meta.SHA256 == "" || meta.SHA256 == checksumPlaceholder {
		res.Status = StatusSkipped
		return res
	}

	dest := filepath.Join(dir, kind, version, "model.onnx")
	if err := f.download(meta.URL, meta.SHA256, dest); err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}
	res.Path = dest
	res.Status = StatusDownloaded
	return res
}

// download writes the payload to a temp file next to dest, verifies the
// digest, then renames into place.
func (f *Fetcher) download(url, wantSHA256, dest string) error {
	resp, err := f.client().Get(url)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".fetch-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if got != wantSHA256 {
		return fmt.Errorf("%w: got %s, want %s", ErrChecksumMismatch, got, wantSHA256)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("rename to %s: %w", dest, err)
	}
	return nil
}
