// Package catalog discovers face-pro model files on disk.
//
// Models live under <dir>/<kind>/<version>/ where every version directory
// carries a metadata.json describing the model and, once fetched, the model
// file itself. Selection prefers the highest declared accuracy, breaking
// ties with the newest version.
package catalog

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// Model kinds the catalog tracks.
const (
	KindFaceDetection = "face_detection"
	KindLiveness      = "liveness"
)

// Kinds lists all known model kinds in catalog order.
var Kinds = []string{KindFaceDetection, KindLiveness}

// MetadataFile is the per-version descriptor name.
const MetadataFile = "metadata.json"

// modelFileNames are accepted model file names, in preference order.
var modelFileNames = []string{"model.onnx", "model.ort", "model"}

// InputSpec describes one model input as recorded in metadata.
type InputSpec struct {
	Name   string    `json:"name"`
	Shape  []int64   `json:"shape"`
	Layout string    `json:"layout"`
	Mean   []float32 `json:"mean,omitempty"`
	Std    []float32 `json:"std,omitempty"`
}

// Metadata is the parsed metadata.json of one model version.
type Metadata struct {
	Name     string      `json:"name"`
	Version  string      `json:"version"`
	URL      string      `json:"url"`
	SHA256   string      `json:"sha256"`
	Inputs   []InputSpec `json:"inputs"`
	License  string      `json:"license"`
	Accuracy *float64    `json:"accuracy,omitempty"`
}

// Entry is one kind with its discovered versions.
type Entry struct {
	Kind     string
	Versions []string
}

// Selection is a chosen model: its kind, version, resolved model path and
// parsed metadata. Path is empty when the model file has not been fetched.
type Selection struct {
	Kind     string
	Version  string
	Path     string
	Metadata Metadata
}

// Discover lists the versions present for every known kind. A version only
// counts when its directory carries a metadata.json. Missing directories
// yield empty version lists, not errors.
func Discover(dir string) []Entry {
	entries := make([]Entry, 0, len(Kinds))
	for _, kind := range Kinds {
		var versions []string
		kindDir := filepath.Join(dir, kind)
		items, err := os.ReadDir(kindDir)
		if err == nil {
			for _, item := range items {
				if !item.IsDir() {
					continue
				}
				meta := filepath.Join(kindDir, item.Name(), MetadataFile)
				if _, err := os.Stat(meta); err == nil {
					versions = append(versions, item.Name())
				}
			}
		}
		slices.Sort(versions)
		entries = append(entries, Entry{Kind: kind, Versions: versions})
	}
	return entries
}

// ReadMetadata parses the metadata.json of one kind/version.
func ReadMetadata(dir, kind, version string) (Metadata, error) {
	path := filepath.Join(dir, kind, version, MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read %s: %w", path, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return meta, nil
}

// ModelPath returns the model file for one kind/version, or "" when none of
// the accepted file names exists yet.
func ModelPath(dir, kind, version string) string {
	for _, name := range modelFileNames {
		p := filepath.Join(dir, kind, version, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Selected is the best available model per kind. Nil means no usable
// version was found for that kind.
type Selected struct {
	FaceDetection *Selection
	Liveness      *Selection
}

// SelectBest picks, per kind, the version with the highest accuracy
// (metadata without accuracy sorts last), ties broken by the newest
// version string. Versions without a fetched model file are skipped.
func SelectBest(dir string) Selected {
	var sel Selected
	sel.FaceDetection = pickBest(dir, KindFaceDetection)
	sel.Liveness = pickBest(dir, KindLiveness)
	return sel
}

func pickBest(dir, kind string) *Selection {
	var candidates []Selection
	for _, entry := range Discover(dir) {
		if entry.Kind != kind {
			continue
		}
		for _, version := range entry.Versions {
			path := ModelPath(dir, kind, version)
			if path == "" {
				continue
			}
			meta, err := ReadMetadata(dir, kind, version)
			if err != nil {
				continue
			}
			candidates = append(candidates, Selection{
				Kind: kind, Version: version, Path: path, Metadata: meta,
			})
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	slices.SortFunc(candidates, func(a, b Selection) int {
		if c := cmp.Compare(accuracyOf(b), accuracyOf(a)); c != 0 {
			return c
		}
		return cmp.Compare(b.Version, a.Version)
	})
	return &candidates[0]
}

func accuracyOf(s Selection) float64 {
	if s.Metadata.Accuracy == nil {
		return -1
	}
	return *s.Metadata.Accuracy
}
