package local

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/git-pkgs/plugins/internal/core"
)

// Format is the on-disk layout of an installed distribution.
type Format int

const (
	FormatUnsupported Format = iota
	FormatModern             // *.dist-info
	FormatLegacy             // *.egg-info, *.egg
)

func (f Format) String() string {
	switch f {
	case FormatModern:
		return "modern"
	case FormatLegacy:
		return "legacy"
	default:
		return "unsupported"
	}
}

var errMissingMetadata = errors.New("no metadata file")

// metadataFiles lists the files holding the format's metadata, in lookup order.
func (f Format) metadataFiles() []string {
	switch f {
	case FormatModern:
		return []string{"metadata.json", "METADATA"}
	case FormatLegacy:
		return []string{"PKG-INFO"}
	}
	return nil
}

func (f Format) parse(a *artifact) (core.Record, error) {
	for _, name := range f.metadataFiles() {
		data, err := a.read(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return core.Record{}, fmt.Errorf("reading %s: %w", name, err)
		}
		if name == "metadata.json" {
			return parseJSONMetadata(data, a.read)
		}
		return parseHeaderMetadata(data), nil
	}
	return core.Record{}, errMissingMetadata
}

// artifact is an installed distribution's metadata directory, or the
// metadata directory inside a zipped egg.
type artifact struct {
	path   string
	format Format
	fsys   fs.FS
	closer io.Closer
}

func (a *artifact) read(name string) ([]byte, error) {
	if a.fsys == nil {
		return nil, fs.ErrNotExist
	}
	return fs.ReadFile(a.fsys, name)
}

func (a *artifact) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// detect classifies a site directory entry. ok is false for entries that are
// not distributions at all.
func detect(name string, isDir bool) (format Format, ok bool) {
	switch {
	case strings.HasSuffix(name, ".dist-info") && isDir:
		return FormatModern, true
	case strings.HasSuffix(name, ".egg-info") && isDir:
		return FormatLegacy, true
	case strings.HasSuffix(name, ".egg"):
		return FormatLegacy, true
	case strings.HasSuffix(name, ".egg-info"), strings.HasSuffix(name, ".egg-link"):
		return FormatUnsupported, true
	}
	return FormatUnsupported, false
}

func openArtifact(dir string, entry fs.DirEntry) (*artifact, bool, error) {
	format, ok := detect(entry.Name(), entry.IsDir())
	if !ok {
		return nil, false, nil
	}

	path := filepath.Join(dir, entry.Name())
	a := &artifact{path: path, format: format}

	switch {
	case format == FormatUnsupported:
	case strings.HasSuffix(path, ".egg") && entry.IsDir():
		a.fsys = os.DirFS(filepath.Join(path, "EGG-INFO"))
	case strings.HasSuffix(path, ".egg"):
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, true, fmt.Errorf("opening %s: %w", path, err)
		}
		sub, err := fs.Sub(zr, "EGG-INFO")
		if err != nil {
			_ = zr.Close()
			return nil, true, err
		}
		a.fsys = sub
		a.closer = zr
	default:
		a.fsys = os.DirFS(path)
	}
	return a, true, nil
}
