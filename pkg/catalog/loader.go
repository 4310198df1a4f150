// loader.go — Load catalog files and .gscards (ZIP) bundles.
package catalog

import (
	"archive/zip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// BundleExt is the extension of catalog bundles.
const BundleExt = ".gscards"

// maxEntryBytes caps a single extracted bundle entry.
const maxEntryBytes = 64 << 20

var manifestNames = []string{"catalog.json", "catalog.yaml", "catalog.yml"}

// Load opens path as a bundle when it ends in .gscards, otherwise as a
// catalog file. The cleanup function is always safe to call.
func Load(path string) (*Catalog, func(), error) {
	if strings.EqualFold(filepath.Ext(path), BundleExt) {
		return LoadBundle(path)
	}
	c, err := LoadCatalog(path)
	return c, func() {}, err
}

// LoadCatalog reads a JSON or YAML catalog. Relative paths resolve against
// the file's directory.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	c.BaseDir = abs
	return c, nil
}

// Parse decodes catalog bytes; ext selects YAML (".yaml", ".yml") or JSON.
func Parse(data []byte, ext string) (*Catalog, error) {
	var c Catalog
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, err
		}
	}
	if len(c.Occasions) == 0 {
		return nil, errors.New("catalog has no occasions")
	}
	return &c, nil
}

// LoadBundle opens a .gscards ZIP, extracts it to a temp directory and
// parses its catalog manifest. The returned cleanup function removes the
// temp directory.
func LoadBundle(path string) (*Catalog, func(), error) {
	noop := func() {}

	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, noop, fmt.Errorf("open %s: %w", path, err)
	}
	defer r.Close()

	tmpDir, err := os.MkdirTemp("", "gscards-*")
	if err != nil {
		return nil, noop, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	if err := extractZip(&r.Reader, tmpDir); err != nil {
		cleanup()
		return nil, noop, fmt.Errorf("extract %s: %w", path, err)
	}

	for _, name := range manifestNames {
		manifest := filepath.Join(tmpDir, name)
		if _, err := os.Stat(manifest); err != nil {
			continue
		}
		c, err := LoadCatalog(manifest)
		if err != nil {
			cleanup()
			return nil, noop, err
		}
		return c, cleanup, nil
	}

	cleanup()
	return nil, noop, fmt.Errorf("%s: no catalog manifest (want one of %s)", path, strings.Join(manifestNames, ", "))
}

// extractZip extracts all files from a zip reader into destDir.
func extractZip(r *zip.Reader, destDir string) error {
	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)

		// Guard against zip slip.
		if !strings.HasPrefix(filepath.Clean(target), filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path in zip: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

// extractFile writes a single zip entry to disk.
func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(rc, maxEntryBytes+1))
	if err != nil {
		return err
	}
	if n > maxEntryBytes {
		return fmt.Errorf("entry %s exceeds %d bytes", f.Name, maxEntryBytes)
	}
	return nil
}
