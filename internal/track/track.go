// Package track manages the folder of uploaded GPX files.
package track

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/omnihq/omnilocation-go/pkg/gpx"
)

var (
	ErrNotFound    = errors.New("track not found")
	ErrInvalidName = errors.New("invalid track name")
)

// Info is a library listing entry.
type Info struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Details extends Info with parsed route statistics.
type Details struct {
	Info
	PointCount    int           `json:"total_points"`
	TotalDistance float64       `json:"total_distance_m"`
	TotalDuration time.Duration `json:"total_duration_ns"`
	Timed         bool          `json:"timed"`
}

// Library is a directory of GPX files. All operations resolve names through
// sanitization so uploads cannot escape the folder.
type Library struct {
	dir string
}

// NewLibrary creates the upload folder if missing.
func NewLibrary(dir string) (*Library, error) {
	if dir == "" {
		return nil, fmt.Errorf("track: upload directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("track: create upload directory: %w", err)
	}
	return &Library{dir: dir}, nil
}

// Dir returns the library folder path.
func (l *Library) Dir() string { return l.dir }

// sanitize reduces a client-supplied name to a safe basename and enforces
// the .gpx extension.
func sanitize(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == ".." || strings.ContainsAny(base, "/\\") {
		return "", fmt.Errorf("track: %q: %w", name, ErrInvalidName)
	}
	if !strings.EqualFold(filepath.Ext(base), ".gpx") {
		return "", fmt.Errorf("track: %q: not a .gpx file: %w", name, ErrInvalidName)
	}
	return base, nil
}

// Save stores the uploaded content under the sanitized name, validating that
// it parses as a GPX route first. Returns the stored name.
func (l *Library) Save(name string, r io.Reader) (string, error) {
	base, err := sanitize(name)
	if err != nil {
		return "", err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("track: read upload: %w", err)
	}
	if _, err := gpx.Parse(raw); err != nil {
		return "", fmt.Errorf("track: %s: %w", base, err)
	}
	if err := os.WriteFile(filepath.Join(l.dir, base), raw, 0o644); err != nil {
		return "", fmt.Errorf("track: write %s: %w", base, err)
	}
	return base, nil
}

// List returns the library entries sorted by name.
func (l *Library) List() ([]Info, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("track: read directory: %w", err)
	}
	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".gpx") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Name:       e.Name(),
			SizeBytes:  fi.Size(),
			ModifiedAt: fi.ModTime(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Load parses a stored track.
func (l *Library) Load(name string) (*gpx.Route, error) {
	base, err := sanitize(name)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(l.dir, base))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("track: %s: %w", base, ErrNotFound)
		}
		return nil, fmt.Errorf("track: read %s: %w", base, err)
	}
	route, err := gpx.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("track: %s: %w", base, err)
	}
	return route, nil
}

// Details returns parsed statistics for one stored track.
func (l *Library) Details(name string) (Details, error) {
	base, err := sanitize(name)
	if err != nil {
		return Details{}, err
	}
	fi, err := os.Stat(filepath.Join(l.dir, base))
	if err != nil {
		if os.IsNotExist(err) {
			return Details{}, fmt.Errorf("track: %s: %w", base, ErrNotFound)
		}
		return Details{}, fmt.Errorf("track: stat %s: %w", base, err)
	}
	route, err := l.Load(base)
	if err != nil {
		return Details{}, err
	}
	return Details{
		Info: Info{
			Name:       base,
			SizeBytes:  fi.Size(),
			ModifiedAt: fi.ModTime(),
		},
		PointCount:    route.PointCount(),
		TotalDistance: route.TotalDistance,
		TotalDuration: route.TotalDuration,
		Timed:         route.Timed(),
	}, nil
}

// Delete removes a stored track.
func (l *Library) Delete(name string) error {
	base, err := sanitize(name)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(l.dir, base)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("track: %s: %w", base, ErrNotFound)
		}
		return fmt.Errorf("track: delete %s: %w", base, err)
	}
	return nil
}
