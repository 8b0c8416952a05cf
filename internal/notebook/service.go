// Package notebook clones and pulls notebook projects hosted on Jovian.
package notebook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/afero"

	"github.com/jovian-ai/jovian-cli/internal/api"
	"github.com/jovian-ai/jovian-cli/internal/logging"
	"github.com/jovian-ai/jovian-cli/internal/ui"
)

var (
	ErrDirectoryExists = errors.New("directory already exists")
	ErrInvalidID       = errors.New("invalid notebook id")
	ErrInvalidVersion  = errors.New("invalid version")
)

// API is the subset of the Jovian API used here.
type API interface {
	GetGist(ctx context.Context, slug string, version int) (*api.Gist, error)
	Download(ctx context.Context, rawURL string) ([]byte, error)
}

// Service clones and pulls notebooks relative to Dir.
type Service struct {
	FS      afero.Fs
	Dir     string
	API     API
	Printer *ui.Printer
}

// NewService returns a service on the host filesystem.
func NewService(dir string, client API, printer *ui.Printer) *Service {
	return &Service{FS: afero.NewOsFs(), Dir: dir, API: client, Printer: printer}
}

// ParseVersion parses an optional version. "" means the latest version and
// yields 0.
func ParseVersion(v string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w %q: must be a positive integer", ErrInvalidVersion, v)
	}
	return n, nil
}

// NormalizeID accepts "owner/slug", a bare project id, or a project URL and
// returns the id the API expects.
func NormalizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	for _, scheme := range []string{"https://", "http://"} {
		if strings.HasPrefix(id, scheme) {
			id = strings.TrimPrefix(id, scheme)
			if i := strings.Index(id, "/"); i >= 0 {
				id = id[i+1:]
			} else {
				id = ""
			}
		}
	}
	if i := strings.IndexAny(id, "?#"); i >= 0 {
		id = id[:i]
	}
	id = strings.Trim(id, "/")
	if id == "" || strings.Count(id, "/") > 1 || strings.Contains(id, "..") {
		return "", fmt.Errorf("%w %q: expected owner/slug", ErrInvalidID, id)
	}
	return id, nil
}

func (s *Service) fetch(ctx context.Context, id, version string) (*api.Gist, error) {
	slug, err := NormalizeID(id)
	if err != nil {
		return nil, err
	}
	v, err := ParseVersion(version)
	if err != nil {
		return nil, err
	}

	logging.Debug().Str("slug", slug).Int("version", v).Msg("fetching notebook metadata")
	gist, err := s.API.GetGist(ctx, slug, v)
	if err != nil {
		return nil, err
	}
	if gist.Slug == "" {
		gist.Slug = slug
	}
	return gist, nil
}

// Clone downloads a project into a new directory named after its title.
func (s *Service) Clone(ctx context.Context, id, version string) error {
	gist, err := s.fetch(ctx, id, version)
	if err != nil {
		return err
	}

	title := safeName(gist.Title)
	if title == "" {
		title = safeName(path.Base(id))
	}
	target := filepath.Join(s.Dir, title)
	exists, err := afero.Exists(s.FS, target)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", title, err)
	}
	if exists {
		return fmt.Errorf("%w: %s, remove it or run 'jovian pull' inside it", ErrDirectoryExists, title)
	}

	if gist.Owner != "" {
		s.Printer.Log("Cloning %s by %s", gist.Slug, gist.Owner)
	}
	s.Printer.Log("Creating directory %s", title)
	if err := s.FS.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", title, err)
	}

	// A failed clone leaves nothing behind so it can simply be retried.
	complete := false
	defer func() {
		if complete {
			return
		}
		if err := s.FS.RemoveAll(target); err != nil {
			logging.Warn().Err(err).Str("dir", target).Msg("failed to remove partial clone")
		}
	}()

	for _, f := range gist.Files {
		data, err := s.download(ctx, f)
		if err != nil {
			return err
		}
		if err := s.writeFile(target, f.Filename, data); err != nil {
			return err
		}
	}

	if err := s.register(target, gist); err != nil {
		return err
	}
	complete = true

	s.Printer.Log("Cloned successfully to '%s'", title)
	s.Printer.Log("Next, run the following commands to set up the environment:")
	s.Printer.Hint("  cd %s", title)
	s.Printer.Hint("  jovian install")
	s.Printer.Hint("  jovian activate")
	return nil
}

// Pull downloads a project into Dir, overwriting files that changed.
func (s *Service) Pull(ctx context.Context, id, version string) error {
	gist, err := s.fetch(ctx, id, version)
	if err != nil {
		return err
	}

	for _, f := range gist.Files {
		data, err := s.download(ctx, f)
		if err != nil {
			return err
		}

		name, err := cleanRelPath(f.Filename)
		if err != nil {
			return err
		}
		existing, readErr := afero.ReadFile(s.FS, filepath.Join(s.Dir, name))
		switch {
		case readErr != nil:
			s.Printer.Log("Created %s", name)
		case bytes.Equal(existing, data):
			s.Printer.Log("%s is up to date", name)
			continue
		default:
			added, removed := LineChanges(string(existing), string(data))
			s.Printer.Log("Updated %s (+%d/-%d lines)", name, added, removed)
		}

		if err := s.writeFile(s.Dir, f.Filename, data); err != nil {
			return err
		}
	}

	if err := s.register(s.Dir, gist); err != nil {
		return err
	}
	if gist.Version > 0 {
		s.Printer.Log("Fetched %s (version %d)", gist.Slug, gist.Version)
	} else {
		s.Printer.Log("Fetched %s", gist.Slug)
	}
	return nil
}

func (s *Service) download(ctx context.Context, f api.File) ([]byte, error) {
	s.Printer.Log("Fetching %s..", f.Filename)
	data, err := s.API.Download(ctx, f.RawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", f.Filename, err)
	}
	return data, nil
}

func (s *Service) writeFile(dir, filename string, data []byte) error {
	name, err := cleanRelPath(filename)
	if err != nil {
		return err
	}
	dest := filepath.Join(dir, name)
	if err := s.FS.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", name, err)
	}
	if err := afero.WriteFile(s.FS, dest, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// register records the project's notebooks in dir/.jovianrc.
func (s *Service) register(dir string, gist *api.Gist) error {
	notebooks := gist.Notebooks()
	if len(notebooks) == 0 {
		return nil
	}
	rc, err := LoadRC(s.FS, dir)
	if err != nil {
		return err
	}
	for _, nb := range notebooks {
		rc.Notebooks[filepath.Base(nb.Filename)] = RCEntry{Slug: gist.Slug}
	}
	return rc.Save(s.FS, dir)
}

// LineChanges counts lines added and removed between two texts.
func LineChanges(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if d.Text != "" && !strings.HasSuffix(d.Text, "\n") {
			n++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}

func cleanRelPath(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing to write file outside the project: %q", name)
	}
	return clean, nil
}

func safeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "-", "\\", "-").Replace(name)
	if name == "." || name == ".." {
		return ""
	}
	return name
}
