package notebook

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jovian-ai/jovian-cli/internal/api"
	"github.com/jovian-ai/jovian-cli/internal/ui"
)

const workDir = "/home/user/projects"

type fakeAPI struct {
	gist      *api.Gist
	files     map[string]string
	gotSlug   string
	gotVer    int
	downloads []string
	err       error
}

func (f *fakeAPI) GetGist(ctx context.Context, slug string, version int) (*api.Gist, error) {
	f.gotSlug, f.gotVer = slug, version
	if f.err != nil {
		return nil, f.err
	}
	return f.gist, nil
}

func (f *fakeAPI) Download(ctx context.Context, rawURL string) ([]byte, error) {
	f.downloads = append(f.downloads, rawURL)
	content, ok := f.files[rawURL]
	if !ok {
		return nil, fmt.Errorf("no such file %s", rawURL)
	}
	return []byte(content), nil
}

func tutorialAPI() *fakeAPI {
	return &fakeAPI{
		gist: &api.Gist{
			Slug:    "c8a2f",
			Title:   "jovian-tutorial",
			Owner:   "aakashns",
			Version: 3,
			Files: []api.File{
				{Filename: "jovian-tutorial.ipynb", RawURL: "raw://nb"},
				{Filename: "environment.yml", RawURL: "raw://env"},
				{Filename: "data/train.csv", RawURL: "raw://csv"},
			},
		},
		files: map[string]string{
			"raw://nb":  `{"cells": []}`,
			"raw://env": "name: tutorial\n",
			"raw://csv": "a,b\n1,2\n",
		},
	}
}

func newTestService(t *testing.T, client API) (*Service, *bytes.Buffer) {
	t.Helper()
	ui.DisableColor()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(workDir, 0o755))
	var out bytes.Buffer
	return &Service{FS: fs, Dir: workDir, API: client, Printer: ui.NewPrinter(&out, &out)}, &out
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("")
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	v, err = ParseVersion(" 7 ")
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	for _, bad := range []string{"0", "-1", "v3", "1.5"} {
		_, err := ParseVersion(bad)
		assert.ErrorIs(t, err, ErrInvalidVersion, bad)
	}
}

func TestNormalizeID(t *testing.T) {
	tests := map[string]string{
		"aakashns/jovian-tutorial":                   "aakashns/jovian-tutorial",
		" c8a2f ":                                    "c8a2f",
		"https://jovian.ai/aakashns/jovian-tutorial": "aakashns/jovian-tutorial",
		"https://jovian.ai/aakashns/demo/?tab=files": "aakashns/demo",
	}
	for in, want := range tests {
		got, err := NormalizeID(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, bad := range []string{"", "/", "a/b/c", "../etc", "https://jovian.ai"} {
		_, err := NormalizeID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, bad)
	}
}

func TestClone(t *testing.T) {
	client := tutorialAPI()
	svc, out := newTestService(t, client)

	require.NoError(t, svc.Clone(context.Background(), "aakashns/jovian-tutorial", "3"))

	assert.Equal(t, "aakashns/jovian-tutorial", client.gotSlug)
	assert.Equal(t, 3, client.gotVer)

	target := filepath.Join(workDir, "jovian-tutorial")
	nb, err := afero.ReadFile(svc.FS, filepath.Join(target, "jovian-tutorial.ipynb"))
	require.NoError(t, err)
	assert.Equal(t, `{"cells": []}`, string(nb))

	csv, err := afero.ReadFile(svc.FS, filepath.Join(target, "data", "train.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(csv))

	rc, err := LoadRC(svc.FS, target)
	require.NoError(t, err)
	assert.Equal(t, map[string]RCEntry{"jovian-tutorial.ipynb": {Slug: "c8a2f"}}, rc.Notebooks)

	assert.Contains(t, out.String(), "Cloning c8a2f by aakashns")
	assert.Contains(t, out.String(), "Cloned successfully to 'jovian-tutorial'")
	assert.Contains(t, out.String(), "jovian install")
}

func TestClone_ExistingDirectory(t *testing.T) {
	client := tutorialAPI()
	svc, _ := newTestService(t, client)
	require.NoError(t, svc.FS.MkdirAll(filepath.Join(workDir, "jovian-tutorial"), 0o755))

	err := svc.Clone(context.Background(), "aakashns/jovian-tutorial", "")
	assert.ErrorIs(t, err, ErrDirectoryExists)
	assert.Empty(t, client.downloads)
}

func TestClone_InvalidVersionSkipsAPI(t *testing.T) {
	client := tutorialAPI()
	svc, _ := newTestService(t, client)

	err := svc.Clone(context.Background(), "aakashns/jovian-tutorial", "latest")
	assert.ErrorIs(t, err, ErrInvalidVersion)
	assert.Empty(t, client.gotSlug)
}

func TestClone_APIError(t *testing.T) {
	client := tutorialAPI()
	client.err = fmt.Errorf("wrapped: %w", api.ErrNotFound)
	svc, _ := newTestService(t, client)

	err := svc.Clone(context.Background(), "aakashns/missing", "")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func TestClone_FailedDownloadLeavesNothingBehind(t *testing.T) {
	client := tutorialAPI()
	delete(client.files, "raw://env")
	svc, _ := newTestService(t, client)
	target := filepath.Join(workDir, "jovian-tutorial")

	err := svc.Clone(context.Background(), "aakashns/jovian-tutorial", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to download environment.yml")

	ok, err := afero.DirExists(svc.FS, target)
	require.NoError(t, err)
	assert.False(t, ok)

	client.files["raw://env"] = "name: tutorial\n"
	require.NoError(t, svc.Clone(context.Background(), "aakashns/jovian-tutorial", ""))

	env, err := afero.ReadFile(svc.FS, filepath.Join(target, "environment.yml"))
	require.NoError(t, err)
	assert.Equal(t, "name: tutorial\n", string(env))
}

func TestClone_ExistingDirectoryIsKept(t *testing.T) {
	client := tutorialAPI()
	svc, _ := newTestService(t, client)
	target := filepath.Join(workDir, "jovian-tutorial")
	require.NoError(t, afero.WriteFile(svc.FS, filepath.Join(target, "notes.txt"), []byte("mine"), 0o644))

	assert.ErrorIs(t, svc.Clone(context.Background(), "aakashns/jovian-tutorial", ""), ErrDirectoryExists)

	ok, err := afero.Exists(svc.FS, filepath.Join(target, "notes.txt"))
	require.NoError(t, err)
	assert.True(t, ok)
}

// deniedFs fails every Stat with a permission error.
type deniedFs struct{ afero.Fs }

func (deniedFs) Stat(name string) (os.FileInfo, error) {
	return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrPermission}
}

func TestClone_StatErrorIsReported(t *testing.T) {
	svc, _ := newTestService(t, tutorialAPI())
	svc.FS = deniedFs{svc.FS}

	err := svc.Clone(context.Background(), "aakashns/jovian-tutorial", "")
	assert.ErrorIs(t, err, os.ErrPermission)
	assert.NotErrorIs(t, err, ErrDirectoryExists)
}

func TestClone_RejectsPathTraversal(t *testing.T) {
	client := tutorialAPI()
	client.gist.Files = []api.File{{Filename: "../../evil.sh", RawURL: "raw://nb"}}
	svc, _ := newTestService(t, client)

	err := svc.Clone(context.Background(), "aakashns/jovian-tutorial", "")
	require.Error(t, err)
	ok, err := afero.Exists(svc.FS, "/home/evil.sh")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = afero.DirExists(svc.FS, filepath.Join(workDir, "jovian-tutorial"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPull(t *testing.T) {
	client := tutorialAPI()
	svc, out := newTestService(t, client)

	require.NoError(t, afero.WriteFile(svc.FS, filepath.Join(workDir, "environment.yml"), []byte("name: tutorial\n"), 0o644))
	require.NoError(t, afero.WriteFile(svc.FS, filepath.Join(workDir, "jovian-tutorial.ipynb"), []byte("{\n\"cells\": [1]\n}"), 0o644))

	require.NoError(t, svc.Pull(context.Background(), "aakashns/jovian-tutorial", ""))
	assert.Equal(t, 0, client.gotVer)

	nb, err := afero.ReadFile(svc.FS, filepath.Join(workDir, "jovian-tutorial.ipynb"))
	require.NoError(t, err)
	assert.Equal(t, `{"cells": []}`, string(nb))

	output := out.String()
	assert.Contains(t, output, "environment.yml is up to date")
	assert.Contains(t, output, "Updated jovian-tutorial.ipynb (+1/-3 lines)")
	assert.Contains(t, output, "Created data/train.csv")
	assert.Contains(t, output, "Fetched c8a2f (version 3)")

	rc, err := LoadRC(svc.FS, workDir)
	require.NoError(t, err)
	assert.Equal(t, "c8a2f", rc.Notebooks["jovian-tutorial.ipynb"].Slug)
}

func TestLineChanges(t *testing.T) {
	added, removed := LineChanges("a\nb\nc\n", "a\nB\nc\nd\n")
	assert.Equal(t, 2, added)
	assert.Equal(t, 1, removed)

	added, removed = LineChanges("same\n", "same\n")
	assert.Zero(t, added)
	assert.Zero(t, removed)
}

func TestLoadRC_PreservesOtherEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(workDir, RCFile), []byte(`{
  // written by an older client
  "notebooks": {"old.ipynb": {"slug": "abc"}}
}`), 0o644))

	rc, err := LoadRC(fs, workDir)
	require.NoError(t, err)
	rc.Notebooks["new.ipynb"] = RCEntry{Slug: "def"}
	require.NoError(t, rc.Save(fs, workDir))

	again, err := LoadRC(fs, workDir)
	require.NoError(t, err)
	assert.Len(t, again.Notebooks, 2)
}
