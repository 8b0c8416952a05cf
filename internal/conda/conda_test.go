package conda

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jovian-ai/jovian-cli/internal/shell"
	"github.com/jovian-ai/jovian-cli/internal/ui"
)

const projectDir = "/work/demo"

const envYAML = `name: demo-env
channels:
  - defaults
dependencies:
  - python=3.7
  - numpy==1.16.4
  - mkl=2019.4=243
  - pip:
    - jovian==0.1.97
    - pywin32==223
`

type fakeRunner struct {
	condaMissing bool
	calls        [][]string
	files        []string
	results      []runResult
	fs           afero.Fs
}

type runResult struct {
	stderr string
	code   int
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.condaMissing {
		return "", errors.New("not found")
	}
	return "/opt/conda/bin/" + name, nil
}

func (f *fakeRunner) Run(ctx context.Context, argv ...string) (*shell.Result, error) {
	f.calls = append(f.calls, argv)
	for i, a := range argv {
		if a == "--file" {
			data, _ := afero.ReadFile(f.fs, argv[i+1])
			f.files = append(f.files, string(data))
		}
	}
	if len(f.results) == 0 {
		return &shell.Result{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	res := &shell.Result{Stderr: r.stderr}
	if r.code != 0 {
		return res, &shell.ExitError{Command: strings.Join(argv, " "), Code: r.code, Stderr: r.stderr}
	}
	return res, nil
}

type fakePrompter struct {
	input string
	asked []string
}

func (p *fakePrompter) Confirm(q string, def bool) (bool, error) { return def, nil }
func (p *fakePrompter) Secret(q string) (string, error)         { return "", nil }
func (p *fakePrompter) Input(q, def string) (string, error) {
	p.asked = append(p.asked, q)
	if p.input == "" {
		return def, nil
	}
	return p.input, nil
}

func newTestInstaller(t *testing.T, files map[string]string) (*Installer, *fakeRunner, *bytes.Buffer, *fakePrompter) {
	t.Helper()
	ui.DisableColor()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(projectDir, 0o755))
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(projectDir, name), []byte(content), 0o644))
	}
	var out bytes.Buffer
	runner := &fakeRunner{fs: fs}
	prompter := &fakePrompter{}
	return &Installer{
		FS:       fs,
		Dir:      projectDir,
		GOOS:     "linux",
		Runner:   runner,
		Printer:  ui.NewPrinter(&out, &out),
		Prompter: prompter,
	}, runner, &out, prompter
}

func TestFindEnvFile_Precedence(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(projectDir, 0o755))
	write := func(name string) {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(projectDir, name), []byte("name: x\n"), 0o644))
	}

	_, err := FindEnvFile(fs, projectDir, "", "linux")
	assert.ErrorIs(t, err, ErrEnvFileNotFound)

	write("environment-gpu.yaml")
	got, err := FindEnvFile(fs, projectDir, "", "linux")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projectDir, "environment-gpu.yaml"), got)

	write("environment.yml")
	got, err = FindEnvFile(fs, projectDir, "", "linux")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projectDir, "environment.yml"), got)

	write("environment-macos.yml")
	got, err = FindEnvFile(fs, projectDir, "", "darwin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projectDir, "environment-macos.yml"), got)

	got, err = FindEnvFile(fs, projectDir, "environment-gpu.yaml", "darwin")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projectDir, "environment-gpu.yaml"), got)

	_, err = FindEnvFile(fs, projectDir, "missing.yml", "linux")
	assert.ErrorIs(t, err, ErrEnvFileNotFound)
}

// deniedFs fails every Stat with a permission error.
type deniedFs struct{ afero.Fs }

func (deniedFs) Stat(name string) (os.FileInfo, error) {
	return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrPermission}
}

func TestFindEnvFile_StatErrorIsNotNotFound(t *testing.T) {
	fs := deniedFs{afero.NewMemMapFs()}

	for _, name := range []string{"", "environment.yml"} {
		_, err := FindEnvFile(fs, projectDir, name, "linux")
		assert.ErrorIs(t, err, os.ErrPermission, name)
		assert.NotErrorIs(t, err, ErrEnvFileNotFound, name)
	}
}

func TestEnvFile_WithoutAndDependencies(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := filepath.Join(projectDir, "environment.yml")
	require.NoError(t, afero.WriteFile(fs, path, []byte(envYAML), 0o644))

	env, err := ReadEnvFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "demo-env", env.Name())
	assert.Equal(t, []string{"python=3.7", "numpy==1.16.4", "mkl=2019.4=243", "jovian==0.1.97", "pywin32==223"}, env.Dependencies())

	trimmed := env.Without([]string{"mkl==2019.4=243", "pywin32=223"})
	assert.Equal(t, []string{"python=3.7", "numpy==1.16.4", "jovian==0.1.97"}, trimmed.Dependencies())
	assert.Len(t, env.Dependencies(), 5, "original is not modified")

	data, err := trimmed.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "name: demo-env")
	assert.NotContains(t, string(data), "mkl")
}

func TestPackageName(t *testing.T) {
	assert.Equal(t, "numpy", PackageName("numpy==1.16.4=py37"))
	assert.Equal(t, "mkl", PackageName(" mkl=2019.4=243"))
	assert.Equal(t, "requests", PackageName("requests[security]>=2.0"))
	assert.Equal(t, "torch", PackageName("Torch"))
}

func TestUnresolvedPackages(t *testing.T) {
	output := `Collecting package metadata (repodata.json): done
Solving environment: failed

ResolvePackageNotFound:
  - mkl==2019.4=243
  - pywin32=223

`
	assert.Equal(t, []string{"mkl==2019.4=243", "pywin32=223"}, UnresolvedPackages(output))

	notFound := `PackagesNotFoundError: The following packages are not available from current channels:

  - nonexistent-pkg=1.0

Current channels:

  - https://repo.anaconda.com/pkgs/main/linux-64
`
	assert.Equal(t, []string{"nonexistent-pkg=1.0"}, UnresolvedPackages(notFound))
	assert.Empty(t, UnresolvedPackages("CondaHTTPError: HTTP 000 CONNECTION FAILED"))
}

func TestInstall_DefaultFile(t *testing.T) {
	inst, runner, out, _ := newTestInstaller(t, map[string]string{"environment.yml": envYAML})

	require.NoError(t, inst.Install(context.Background(), ""))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"/opt/conda/bin/conda", "env", "update", "--file", filepath.Join(projectDir, "environment.yml"), "--name", "demo-env"}, runner.calls[0])
	assert.Contains(t, out.String(), "conda activate demo-env")
}

func TestInstall_NamedFile(t *testing.T) {
	inst, runner, _, _ := newTestInstaller(t, map[string]string{
		"environment.yml":       envYAML,
		"environment-linux.yml": "name: linux-env\n",
	})

	require.NoError(t, inst.Install(context.Background(), "environment.yml"))
	require.Len(t, runner.calls, 1)
	assert.Contains(t, runner.calls[0], filepath.Join(projectDir, "environment.yml"))
}

func TestInstall_PromptsForMissingName(t *testing.T) {
	inst, runner, _, prompter := newTestInstaller(t, map[string]string{"environment.yml": "dependencies:\n  - python\n"})
	prompter.input = "custom"

	require.NoError(t, inst.Install(context.Background(), ""))
	assert.Len(t, prompter.asked, 1)
	assert.Equal(t, "custom", runner.calls[0][len(runner.calls[0])-1])
}

func TestInstall_RetriesWithoutUnresolvedPackages(t *testing.T) {
	inst, runner, out, _ := newTestInstaller(t, map[string]string{"environment.yml": envYAML})
	runner.results = []runResult{
		{stderr: "ResolvePackageNotFound:\n  - mkl==2019.4=243\n", code: 1},
		{},
	}

	require.NoError(t, inst.Install(context.Background(), ""))
	require.Len(t, runner.calls, 2)
	assert.Contains(t, runner.files[0], "mkl")
	assert.NotContains(t, runner.files[1], "mkl")
	assert.Contains(t, runner.files[1], "numpy")
	assert.Contains(t, out.String(), "mkl==2019.4=243")

	leftovers, err := afero.Glob(inst.FS, filepath.Join(projectDir, ".jovian-environment-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestInstall_PassesThroughExitStatus(t *testing.T) {
	inst, runner, _, _ := newTestInstaller(t, map[string]string{"environment.yml": envYAML})
	runner.results = []runResult{{stderr: "CondaHTTPError", code: 7}}

	err := inst.Install(context.Background(), "")
	var exitErr *shell.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 7, exitErr.ExitCode())
	assert.Len(t, runner.calls, 1)
}

func TestInstall_GivesUpAfterMaxAttempts(t *testing.T) {
	inst, runner, _, _ := newTestInstaller(t, map[string]string{"environment.yml": envYAML})
	for i := 0; i < MaxAttempts+1; i++ {
		runner.results = append(runner.results, runResult{stderr: "ResolvePackageNotFound:\n  - python=3.7\n", code: 1})
	}

	err := inst.Install(context.Background(), "")
	require.Error(t, err)
	assert.Len(t, runner.calls, MaxAttempts)
}

func TestInstall_CondaMissing(t *testing.T) {
	inst, runner, _, _ := newTestInstaller(t, map[string]string{"environment.yml": envYAML})
	runner.condaMissing = true

	assert.ErrorIs(t, inst.Install(context.Background(), ""), ErrCondaNotFound)
	assert.Empty(t, runner.calls)
}

func TestActivate(t *testing.T) {
	inst, runner, out, _ := newTestInstaller(t, map[string]string{"environment.yml": envYAML})

	require.NoError(t, inst.Activate(context.Background()))
	assert.Contains(t, out.String(), "conda activate demo-env")
	assert.Empty(t, runner.calls)
}

func TestActivate_NoEnvFile(t *testing.T) {
	inst, _, _, _ := newTestInstaller(t, nil)
	assert.ErrorIs(t, inst.Activate(context.Background()), ErrEnvFileNotFound)
}
