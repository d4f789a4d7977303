// Package config loads the relman project file and resolves the paths the
// operations work on.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/VoxDroid/relman/internal/security"
)

// FileNames are the project file names looked up by Discover, in order.
var FileNames = []string{"relman.yaml", ".relman.yaml"}

const (
	defaultBuildCommand   = "cargo build"
	defaultTestCommand    = "cargo nextest run --all-features"
	defaultTagCommand     = "cargo release tag --execute"
	defaultChangelogCmd   = "git cliff -o CHANGELOG.md"
	defaultChangelogFile  = "CHANGELOG.md"
	defaultCommitMessage  = "Update CHANGELOG.md"
	defaultPublishCommand = "cargo release push --execute"

	// TestEnvKey is the variable selecting the test runtime configuration.
	TestEnvKey   = "CELLA_ENV"
	testEnvValue = "test"
)

// BuildConfig describes the compile and install steps.
type BuildConfig struct {
	Command     string `yaml:"command"`
	Artifact    string `yaml:"artifact,omitempty"`
	InstallPath string `yaml:"install_path,omitempty"`
}

// TestConfig describes the test runner invocation. Env is visible to the
// test runner only and always carries CELLA_ENV=test.
type TestConfig struct {
	Command string            `yaml:"command"`
	Env     map[string]string `yaml:"env"`
}

// ReleaseConfig describes the five release steps.
type ReleaseConfig struct {
	Tag           string `yaml:"tag"`
	Changelog     string `yaml:"changelog"`
	ChangelogFile string `yaml:"changelog_file"`
	Git           string `yaml:"git"`
	CommitMessage string `yaml:"commit_message"`
	Remote        string `yaml:"remote"`
	Branch        string `yaml:"branch"`
	Publish       string `yaml:"publish"`
}

// HistoryConfig controls the local run ledger.
type HistoryConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"`
}

// Project models relman.yaml.
type Project struct {
	Binary  string        `yaml:"binary"`
	Build   BuildConfig   `yaml:"build"`
	Test    TestConfig    `yaml:"test"`
	Release ReleaseConfig `yaml:"release"`
	History HistoryConfig `yaml:"history"`

	// Dir is the project root; relative paths resolve against it.
	Dir string `yaml:"-"`
	// File is the file the project was loaded from, empty for defaults.
	File string `yaml:"-"`
}

// Default returns the built-in configuration for a project rooted at dir.
func Default(dir string) *Project {
	p := &Project{Dir: dir}
	p.applyDefaults()
	return p
}

// Load reads a project file. An empty file yields the defaults.
func Load(path string) (*Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	p, err := Parse(b, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	p.File = abs
	return p, nil
}

// Parse decodes a project file payload for a project rooted at dir.
func Parse(data []byte, dir string) (*Project, error) {
	p := &Project{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	p.Dir = dir
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Discover walks up from start looking for a project file. Without one the
// defaults apply with start as the project root.
func Discover(start string) (*Project, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, err
	}
	for cur := dir; ; {
		for _, name := range FileNames {
			candidate := filepath.Join(cur, name)
			if _, err := os.Stat(candidate); err == nil {
				return Load(candidate)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: stat %s: %w", candidate, err)
			}
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	return Default(dir), nil
}

func (p *Project) applyDefaults() {
	if strings.TrimSpace(p.Binary) == "" {
		p.Binary = filepath.Base(p.Dir)
	}
	if p.Build.Command == "" {
		p.Build.Command = defaultBuildCommand
	}
	if p.Test.Command == "" {
		p.Test.Command = defaultTestCommand
	}
	if p.Test.Env == nil {
		p.Test.Env = map[string]string{}
	}
	// extra variables are added to the test env, never in place of it
	p.Test.Env[TestEnvKey] = testEnvValue
	r := &p.Release
	if r.Tag == "" {
		r.Tag = defaultTagCommand
	}
	if r.Changelog == "" {
		r.Changelog = defaultChangelogCmd
	}
	if r.ChangelogFile == "" {
		r.ChangelogFile = defaultChangelogFile
	}
	if r.Git == "" {
		r.Git = "git"
	}
	if r.CommitMessage == "" {
		r.CommitMessage = defaultCommitMessage
	}
	if r.Remote == "" {
		r.Remote = "origin"
	}
	if r.Branch == "" {
		r.Branch = "master"
	}
	if r.Publish == "" {
		r.Publish = defaultPublishCommand
	}
}

// Validate rejects configurations no operation could run with.
func (p *Project) Validate() error {
	commands := map[string]string{
		"build.command":     p.Build.Command,
		"test.command":      p.Test.Command,
		"release.tag":       p.Release.Tag,
		"release.changelog": p.Release.Changelog,
		"release.publish":   p.Release.Publish,
	}
	keys := make([]string, 0, len(commands))
	for k := range commands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := security.CheckAllowed(commands[k]); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	for k := range p.Test.Env {
		if k == "" || strings.ContainsAny(k, "= \t") {
			return fmt.Errorf("test.env: invalid variable name %q", k)
		}
	}
	if strings.TrimSpace(p.Release.CommitMessage) == "" {
		return fmt.Errorf("release.commit_message: cannot be empty")
	}
	if strings.HasPrefix(p.Release.Remote, "-") || strings.HasPrefix(p.Release.Branch, "-") {
		return fmt.Errorf("release: remote and branch cannot start with '-'")
	}
	artifact, err := p.ArtifactPath()
	if err != nil {
		return err
	}
	target, err := p.InstallPath()
	if err != nil {
		return err
	}
	if artifact == target {
		return fmt.Errorf("build: artifact and install_path are the same file: %s", target)
	}
	return nil
}

// Resolve expands a leading ~ and anchors relative paths at the project root.
func (p *Project) Resolve(path string) (string, error) {
	expanded, err := homedir.Expand(strings.TrimSpace(path))
	if err != nil {
		return "", fmt.Errorf("config: expand %q: %w", path, err)
	}
	if !filepath.IsAbs(expanded) {
		expanded = filepath.Join(p.Dir, expanded)
	}
	return filepath.Clean(expanded), nil
}

// ArtifactPath is where the compile step leaves the debug binary. By default
// it follows cargo: $CARGO_TARGET_DIR/debug or target/debug in the project.
func (p *Project) ArtifactPath() (string, error) {
	if p.Build.Artifact != "" {
		return p.Resolve(p.Build.Artifact)
	}
	targetDir := os.Getenv("CARGO_TARGET_DIR")
	if targetDir == "" {
		targetDir = "target"
	}
	return p.Resolve(filepath.Join(targetDir, "debug", p.binaryFile()))
}

// InstallPath is the fixed location the build installs the binary to. By
// default it is $CARGO_HOME/bin, or ~/.cargo/bin.
func (p *Project) InstallPath() (string, error) {
	if p.Build.InstallPath != "" {
		return p.Resolve(p.Build.InstallPath)
	}
	cargoHome := os.Getenv("CARGO_HOME")
	if cargoHome == "" {
		cargoHome = filepath.Join("~", ".cargo")
	}
	return p.Resolve(filepath.Join(cargoHome, "bin", p.binaryFile()))
}

// ChangelogPath is the file the changelog generator writes.
func (p *Project) ChangelogPath() (string, error) {
	return p.Resolve(p.Release.ChangelogFile)
}

// HistoryEnabled reports whether runs are recorded to the ledger.
func (p *Project) HistoryEnabled() bool {
	return p.History.Enabled == nil || *p.History.Enabled
}

// HistoryPath returns the ledger database path.
func (p *Project) HistoryPath() (string, error) {
	if p.History.Path != "" {
		return p.Resolve(p.History.Path)
	}
	return DBPath()
}

// YAML renders the effective configuration.
func (p *Project) YAML() ([]byte, error) {
	return yaml.Marshal(p)
}

func (p *Project) binaryFile() string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(p.Binary, ".exe") {
		return p.Binary + ".exe"
	}
	return p.Binary
}
