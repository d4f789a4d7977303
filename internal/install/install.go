// Package install places a freshly built binary at the install path.
package install

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// ErrArtifactMissing is returned when the compiled artifact is absent; the
// install path is left untouched in that case.
var ErrArtifactMissing = errors.New("compiled artifact not found")

// Options controls install behavior.
type Options struct {
	// From is the compiled artifact.
	From string
	// Target is the install path, including the file name.
	Target string
}

// PlanInstall returns a list of human-readable actions that would be performed.
func PlanInstall(opts Options) ([]string, error) {
	if opts.From == "" || opts.Target == "" {
		return nil, fmt.Errorf("install: artifact and target are required")
	}
	src := filepath.Clean(opts.From)
	dst := filepath.Clean(opts.Target)
	if src == dst {
		return []string{"No-op: source and destination are identical"}, nil
	}
	actions := []string{
		fmt.Sprintf("Verify artifact exists: %s", src),
		fmt.Sprintf("Ensure directory exists: %s", filepath.Dir(dst)),
		fmt.Sprintf("Copy %s -> temporary file next to %s", src, dst),
	}
	if runtime.GOOS != "windows" {
		actions = append(actions, "Set executable bit on temporary file")
	}
	actions = append(actions, fmt.Sprintf("Replace %s atomically", dst))
	return actions, nil
}

// PathHint returns a human-friendly suggestion for putting targetDir on
// PATH, or "" when pathEnv already contains it.
func PathHint(pathEnv, targetDir string) string {
	if ContainsPath(pathEnv, targetDir) {
		return ""
	}
	if runtime.GOOS == "windows" {
		return fmt.Sprintf("Add %s to your user PATH (run: setx PATH \"%%PATH%%;%s\")", targetDir, targetDir)
	}
	return fmt.Sprintf("Add 'export PATH=\"%s:$PATH\"' to your shell rc (e.g., ~/.bashrc)", targetDir)
}

// ContainsPath checks if the given directory is in the PATH environment variable.
func ContainsPath(pathEnv, dir string) bool {
	if pathEnv == "" || dir == "" {
		return false
	}
	dirClean := filepath.Clean(os.ExpandEnv(strings.TrimSpace(dir)))
	for _, p := range filepath.SplitList(pathEnv) {
		pClean := filepath.Clean(os.ExpandEnv(strings.TrimSpace(p)))
		if runtime.GOOS == "windows" {
			if strings.EqualFold(pClean, dirClean) {
				return true
			}
		} else if pClean == dirClean {
			return true
		}
	}
	return false
}

// ExecuteInstall verifies the artifact and swaps it into place. The old
// binary is only replaced once a complete copy exists next to it, so a
// failure at any point leaves the previous install intact.
func ExecuteInstall(opts Options) ([]string, error) {
	actions, err := PlanInstall(opts)
	if err != nil {
		return nil, err
	}
	if err := verifyArtifact(opts.From); err != nil {
		return nil, err
	}
	if filepath.Clean(opts.From) == filepath.Clean(opts.Target) {
		return actions, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.Target), 0o755); err != nil {
		return nil, fmt.Errorf("create target dir: %w", err)
	}
	if err := copyExecutable(opts.From, opts.Target); err != nil {
		return nil, err
	}
	return actions, nil
}

func verifyArtifact(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}
		return fmt.Errorf("stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("artifact is not a regular file: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("artifact is empty: %s", path)
	}
	return nil
}

// copyExecutable copies the source file into a temporary file in the
// destination directory, sets executable permissions on non-Windows
// platforms, then renames it over dst. On Windows the rename fails while
// the old binary is running; the install then fails and the old binary
// stays.
func copyExecutable(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	tmpFile, terr := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".relman-")
	if terr != nil {
		return fmt.Errorf("create temp dest: %w", terr)
	}
	tmp := tmpFile.Name()
	// removed on every path; after a successful rename it no longer exists
	defer func() { _ = os.Remove(tmp) }()

	if _, err := io.Copy(tmpFile, in); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("copy: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmp, 0o755); err != nil {
			return fmt.Errorf("set exec bit: %w", err)
		}
	}
	return replace(tmp, dst)
}

// replace renames tmp over dst. dst is never written in place, so a failed
// rename keeps the previous install.
func replace(tmp, dst string) error {
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}

// File describes one end of the install.
type File struct {
	Path    string
	Exists  bool
	Size    int64
	ModTime time.Time
}

// Status compares the compiled artifact with the installed binary.
type Status struct {
	Artifact File
	Install  File
	// UpToDate is true when both exist with identical contents.
	UpToDate bool
	OnPath   bool
}

// GetStatus inspects the artifact and install path.
func GetStatus(artifact, target string) (*Status, error) {
	st := &Status{Artifact: File{Path: artifact}, Install: File{Path: target}}
	for _, f := range []*File{&st.Artifact, &st.Install} {
		info, err := os.Stat(f.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		f.Exists = true
		f.Size = info.Size()
		f.ModTime = info.ModTime()
	}
	st.OnPath = ContainsPath(os.Getenv("PATH"), filepath.Dir(target))
	if st.Artifact.Exists && st.Install.Exists && st.Artifact.Size == st.Install.Size {
		same, err := sameContents(artifact, target)
		if err != nil {
			return nil, err
		}
		st.UpToDate = same
	}
	return st, nil
}

func sameContents(a, b string) (bool, error) {
	ha, err := fileDigest(a)
	if err != nil {
		return false, err
	}
	hb, err := fileDigest(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ha, hb), nil
}

func fileDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}
