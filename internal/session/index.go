package session

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ProjectIndex enumerates the files a project considers its own. When a
// session carries one, discovery results are filtered to indexed files.
type ProjectIndex interface {
	ListProjectFiles() ([]string, error)
}

// GitIndex lists tracked files via git ls-files.
type GitIndex struct {
	Dir string
}

// DetectGitIndex returns a GitIndex when dir is a git work tree, nil otherwise.
func DetectGitIndex(dir string) *GitIndex {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		return nil
	}
	return &GitIndex{Dir: dir}
}

// ListProjectFiles returns the tracked file paths, relative to the work tree.
func (g *GitIndex) ListProjectFiles() ([]string, error) {
	cmd := exec.Command("git", "ls-files")
	cmd.Dir = g.Dir
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(out.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}
