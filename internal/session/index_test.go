package session

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestDetectGitIndex(t *testing.T) {
	dir := t.TempDir()
	if got := DetectGitIndex(dir); got != nil {
		t.Errorf("DetectGitIndex on plain dir = %v", got)
	}

	if err := os.Mkdir(filepath.Join(dir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	if got := DetectGitIndex(dir); got == nil {
		t.Error("DetectGitIndex missed .git dir")
	}
}

func TestGitIndexListProjectFiles(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"tracked.py":   "a\n",
		"untracked.py": "b\n",
	})
	for _, args := range [][]string{
		{"init", "-q"},
		{"add", "tracked.py"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	paths, err := (&GitIndex{Dir: dir}).ListProjectFiles()
	if err != nil {
		t.Fatalf("ListProjectFiles failed: %v", err)
	}
	if len(paths) != 1 || paths[0] != "tracked.py" {
		t.Errorf("paths = %v, want [tracked.py]", paths)
	}
}
