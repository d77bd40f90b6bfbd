package session

import (
	"bufio"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
)

// ExpandPatterns splits a space-separated pattern list and, for every pattern
// carrying the recursive-descent marker, adds a marker-stripped twin so the
// base directory itself is also matched. The result is deduplicated: each
// pattern appears exactly once, in first-seen order.
func ExpandPatterns(patternList string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	for _, p := range strings.Fields(patternList) {
		add(p)
		if stripped := strings.TrimPrefix(p, "**/"); stripped != p {
			add(stripped)
		}
	}
	return out
}

// Match expands the pattern list against baseDir and partitions the results
// into regular-file selections (chosen by default) and the shadow mapping.
// Shadow files are keyed by their original name regardless of ignore rules
// and the optional project index, so orphaned shadow state stays visible.
// A pattern matching nothing is not an error.
func Match(baseDir, patternList string, index ProjectIndex) ([]*FileSelection, map[string]string, error) {
	patterns := ExpandPatterns(patternList)
	fsys := os.DirFS(baseDir)
	rules := loadIgnoreRules(baseDir)

	var indexSet map[string]bool
	if index != nil {
		paths, err := index.ListProjectFiles()
		if err != nil {
			// The index is an optional collaborator; discovery proceeds
			// unfiltered when it is unavailable.
			log.Debug("project index unavailable: %v", err)
		} else {
			indexSet = make(map[string]bool, len(paths))
			for _, p := range paths {
				indexSet[filepath.ToSlash(p)] = true
			}
		}
	}

	var files []*FileSelection
	shadows := make(map[string]string)
	seen := make(map[string]bool)

	for _, pat := range patterns {
		err := doublestar.GlobWalk(fsys, pat, func(p string, d fs.DirEntry) error {
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			if seen[p] {
				return nil
			}
			seen[p] = true
			if p == ".git" || strings.HasPrefix(p, ".git/") || strings.Contains(p, "/.git/") {
				return nil
			}

			base := path.Base(p)
			if strings.HasPrefix(base, ShadowPrefix) {
				orig := path.Join(path.Dir(p), strings.TrimPrefix(base, ShadowPrefix))
				shadows[filepath.FromSlash(orig)] = filepath.FromSlash(p)
				return nil
			}

			if rules != nil && rules.MatchesPath(p) {
				return nil
			}
			if indexSet != nil && !indexSet[p] {
				return nil
			}

			rel := filepath.FromSlash(p)
			files = append(files, &FileSelection{
				File:     rel,
				FullPath: filepath.Join(baseDir, rel),
				Chosen:   true,
			})
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}

	return files, shadows, nil
}

// loadIgnoreRules reads .gitignore and .orgaiignore from baseDir and returns
// the combined rule set, or nil when neither file contributes anything.
func loadIgnoreRules(baseDir string) *ignore.GitIgnore {
	var allRules []string

	for _, name := range []string{".gitignore", ".orgaiignore"} {
		lines, err := readIgnoreFile(filepath.Join(baseDir, name))
		if err == nil {
			allRules = append(allRules, lines...)
		}
	}

	if len(allRules) == 0 {
		return nil
	}

	return ignore.CompileIgnoreLines(allRules...)
}

// readIgnoreFile reads a single ignore file and returns its lines.
func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
