package session

import (
	"os"
	"path/filepath"
	"strings"
)

// ShadowPrefix is the literal inserted before a file's base name to derive
// its shadow path. It is part of the on-disk layout and must stay stable for
// existing shadow files to round-trip.
const ShadowPrefix = ".orgai__"

// ShadowPath derives the shadow path for a base-dir-relative original path.
// The directory component is preserved.
func ShadowPath(file string) string {
	dir, base := filepath.Split(file)
	return dir + ShadowPrefix + base
}

// OriginalPath inverts ShadowPath. The second return is false when the path
// does not carry the shadow prefix.
func OriginalPath(shadowFile string) (string, bool) {
	dir, base := filepath.Split(shadowFile)
	if !strings.HasPrefix(base, ShadowPrefix) {
		return "", false
	}
	return dir + strings.TrimPrefix(base, ShadowPrefix), true
}

// PersistShadow writes content to the shadow path derived from file,
// creating or overwriting it, and records the mapping in the session.
// file comes straight from the model response, so it is validated and
// joined safely before any write. Returns the base-dir-relative shadow path.
func (s *Session) PersistShadow(file, content string) (string, error) {
	if err := ValidateRelativePath(file); err != nil {
		return "", err
	}

	shadowRel := ShadowPath(file)
	shadowAbs, err := SafeJoin(s.BaseDir, shadowRel)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(shadowAbs), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(shadowAbs, []byte(content), 0644); err != nil {
		return "", err
	}

	if s.ShadowFiles == nil {
		s.ShadowFiles = make(map[string]string)
	}
	s.ShadowFiles[file] = shadowRel
	log.Debug("Persisted shadow: %s -> %s (%d bytes)", file, shadowRel, len(content))
	return shadowRel, nil
}

// RemoveAllShadows deletes every shadow file referenced by the session's
// mapping that still exists on disk, then clears the mapping. Reports
// whether anything was removed. Deleting an already-absent file is a no-op.
func (s *Session) RemoveAllShadows() (bool, error) {
	removed := false
	for _, shadowRel := range s.ShadowFiles {
		ok, err := s.removeShadowFile(shadowRel)
		if err != nil {
			return removed, err
		}
		if ok {
			removed = true
		}
	}
	if s.ShadowFiles != nil {
		s.ShadowFiles = nil
		s.Changed()
	}
	return removed, nil
}

// RemoveShadow deletes the single shadow file for an original path and drops
// its mapping entry. An empty mapping is cleared entirely so "no
// modifications" always reads the same way.
func (s *Session) RemoveShadow(file string) (bool, error) {
	shadowRel, ok := s.ShadowFiles[file]
	if !ok {
		return false, nil
	}

	removed, err := s.removeShadowFile(shadowRel)
	if err != nil {
		return false, err
	}

	delete(s.ShadowFiles, file)
	if len(s.ShadowFiles) == 0 {
		s.ShadowFiles = nil
	}
	s.Changed()
	return removed, nil
}

// ApplyShadow copies the shadow content over the original file and drops
// the shadow entry. This is the accept half of the diff-and-merge flow; the
// decision to call it belongs to the UI.
func (s *Session) ApplyShadow(file string) error {
	content, err := s.ShadowContent(file)
	if err != nil {
		return err
	}

	origAbs, err := SafeJoin(s.BaseDir, file)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(origAbs), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(origAbs, []byte(content), 0644); err != nil {
		return err
	}

	_, err = s.RemoveShadow(file)
	return err
}

// OriginalContent reads the current on-disk content of an original file.
func (s *Session) OriginalContent(file string) (string, error) {
	origAbs, err := SafeJoin(s.BaseDir, file)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(origAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil // new file proposed by the model
		}
		return "", err
	}
	return string(data), nil
}

// ShadowContent reads the shadow file for an original path.
func (s *Session) ShadowContent(file string) (string, error) {
	shadowRel, ok := s.ShadowFiles[file]
	if !ok {
		return "", ErrFileNotFound
	}
	shadowAbs, err := SafeJoin(s.BaseDir, shadowRel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(shadowAbs)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *Session) removeShadowFile(shadowRel string) (bool, error) {
	shadowAbs, err := SafeJoin(s.BaseDir, shadowRel)
	if err != nil {
		return false, err
	}
	if err := os.Remove(shadowAbs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
