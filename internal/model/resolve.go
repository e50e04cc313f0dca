package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var repoIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*/[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Resolved locates the weights for one identifier.
type Resolved struct {
	Name          string
	Repo          string
	Path          string
	URL           string
	NeedsDownload bool
	IsCustomPath  bool
}

// Resolve maps ref to a registry entry, an arbitrary Hugging Face repo or a
// local weight file. Repo weights live under modelDir/<org>/<name>/.
func Resolve(ref, modelDir, endpoint string) (Resolved, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		ref = DefaultModel
	}

	if isExistingFile(ref) || strings.HasSuffix(strings.ToLower(ref), ".bin") {
		return resolveCustomPath(ref)
	}

	entry, ok := Lookup(ref)
	if !ok {
		if !repoIDPattern.MatchString(ref) {
			return Resolved{}, fmt.Errorf("unknown model %q (known models: %s, or any Hugging Face repo id publishing %s)", ref, strings.Join(Names(), ", "), ggmlFileName)
		}
		entry = Entry{Name: ref, Repo: ref, FileName: ggmlFileName}
	}

	if strings.TrimSpace(modelDir) == "" {
		return Resolved{}, errors.New("model directory must not be empty for named model")
	}

	org, name, _ := strings.Cut(entry.Repo, "/")
	modelPath := filepath.Join(modelDir, org, name, entry.FileName)
	_, statErr := os.Stat(modelPath)
	if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		return Resolved{}, fmt.Errorf("stat model path: %w", statErr)
	}

	return Resolved{
		Name:          entry.Name,
		Repo:          entry.Repo,
		Path:          modelPath,
		URL:           entry.URL(endpoint),
		NeedsDownload: errors.Is(statErr, os.ErrNotExist),
	}, nil
}

func resolveCustomPath(ref string) (Resolved, error) {
	customPath := filepath.Clean(ref)
	info, err := os.Stat(customPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Resolved{}, fmt.Errorf("custom model path does not exist: %s", customPath)
		}
		return Resolved{}, fmt.Errorf("stat custom model path: %w", err)
	}
	if info.IsDir() {
		return Resolved{}, fmt.Errorf("custom model path is a directory: %s", customPath)
	}

	return Resolved{
		Name:         filepath.Base(customPath),
		Path:         customPath,
		IsCustomPath: true,
	}, nil
}

func isExistingFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
