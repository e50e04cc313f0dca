// Package model resolves a model identifier to weights on disk and binds them
// to an inference backend on the selected device.
package model

import (
	"sort"
	"strings"
)

const (
	// DefaultModel is the Swedish Whisper variant used when none is given.
	DefaultModel = "KBLab/kb-whisper-large"

	// ggmlFileName is the whisper.cpp weight file published in each repo.
	ggmlFileName = "ggml-model.bin"

	defaultEndpoint = "https://huggingface.co"
)

// Entry is a known Hugging Face repo that publishes ggml weights.
type Entry struct {
	Name     string
	Repo     string
	FileName string
}

var registry = map[string]Entry{
	"kb-whisper-tiny":   {Name: "kb-whisper-tiny", Repo: "KBLab/kb-whisper-tiny", FileName: ggmlFileName},
	"kb-whisper-base":   {Name: "kb-whisper-base", Repo: "KBLab/kb-whisper-base", FileName: ggmlFileName},
	"kb-whisper-small":  {Name: "kb-whisper-small", Repo: "KBLab/kb-whisper-small", FileName: ggmlFileName},
	"kb-whisper-medium": {Name: "kb-whisper-medium", Repo: "KBLab/kb-whisper-medium", FileName: ggmlFileName},
	"kb-whisper-large":  {Name: "kb-whisper-large", Repo: "KBLab/kb-whisper-large", FileName: ggmlFileName},
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup accepts either the short name or the full repo id, case-insensitively.
func Lookup(ref string) (Entry, bool) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if entry, ok := registry[ref]; ok {
		return entry, true
	}
	for _, entry := range registry {
		if strings.ToLower(entry.Repo) == ref {
			return entry, true
		}
	}
	return Entry{}, false
}

// URL is the Hugging Face resolve URL for the entry's weight file.
func (e Entry) URL(endpoint string) string {
	if endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/"); endpoint == "" {
		endpoint = defaultEndpoint
	}
	return endpoint + "/" + e.Repo + "/resolve/main/" + e.FileName
}
