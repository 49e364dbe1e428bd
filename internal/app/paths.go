package app

import (
	"path/filepath"
	"regexp"
	"strings"
)

const defaultOutputDir = "outputs"

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// deriveOutputPath returns the JSON output path for one module run. An
// explicit OutputPath wins; otherwise the file is
// <output dir>/<subject slug>_<module>.json.
func deriveOutputPath(cfg Config, module string, subject ...string) string {
	if p := strings.TrimSpace(cfg.OutputPath); p != "" {
		return p
	}
	root := strings.TrimSpace(cfg.OutputDir)
	if root == "" {
		root = defaultOutputDir
	}
	parts := make([]string, 0, len(subject))
	for _, s := range subject {
		if slug := slugify(s); slug != "" {
			parts = append(parts, slug)
		}
	}
	name := strings.Join(parts, "_")
	if name == "" {
		name = "result"
	}
	return filepath.Join(root, name+"_"+module+".json")
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = nonSlug.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
