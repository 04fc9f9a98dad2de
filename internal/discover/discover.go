// Package discover turns a project root plus include/exclude glob patterns
// into the flat path list the dispatch driver consumes, and watches that
// root for changes once the initial pass has completed.
package discover

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes mirrors the directories no JS project wants walked.
var DefaultExcludes = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
}

// Walk returns every regular file under root matching includes (relative,
// doublestar patterns) and none of excludes. An empty includes list means
// "everything not excluded."
func Walk(root string, includes, excludes []string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && matchesAny(excludes, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAny(excludes, rel) {
			return nil
		}
		if len(includes) > 0 && !matchesAny(includes, rel) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func matchesAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}
