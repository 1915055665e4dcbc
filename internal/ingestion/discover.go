// Package ingestion walks a cloned repository tree and turns its readable
// files into the text corpus the analysis stage works from. Cloning is a
// collaborator concern; this package starts from a local directory.
package ingestion

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// SourceFile is one discovered repository file.
type SourceFile struct {
	// Path is absolute on the local filesystem.
	Path string
	// RelPath is slash-separated, relative to the repository root.
	RelPath string
	Size    int64
	Ext     string
}

// Filters bound what Discover admits into the corpus.
type Filters struct {
	IncludeGlobs []string
	ExcludeGlobs []string
	MaxFileBytes int64
	MaxFiles     int
}

var defaultExcludedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"__pycache__":  true,
	".venv":        true,
}

var defaultIncludeExts = map[string]bool{
	".md": true, ".markdown": true, ".rst": true, ".txt": true,
	".go": true, ".py": true, ".js": true, ".ts": true, ".tsx": true,
	".jsx": true, ".rb": true, ".rs": true, ".java": true, ".kt": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cs": true,
	".sh": true, ".sql": true, ".proto": true,
	".yaml": true, ".yml": true, ".toml": true, ".json": true,
}

const (
	DefaultMaxFileBytes = 1 << 20 // 1 MiB
	DefaultMaxFiles     = 2000
)

// Discover walks repoDir and returns the files admitted by filters, ordered
// by relative path so repeated runs over the same tree yield the same corpus.
func Discover(repoDir string, filters Filters) ([]SourceFile, error) {
	info, err := os.Stat(repoDir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: stat repo dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingestion: %s is not a directory", repoDir)
	}

	maxBytes := filters.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	maxFiles := filters.MaxFiles
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	var out []SourceFile
	err = filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, relErr := filepath.Rel(repoDir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			base := d.Name()
			if defaultExcludedDirs[base] || strings.HasPrefix(base, ".") {
				return fs.SkipDir
			}
			if matchesAny(filters.ExcludeGlobs, rel) {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}
		if matchesAny(filters.ExcludeGlobs, rel) {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(rel))
		if len(filters.IncludeGlobs) > 0 {
			if !matchesAny(filters.IncludeGlobs, rel) {
				return nil
			}
		} else if !defaultIncludeExts[ext] {
			return nil
		}

		fi, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		if fi.Size() == 0 || fi.Size() > maxBytes {
			return nil
		}

		out = append(out, SourceFile{
			Path:    path,
			RelPath: rel,
			Size:    fi.Size(),
			Ext:     ext,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingestion: walk %s: %w", repoDir, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	if len(out) > maxFiles {
		out = out[:maxFiles]
	}
	return out, nil
}

// matchesAny matches a glob against both the full relative path and its base
// name, so "*.md" and "docs/*.md" both behave the way callers expect.
func matchesAny(globs []string, rel string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(g, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

// ReadText loads a discovered file and rejects content that is not valid
// UTF-8 text (embedded NUL bytes or invalid sequences).
func ReadText(f SourceFile) (string, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("ingestion: read %s: %w", f.RelPath, err)
	}
	if strings.IndexByte(string(raw), 0x00) >= 0 {
		return "", fmt.Errorf("ingestion: %s looks binary", f.RelPath)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("ingestion: %s is not valid UTF-8", f.RelPath)
	}
	return strings.TrimSpace(string(raw)), nil
}
