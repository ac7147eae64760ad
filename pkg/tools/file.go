package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

type readParams struct {
	Path     string `json:"path" jsonschema:"description=File path relative to the workspace root"`
	MaxBytes int    `json:"max_bytes,omitempty" jsonschema:"description=Truncate file content to this many bytes"`
}

type grepParams struct {
	Pattern string `json:"pattern" jsonschema:"description=Regular expression to match"`
	Path    string `json:"path,omitempty" jsonschema:"description=Directory to search, relative to the workspace root"`
}

type listParams struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list, relative to the workspace root"`
}

const defaultReadLimit = 64 * 1024

// RegisterFileTools registers the read-only file toolset (read, grep,
// list) rooted at root. Paths escaping the root are rejected.
func RegisterFileTools(r *Registry, root string) {
	resolve := func(rel string) (string, error) {
		p := filepath.Join(root, filepath.Clean("/"+rel))
		if !strings.HasPrefix(p, filepath.Clean(root)) {
			return "", fmt.Errorf("path escapes workspace root: %s", rel)
		}
		return p, nil
	}

	r.Register("read", "Read a file from the workspace.",
		MustSchema(readParams{}),
		func(_ context.Context, args map[string]any) (any, error) {
			var p readParams
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}
			path, err := resolve(p.Path)
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", p.Path, err)
			}
			limit := p.MaxBytes
			if limit < 1 {
				limit = defaultReadLimit
			}
			truncated := len(data) > limit
			if truncated {
				data = data[:limit]
			}
			return map[string]any{"path": p.Path, "content": string(data), "truncated": truncated}, nil
		})

	r.Register("grep", "Search workspace files for a regular expression.",
		MustSchema(grepParams{}),
		func(_ context.Context, args map[string]any) (any, error) {
			var p grepParams
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}
			re, err := regexp.Compile(p.Pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern: %w", err)
			}
			dir, err := resolve(p.Path)
			if err != nil {
				return nil, err
			}
			var matches []map[string]any
			err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
				if err != nil || info.IsDir() || info.Size() > 1<<20 {
					return err
				}
				data, readErr := os.ReadFile(path)
				if readErr != nil {
					return nil
				}
				for i, line := range strings.Split(string(data), "\n") {
					if re.MatchString(line) {
						rel, _ := filepath.Rel(root, path)
						matches = append(matches, map[string]any{"file": rel, "line": i + 1, "text": line})
						if len(matches) >= 200 {
							return filepath.SkipAll
						}
					}
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("grep failed: %w", err)
			}
			return map[string]any{"matches": matches}, nil
		})

	r.Register("list", "List a workspace directory.",
		MustSchema(listParams{}),
		func(_ context.Context, args map[string]any) (any, error) {
			var p listParams
			if err := decodeArgs(args, &p); err != nil {
				return nil, err
			}
			dir, err := resolve(p.Path)
			if err != nil {
				return nil, err
			}
			entries, err := os.ReadDir(dir)
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", p.Path, err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name()
				if e.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			return map[string]any{"entries": names}, nil
		})
}
