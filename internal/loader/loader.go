// Package loader resolves worker designators to compiled script source.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/cryguy/jsworker/internal/core"
)

// extensions tried, in order, for a designator without one.
var extensions = []string{".js", ".ts"}

// FSLoader loads scripts from a file system. Designators are slash
// separated paths relative to the root; a leading "./" or "/" is ignored
// and "../" may not escape the root.
type FSLoader struct {
	fsys    fs.FS
	dir     string // on-disk root, enables bundling of import graphs
	maxSize int64
}

var _ core.ScriptLoader = (*FSLoader)(nil)

// NewFS returns a loader over fsys. maxSizeKB <= 0 disables the limit.
func NewFS(fsys fs.FS, maxSizeKB int) *FSLoader {
	return &FSLoader{fsys: fsys, maxSize: int64(maxSizeKB) * 1024}
}

// NewDir returns a loader rooted at the directory dir. Scripts that import
// other modules are bundled.
func NewDir(dir string, maxSizeKB int) *FSLoader {
	l := NewFS(os.DirFS(dir), maxSizeKB)
	l.dir = dir
	return l
}

// Load implements core.ScriptLoader.
func (l *FSLoader) Load(designator string) (*core.Script, error) {
	name, err := clean(designator)
	if err != nil {
		return nil, notFound(designator, err)
	}

	for _, candidate := range candidates(name) {
		info, err := fs.Stat(l.fsys, candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if l.maxSize > 0 && info.Size() > l.maxSize {
			return nil, core.ScriptLoad(candidate, fmt.Errorf("script is %d bytes, limit is %d", info.Size(), l.maxSize))
		}

		src, err := fs.ReadFile(l.fsys, candidate)
		if err != nil {
			return nil, core.ScriptLoad(candidate, err)
		}
		if l.dir != "" && needsBundling(string(src)) {
			return Bundle(l.dir, candidate)
		}
		return Compile(candidate, string(src))
	}
	return nil, notFound(designator, fs.ErrNotExist)
}

// MapLoader serves scripts from memory, keyed by cleaned path.
type MapLoader map[string]string

var _ core.ScriptLoader = MapLoader(nil)

// Load implements core.ScriptLoader.
func (m MapLoader) Load(designator string) (*core.Script, error) {
	name, err := clean(designator)
	if err != nil {
		return nil, notFound(designator, err)
	}
	for _, candidate := range candidates(name) {
		if src, ok := m[candidate]; ok {
			return Compile(candidate, src)
		}
	}
	return nil, notFound(designator, fs.ErrNotExist)
}

func clean(designator string) (string, error) {
	p := strings.TrimPrefix(designator, "./")
	p = strings.TrimLeft(p, "/")
	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") || !fs.ValidPath(p) {
		return "", fmt.Errorf("invalid script path %q", designator)
	}
	return p, nil
}

func candidates(name string) []string {
	if path.Ext(name) != "" {
		return []string{name}
	}
	out := make([]string, 0, len(extensions)+1)
	for _, ext := range extensions {
		out = append(out, name+ext)
	}
	return append(out, name)
}
