package querycache

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/sergeknystautas/githistory/internal/history"
)

// Workspace is a registered workspace.
type Workspace struct {
	ID   string
	Path string
}

// registry maps short ids to workspace paths. An id, once handed out, is
// bound to its path for the lifetime of the process.
type registry struct {
	mu     sync.RWMutex
	byID   map[string]Workspace
	byPath map[string]string
	sum    func(string) uint64
}

func newRegistry() *registry {
	return &registry{
		byID:   make(map[string]Workspace),
		byPath: make(map[string]string),
		sum:    xxhash.Sum64String,
	}
}

// register returns the id for path, deriving a new one on first sight.
// Relative paths resolve against the process working directory.
func (r *registry) register(path string) (Workspace, error) {
	if strings.TrimSpace(path) == "" {
		return Workspace{}, history.InvalidArgumentf("workspace path is required")
	}
	clean, err := filepath.Abs(path)
	if err != nil {
		return Workspace{}, history.InvalidArgumentf("invalid workspace path %q: %v", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPath[clean]; ok {
		return r.byID[id], nil
	}

	id := r.shortID(clean, 0)
	for salt := 1; ; salt++ {
		if _, taken := r.byID[id]; !taken {
			break
		}
		id = r.shortID(clean, salt)
	}

	ws := Workspace{ID: id, Path: clean}
	r.byID[id] = ws
	r.byPath[clean] = id
	return ws, nil
}

// shortID renders the 64-bit hash of path in base36.
func (r *registry) shortID(path string, salt int) string {
	key := path
	if salt > 0 {
		key = path + "\x00" + strconv.Itoa(salt)
	}
	return strconv.FormatUint(r.sum(key), 36)
}

func (r *registry) lookup(id string) (Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.byID[id]
	if !ok {
		return Workspace{}, history.NotFoundf("workspace not registered: %s", id)
	}
	return ws, nil
}

func (r *registry) list() []Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Workspace, 0, len(r.byID))
	for _, ws := range r.byID {
		out = append(out, ws)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
