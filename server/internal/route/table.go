package route

import (
	"net/http"
	"strings"
	"sync"
)

// Handler serves one registered route. A non-nil error is a dispatch fault:
// the dispatcher answers 500 if nothing was written yet and logs the request
// with status 500.
type Handler interface {
	ServeRoute(w http.ResponseWriter, r *http.Request) error
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// ServeRoute calls f(w, r).
func (f HandlerFunc) ServeRoute(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Entry is one row of the route table as reported by List.
type Entry struct {
	Path    string `json:"path"`
	Method  string `json:"method"`
	Handler string `json:"handler"`
	Enabled bool   `json:"enabled"`
	handler Handler
}

// Table is a concurrency-safe (method, path) -> Handler registry.
type Table struct {
	mu     sync.RWMutex
	routes map[string]*Entry
	order  []string // keys in first-registration order
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{routes: make(map[string]*Entry)}
}

func key(path, method string) string {
	return strings.ToUpper(method) + ":" + path
}

// Add registers h under (method, path), replacing any existing entry.
// name is the label reported by List.
func (t *Table) Add(path, method, name string, h Handler) {
	k := key(path, method)
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.routes[k]; !exists {
		t.order = append(t.order, k)
	}
	t.routes[k] = &Entry{
		Path:    path,
		Method:  strings.ToUpper(method),
		Handler: name,
		Enabled: true,
		handler: h,
	}
}

// Handler returns the enabled handler registered under (method, path).
func (t *Table) Handler(path, method string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.routes[key(path, method)]
	if !ok || !e.Enabled {
		return nil, false
	}
	return e.handler, true
}

// Remove deletes the entry for (method, path) and reports whether it existed.
func (t *Table) Remove(path, method string) bool {
	k := key(path, method)
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.routes[k]; !ok {
		return false
	}
	delete(t.routes, k)
	for i, o := range t.order {
		if o == k {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// SetEnabled toggles the entry for (method, path) and reports whether it exists.
func (t *Table) SetEnabled(path, method string, enabled bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.routes[key(path, method)]
	if !ok {
		return false
	}
	e.Enabled = enabled
	return true
}

// List returns a copy of every entry in registration order.
func (t *Table) List() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Entry, 0, len(t.order))
	for _, k := range t.order {
		e := *t.routes[k]
		e.handler = nil
		out = append(out, e)
	}
	return out
}

// Len returns the number of registered routes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}
