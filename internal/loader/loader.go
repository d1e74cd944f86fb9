// Package loader implements the modular service loader of §4.I: feature
// bundles are registered independently, mounted in dependency order, and
// described to the dashboard via a pure, serializable manifest.
package loader

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// UI is plain serializable metadata describing a bundle's dashboard tile.
// It deliberately contains no callables — the manifest must be a pure
// function of registered bundles (§4.I).
type UI struct {
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
	Order int    `json:"order,omitempty"`
}

// Bundle is a feature unit: routes + UI metadata + an init hook, declared
// with its dependencies on other bundles by name.
type Bundle struct {
	Name         string
	Description  string
	Dependencies []string

	// Routes, if non-nil, returns the sub-router mounted at Path along with
	// whether it requires authentication (default true).
	Routes func() (path string, router http.Handler, auth bool)

	UI *UI

	// Init runs once, after every bundle's router has been mounted, in
	// dependency order. May be nil.
	Init func(ctx context.Context) error
}

func (b Bundle) hasRoutes() bool { return b.Routes != nil }

// AuthWrapper wraps a bundle's router in the process's authenticator
// middleware. Bundles with auth=false (or no auth wrapper configured) are
// mounted unwrapped.
type AuthWrapper func(http.Handler) http.Handler

// Loader owns bundle registration, mount, and manifest generation.
type Loader struct {
	bundles map[string]Bundle
	order   []string // registration order, for stable iteration pre-sort
	auth    AuthWrapper
}

// New creates a Loader. auth wraps any bundle route whose auth flag is true
// (the default); pass nil to disable auth wrapping entirely.
func New(auth AuthWrapper) *Loader {
	return &Loader{bundles: make(map[string]Bundle), auth: auth}
}

// Register adds a bundle. Duplicate names are rejected with a warning and
// skipped — registration order is otherwise irrelevant, since Mount
// topologically sorts by declared Dependencies.
func (l *Loader) Register(b Bundle) {
	if _, exists := l.bundles[b.Name]; exists {
		log.Printf("[LOADER] duplicate bundle %q ignored", b.Name)
		return
	}
	l.bundles[b.Name] = b
	l.order = append(l.order, b.Name)
}

// Mount topologically sorts registered bundles by dependency, attaches each
// bundle's router (wrapped in auth middleware unless auth=false) to the
// given root router, then runs every Init hook in that same order. A
// missing dependency is only warned about; a dependency cycle is fatal and
// names a participating node.
func (l *Loader) Mount(ctx context.Context, root *mux.Router) error {
	sorted, err := l.topoSort()
	if err != nil {
		return err
	}

	for _, name := range sorted {
		b := l.bundles[name]
		if !b.hasRoutes() {
			continue
		}
		path, handler, auth := b.Routes()
		if auth && l.auth != nil {
			handler = l.auth(handler)
		}
		root.PathPrefix(path).Handler(http.StripPrefix(path, handler))
		log.Printf("[LOADER] mounted %q at %s (auth=%v)", name, path, auth)
	}

	for _, name := range sorted {
		b := l.bundles[name]
		if b.Init == nil {
			continue
		}
		if err := b.Init(ctx); err != nil {
			return fmt.Errorf("loader: init %q: %w", name, err)
		}
	}
	return nil
}

// UIManifest is the JSON document served at the dashboard's manifest
// endpoint: a pure function of registered bundles, in dependency order.
type UIManifest struct {
	Services []ManifestEntry `json:"services"`
}

type ManifestEntry struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UI          *UI    `json:"ui,omitempty"`
}

// UIManifestDoc builds the manifest. Bundles without UI metadata are still
// listed (UI omitted) so the dashboard can see every loaded service.
func (l *Loader) UIManifestDoc() UIManifest {
	sorted, err := l.topoSort()
	if err != nil {
		// Manifest generation must never fail the process; fall back to
		// registration order, which is still deterministic.
		sorted = append([]string(nil), l.order...)
	}
	doc := UIManifest{Services: make([]ManifestEntry, 0, len(sorted))}
	for _, name := range sorted {
		b := l.bundles[name]
		doc.Services = append(doc.Services, ManifestEntry{
			Name: b.Name, Description: b.Description, UI: b.UI,
		})
	}
	return doc
}

// topoSort orders bundles so each appears after all of its declared
// dependencies. Missing dependencies are warned about and ignored; a cycle
// returns an error naming one of its participants.
func (l *Loader) topoSort() ([]string, error) {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	state := make(map[string]int, len(l.bundles))
	var sorted []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case black:
			return nil
		case grey:
			return fmt.Errorf("loader: dependency cycle involving %q", name)
		}
		state[name] = grey
		b, ok := l.bundles[name]
		if !ok {
			return nil
		}
		for _, dep := range b.Dependencies {
			if _, ok := l.bundles[dep]; !ok {
				log.Printf("[LOADER] bundle %q depends on unregistered %q; ignoring", name, dep)
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = black
		sorted = append(sorted, name)
		return nil
	}

	for _, name := range l.order {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}
