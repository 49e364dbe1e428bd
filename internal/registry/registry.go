// Package registry holds the immutable table of generator modules: their
// names, default models, categories and descriptions.
package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

// DefaultModel is the model used when a module has none or is unknown.
const DefaultModel = "gemini-1.5-flash"

//go:embed modules.yaml
var builtin []byte

// ErrModuleNotFound is returned for names the registry does not know.
var ErrModuleNotFound = errors.New("registry: module not found")

// NotFoundError reports an unknown module together with the valid names.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("module %q not found in registry; available modules: %s", e.Name, strings.Join(e.Available, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrModuleNotFound }

// Module is the metadata of one generator module.
type Module struct {
	Name        string `yaml:"name" json:"name"`
	Path        string `yaml:"path" json:"path"`
	Model       string `yaml:"model" json:"model"`
	Category    string `yaml:"category" json:"category"`
	Description string `yaml:"description" json:"description"`
}

// WithModel returns a copy of m using model. An empty model keeps the
// current one.
func (m Module) WithModel(model string) Module {
	if strings.TrimSpace(model) != "" {
		m.Model = strings.TrimSpace(model)
	}
	return m
}

type file struct {
	Modules []Module `yaml:"modules"`
}

// Registry maps module names to metadata. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	byName map[string]Module
	names  []string
}

// Default returns the registry built from the embedded module table.
func Default() (*Registry, error) {
	return parse(builtin)
}

// Load parses a module table in YAML form.
func Load(r io.Reader) (*Registry, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return parse(b)
}

// LoadFile returns the embedded registry overlaid with the modules in path.
// Entries in the file replace built-in entries of the same name.
func LoadFile(path string) (*Registry, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	defer f.Close()
	overlay, err := Load(f)
	if err != nil {
		return nil, err
	}
	return base.Merge(overlay), nil
}

func parse(b []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return build(f.Modules)
}

func build(mods []Module) (*Registry, error) {
	r := &Registry{byName: make(map[string]Module, len(mods))}
	for i, m := range mods {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return nil, fmt.Errorf("registry entry %d: empty name", i)
		}
		if _, dup := r.byName[m.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate module %q", m.Name)
		}
		if strings.TrimSpace(m.Model) == "" {
			m.Model = DefaultModel
		}
		r.byName[m.Name] = m
		r.names = append(r.names, m.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Merge returns a new registry with overlay's modules added to or replacing
// r's. Neither input is modified.
func (r *Registry) Merge(overlay *Registry) *Registry {
	out := &Registry{byName: make(map[string]Module, len(r.byName))}
	for name, m := range r.byName {
		out.byName[name] = m
	}
	if overlay != nil {
		for name, m := range overlay.byName {
			out.byName[name] = m
		}
	}
	for name := range out.byName {
		out.names = append(out.names, name)
	}
	sort.Strings(out.names)
	return out
}

// Lookup returns the module named name.
func (r *Registry) Lookup(name string) (Module, bool) {
	if r == nil {
		return Module{}, false
	}
	m, ok := r.byName[strings.TrimSpace(name)]
	return m, ok
}

// Require is Lookup that reports unknown names as a *NotFoundError.
func (r *Registry) Require(name string) (Module, error) {
	if m, ok := r.Lookup(name); ok {
		return m, nil
	}
	return Module{}, &NotFoundError{Name: name, Available: r.Names()}
}

// ModelFor returns the model configured for name, or fallback when the
// module is unknown. An empty fallback means DefaultModel.
func (r *Registry) ModelFor(name, fallback string) string {
	if m, ok := r.Lookup(name); ok {
		return m.Model
	}
	if fallback == "" {
		return DefaultModel
	}
	return fallback
}

// Names lists module names in ascending order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.names...)
}

// ByCategory returns the modules in category, ordered by name.
func (r *Registry) ByCategory(category string) []Module {
	var out []Module
	for _, name := range r.Names() {
		if m := r.byName[name]; m.Category == category {
			out = append(out, m)
		}
	}
	return out
}

// Categories lists the distinct categories in ascending order.
func (r *Registry) Categories() []string {
	seen := map[string]bool{}
	var out []string
	for _, name := range r.Names() {
		c := r.byName[name].Category
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Len reports the number of modules.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byName)
}
