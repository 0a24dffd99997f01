package catalog

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/svd-classify/internal/domain"
)

//go:embed guidelines/*.yaml
var builtinFS embed.FS

// DefaultOptionCacheSize bounds the number of memoised dropdown option lists.
const DefaultOptionCacheSize = 512

// Catalog is an immutable set of loaded guidelines with a dropdown option
// cache scoped to it. A reload builds a new Catalog; the old one keeps working
// for anyone still holding it.
type Catalog struct {
	guidelines map[string]*domain.Guideline
	options    *lru.Cache[string, []DropdownOption]
	loadedAt   time.Time
}

// NewCatalog indexes guidelines by name.
func NewCatalog(guidelines []*domain.Guideline, cacheSize int) (*Catalog, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultOptionCacheSize
	}
	cache, err := lru.New[string, []DropdownOption](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating option cache: %w", err)
	}

	c := &Catalog{
		guidelines: make(map[string]*domain.Guideline, len(guidelines)),
		options:    cache,
		loadedAt:   time.Now(),
	}
	for _, g := range guidelines {
		if _, dup := c.guidelines[g.Name]; dup {
			return nil, fmt.Errorf("guideline %s defined more than once", g.Name)
		}
		c.guidelines[g.Name] = g
	}
	return c, nil
}

// Guideline returns a guideline by name.
func (c *Catalog) Guideline(name string) (*domain.Guideline, error) {
	g, ok := c.guidelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownGuideline, name)
	}
	return g, nil
}

// Guidelines returns every loaded guideline sorted by name.
func (c *Catalog) Guidelines() []*domain.Guideline {
	out := make([]*domain.Guideline, 0, len(c.guidelines))
	for _, g := range c.guidelines {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadedAt is when the catalog was built.
func (c *Catalog) LoadedAt() time.Time {
	return c.loadedAt
}

// DropdownOptions returns the options for a dropdown key of a guideline.
// The result is memoised; callers get their own copy.
func (c *Catalog) DropdownOptions(guideline, key string) ([]DropdownOption, error) {
	cacheKey := guideline + "/" + key
	if opts, ok := c.options.Get(cacheKey); ok {
		return append([]DropdownOption(nil), opts...), nil
	}

	g, err := c.Guideline(guideline)
	if err != nil {
		return nil, err
	}
	opts, err := BuildDropdownOptions(g, SplitKey(key))
	if err != nil {
		return nil, err
	}
	c.options.Add(cacheKey, opts)
	return append([]DropdownOption(nil), opts...), nil
}

// LoadOptions controls which guidelines Load reads.
type LoadOptions struct {
	Dir       string   // optional directory of *.yaml / *.yml guideline files
	Enabled   []string // keep only these guidelines; empty keeps all
	CacheSize int
}

// Builtin returns the guidelines compiled into the binary.
func Builtin() ([]*domain.Guideline, error) {
	entries, err := builtinFS.ReadDir("guidelines")
	if err != nil {
		return nil, fmt.Errorf("reading builtin guidelines: %w", err)
	}
	var out []*domain.Guideline
	for _, e := range entries {
		f, err := builtinFS.Open("guidelines/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("opening builtin guideline %s: %w", e.Name(), err)
		}
		g, err := LoadGuideline(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("loading builtin guideline %s: %w", e.Name(), err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Load builds a catalog from the builtin guidelines and any files in opts.Dir.
// A file guideline replaces a builtin of the same name.
func Load(opts LoadOptions) (*Catalog, error) {
	builtin, err := Builtin()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*domain.Guideline, len(builtin))
	for _, g := range builtin {
		byName[g.Name] = g
	}

	if opts.Dir != "" {
		fromDir, err := loadDir(opts.Dir)
		if err != nil {
			return nil, err
		}
		for _, g := range fromDir {
			byName[g.Name] = g
		}
	}

	var selected []*domain.Guideline
	if len(opts.Enabled) == 0 {
		for _, g := range byName {
			selected = append(selected, g)
		}
	} else {
		for _, name := range opts.Enabled {
			g, ok := byName[name]
			if !ok {
				return nil, fmt.Errorf("%w: %s is enabled but not defined", domain.ErrUnknownGuideline, name)
			}
			selected = append(selected, g)
		}
	}
	return NewCatalog(selected, opts.CacheSize)
}

func loadDir(dir string) ([]*domain.Guideline, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading guideline directory %s: %w", dir, err)
	}
	seen := make(map[string]string)
	var out []*domain.Guideline
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		g, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[g.Name]; dup {
			return nil, fmt.Errorf("guideline %s defined in both %s and %s", g.Name, prev, path)
		}
		seen[g.Name] = path
		out = append(out, g)
	}
	return out, nil
}

// Registry holds the current catalog and swaps it atomically on reload.
type Registry struct {
	current atomic.Pointer[Catalog]
	opts    LoadOptions
	logger  *logrus.Logger
	mu      sync.Mutex
}

// NewRegistry loads the initial catalog.
func NewRegistry(opts LoadOptions, logger *logrus.Logger) (*Registry, error) {
	cat, err := Load(opts)
	if err != nil {
		return nil, err
	}
	r := &Registry{opts: opts, logger: logger}
	r.current.Store(cat)
	logger.WithFields(logrus.Fields{
		"guidelines": guidelineNames(cat),
		"dir":        opts.Dir,
	}).Info("Guideline catalog loaded")
	return r, nil
}

// NewStaticRegistry wraps an already built catalog. Reload rebuilds from the
// builtin guidelines only.
func NewStaticRegistry(cat *Catalog, logger *logrus.Logger) *Registry {
	r := &Registry{logger: logger}
	r.current.Store(cat)
	return r
}

// Current returns the catalog in effect.
func (r *Registry) Current() *Catalog {
	return r.current.Load()
}

// Reload rebuilds the catalog and swaps it in. On failure the current catalog
// stays in place.
func (r *Registry) Reload() (*Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cat, err := Load(r.opts)
	if err != nil {
		r.logger.WithError(err).Error("Guideline catalog reload failed, keeping current catalog")
		return nil, err
	}
	r.current.Store(cat)
	r.logger.WithField("guidelines", guidelineNames(cat)).Info("Guideline catalog reloaded")
	return cat, nil
}

func guidelineNames(c *Catalog) []string {
	names := make([]string, 0, len(c.guidelines))
	for _, g := range c.Guidelines() {
		names = append(names, g.Name)
	}
	return names
}
