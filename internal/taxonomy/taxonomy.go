// Package taxonomy loads and caches the process-wide tag taxonomy
// (spec.md §3 TagTaxonomy, §6.5): a YAML file with a domains tree and
// flat status/quality sections, cached with a TTL and invalidated on
// file mtime change. The cache is process-wide and read-mostly (spec.md
// §5's shared-resource policy).
package taxonomy

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"secondbrain/internal/logging"
)

var log = logging.Get(logging.CategoryStore)

type rawFile struct {
	Domains map[string]any `yaml:"domains"`
	Status  []string       `yaml:"status"`
	Quality []string       `yaml:"quality"`
}

// Cache lazily loads and caches a taxonomy file.
type Cache struct {
	path string
	ttl  time.Duration

	mu         sync.RWMutex
	loadedAt   time.Time
	modTime    time.Time
	domainTags map[string]bool // flattened "ml/architecture/transformers" -> true
	status     []string
	quality    []string
}

// NewCache builds a Cache for path with the given TTL.
func NewCache(path string, ttl time.Duration) *Cache {
	return &Cache{path: path, ttl: ttl}
}

// Load reads the taxonomy file if the cache is stale (TTL expired or
// the file's mtime has advanced past what was last loaded).
func (c *Cache) Load() error {
	c.mu.RLock()
	stale := c.needsReload()
	c.mu.RUnlock()
	if !stale {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.needsReload() {
		return nil
	}

	info, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("taxonomy: stat %s: %w", c.path, err)
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("taxonomy: read %s: %w", c.path, err)
	}

	var rf rawFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("taxonomy: parse %s: %w", c.path, err)
	}

	flat := make(map[string]bool)
	flattenDomains("", rf.Domains, flat)

	c.domainTags = flat
	c.status = rf.Status
	c.quality = rf.Quality
	c.loadedAt = time.Now()
	c.modTime = info.ModTime()
	log.Debug("taxonomy reloaded from %s (%d domain tags)", c.path, len(flat))
	return nil
}

func (c *Cache) needsReload() bool {
	if c.domainTags == nil {
		return true
	}
	if time.Since(c.loadedAt) > c.ttl {
		return true
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return false // keep serving stale cache if the file vanished transiently
	}
	return info.ModTime().After(c.modTime)
}

func flattenDomains(prefix string, node map[string]any, out map[string]bool) {
	for key, val := range node {
		path := key
		if prefix != "" {
			path = prefix + "/" + key
		}
		out[path] = true
		if sub, ok := val.(map[string]any); ok {
			flattenDomains(path, sub, out)
		}
	}
}

// Invalidate forces the next Load to re-read the file regardless of TTL.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.domainTags = nil
}

// Validate reports whether tag is a domain tag, a status/quality meta
// tag (prefixed "status/" or "quality/"), or neither.
func (c *Cache) Validate(tag string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.domainTags[tag] {
		return true
	}
	if rest, ok := strings.CutPrefix(tag, "status/"); ok {
		return contains(c.status, rest)
	}
	if rest, ok := strings.CutPrefix(tag, "quality/"); ok {
		return contains(c.quality, rest)
	}
	return false
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Partition splits tags into those that validate against the taxonomy
// and those that don't. The orchestrator's stage 5 keeps the latter
// off the record and only logs them.
func (c *Cache) Partition(tags []string) (valid, suggested []string) {
	for _, t := range tags {
		if c.Validate(t) {
			valid = append(valid, t)
		} else {
			suggested = append(suggested, t)
		}
	}
	return valid, suggested
}
