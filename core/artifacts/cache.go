package artifacts

import (
	"sync"

	"github.com/LycusCoder/Klasifikasi-Gambar-Dasar-Mini-Vision-System/core/models"
)

// MetricsSource loads the newest metrics document, nil when none exists
type MetricsSource interface {
	LoadLatest() *models.MetricsDocument
}

// MetricsCache is a single-slot cache of the last loaded metrics document.
// It scans once on first read and afterwards only when Refresh is called.
type MetricsCache struct {
	source MetricsSource

	mu     sync.RWMutex
	loaded bool
	doc    *models.MetricsDocument
}

// NewMetricsCache creates an empty cache backed by source
func NewMetricsCache(source MetricsSource) *MetricsCache {
	return &MetricsCache{source: source}
}

// Get returns the cached document, populating the slot on first use
func (c *MetricsCache) Get() *models.MetricsDocument {
	c.mu.RLock()
	if c.loaded {
		doc := c.doc
		c.mu.RUnlock()
		return doc
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		c.doc = c.source.LoadLatest()
		c.loaded = true
	}
	return c.doc
}

// Refresh rescans unconditionally and replaces the cached document
func (c *MetricsCache) Refresh() *models.MetricsDocument {
	doc := c.source.LoadLatest()

	c.mu.Lock()
	c.doc = doc
	c.loaded = true
	c.mu.Unlock()
	return doc
}
