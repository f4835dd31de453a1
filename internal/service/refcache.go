// refcache.go — LRU-кэш справочников (xref.Map) с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable. Запись сбрасывается
// по событию изменения своей коллекции из ленты docstore.
package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/siteadmin/internal/docstore"
	"github.com/bigkaa/siteadmin/internal/domain/xref"
	"github.com/bigkaa/siteadmin/internal/screens"
)

// Prometheus-метрики кэша.
var (
	refCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sa_xref_cache_hits_total",
		Help: "Общее количество попаданий в кэш справочников.",
	})
	refCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sa_xref_cache_misses_total",
		Help: "Общее количество промахов кэша справочников.",
	})
)

// RefCache — кэш построенных справочников. Ключ — коллекция и базовые
// ограничения справочника.
type RefCache struct {
	cache *expirable.LRU[string, *xref.Map]
}

// NewRefCache создаёт кэш. size <= 0 — кэш отключён (каждый Get — промах).
func NewRefCache(size int, ttl time.Duration) *RefCache {
	if size <= 0 {
		return &RefCache{}
	}
	return &RefCache{cache: expirable.NewLRU[string, *xref.Map](size, nil, ttl)}
}

// refKey — ключ кэша: "<collection>|k1=v1,k2=v2|<source>".
func refKey(ref screens.Reference) string {
	keys := slices.Sorted(maps.Keys(ref.Base))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+ref.Base[k])
	}
	return fmt.Sprintf("%s|%s|%+v", ref.Collection, strings.Join(parts, ","), ref.Source)
}

// Get возвращает справочник. Обновляет метрики hit/miss.
func (c *RefCache) Get(ref screens.Reference) (*xref.Map, bool) {
	if c.cache == nil {
		refCacheMissesTotal.Inc()
		return nil, false
	}
	m, ok := c.cache.Get(refKey(ref))
	if ok {
		refCacheHitsTotal.Inc()
		return m, true
	}
	refCacheMissesTotal.Inc()
	return nil, false
}

// Set сохраняет справочник.
func (c *RefCache) Set(ref screens.Reference, m *xref.Map) {
	if c.cache == nil {
		return
	}
	c.cache.Add(refKey(ref), m)
}

// Invalidate удаляет все справочники коллекции.
func (c *RefCache) Invalidate(collection string) {
	if c.cache == nil {
		return
	}
	prefix := collection + "|"
	for _, k := range c.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.cache.Remove(k)
		}
	}
}

// Len возвращает количество справочников в кэше.
func (c *RefCache) Len() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

// Follow сбрасывает справочники по событиям ленты изменений до отмены ctx.
func (c *RefCache) Follow(ctx context.Context, broker *docstore.Broker) {
	events, unsubscribe := broker.Subscribe("", 64)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.Invalidate(ev.Collection)
		}
	}
}
