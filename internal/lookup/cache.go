// Package lookup はソース名からソースIDを引くセッション単位のキャッシュを提供する。
package lookup

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/repodigest/internal/model"
)

// SourceLister はソース一覧を取得するインターフェース。
type SourceLister interface {
	ListSources(ctx context.Context, sourceType *model.SourceType) ([]model.Source, error)
}

// Cache はソース名→IDの対応を保持する。
// Refreshは常に全件を入れ替え、前回の内容を残さない。
// エントリは直近のRefreshで指定したソース種別の一覧に対応する。
type Cache struct {
	lister SourceLister

	mu         sync.RWMutex
	entries    map[string]int64
	loaded     bool
	sourceType *model.SourceType // nilは全種別
}

// NewCache はCacheを生成する。
func NewCache(lister SourceLister) *Cache {
	return &Cache{
		lister:  lister,
		entries: make(map[string]int64),
	}
}

// Refresh はキャッシュを空にしてからソース一覧で再構築し、取得した一覧を返す。
// 一覧取得に失敗した場合、キャッシュは空のまま残る。
func (c *Cache) Refresh(ctx context.Context, sourceType *model.SourceType) ([]model.Source, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.entries)
	c.loaded = false
	c.sourceType = nil

	sources, err := c.lister.ListSources(ctx, sourceType)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	for _, s := range sources {
		c.entries[s.Name] = s.ID
	}
	c.loaded = true
	if sourceType != nil {
		st := *sourceType
		c.sourceType = &st
	}
	return sources, nil
}

// matches はキャッシュがsourceTypeの一覧で構築済みかどうかを返す。
func (c *Cache) matches(sourceType *model.SourceType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.loaded {
		return false
	}
	if c.sourceType == nil || sourceType == nil {
		return c.sourceType == nil && sourceType == nil
	}
	return *c.sourceType == *sourceType
}

// Resolve はソース名に対応するIDを返す。
func (c *Cache) Resolve(name string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.entries[name]
	return id, ok
}

// ResolveOrRefresh はnameを解決し、見つからなければ一度だけRefreshしてから再試行する。
// キャッシュが別のソース種別で構築されている場合は未ヒットとして扱う。
func (c *Cache) ResolveOrRefresh(ctx context.Context, name string, sourceType *model.SourceType) (int64, bool, error) {
	if c.matches(sourceType) {
		if id, ok := c.Resolve(name); ok {
			return id, true, nil
		}
	}
	if _, err := c.Refresh(ctx, sourceType); err != nil {
		return 0, false, err
	}
	id, ok := c.Resolve(name)
	return id, ok, nil
}

// Len はキャッシュ済みのエントリ数を返す。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
