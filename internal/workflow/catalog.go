package workflow

import (
	"context"
	"log/slog"

	"github.com/hitoshi/repodigest/internal/directory"
	"github.com/hitoshi/repodigest/internal/mock"
	"github.com/hitoshi/repodigest/internal/model"
)

// フォールバックのカテゴリ名。メトリクスのラベルとしても使う。
const (
	CategoryModels      = "models"
	CategorySourceTypes = "source_types"
	CategorySources     = "sources"
	CategoryFetch       = "fetch"
)

// Catalog はモデル・ソース種別・ソースの一覧を提供する。
// モデルとソース種別は、Source Directoryの結果がunavailableまたはfailedの場合に代替データへ切り替える。
// ソース一覧の代替はunavailableの場合のみ。
type Catalog struct {
	gateway  *directory.Gateway
	logger   *slog.Logger
	observer Observer
}

// NewCatalog はCatalogを生成する。observerはnilでもよい。
func NewCatalog(gateway *directory.Gateway, logger *slog.Logger, observer Observer) *Catalog {
	return &Catalog{
		gateway:  gateway,
		logger:   logger,
		observer: observer,
	}
}

// Models はLLMモデル一覧を返す。2番目の戻り値は代替データかどうか。
func (c *Catalog) Models(ctx context.Context) ([]string, bool) {
	res := c.gateway.Models(ctx)
	if res.OK() {
		return res.Value, false
	}
	c.fallback(CategoryModels, res.State, res.Reason())
	return mock.Models(), true
}

// SourceTypes はソース種別の表示名一覧を返す。
// 列挙に存在しない数値は"unknown"として表示される。
func (c *Catalog) SourceTypes(ctx context.Context) ([]string, bool) {
	res := c.gateway.SourceTypes(ctx)
	if res.OK() {
		names := make([]string, 0, len(res.Value))
		for _, v := range res.Value {
			names = append(names, model.SourceType(v).String())
		}
		return names, false
	}

	c.fallback(CategorySourceTypes, res.State, res.Reason())
	types := mock.SourceTypes()
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, t.String())
	}
	return names, true
}

// ListSources はlookup.SourceListerを実装する。
// 代替データを使うのはSource Directoryが未設定の場合のみで、
// 設定済みのSource Directoryの取得失敗はエラーとして返す。
// 代替データのIDを設定済みのSource Directoryへ渡してはならない。
func (c *Catalog) ListSources(ctx context.Context, sourceType *model.SourceType) ([]model.Source, error) {
	res := c.gateway.Sources(ctx, sourceType)
	switch res.State {
	case directory.StateOK:
		return res.Value, nil
	case directory.StateUnavailable:
		c.fallback(CategorySources, res.State, "")
		return mock.Sources(), nil
	default:
		return nil, &ListingError{Reason: res.Reason()}
	}
}

// Available はSource Directoryが設定されているかどうかを返す。
func (c *Catalog) Available() bool {
	return c.gateway.Available()
}

// FallbackSources は一覧取得に失敗した場合に画面へ表示する代替のソース一覧を返す。
// 返したソースのIDはLookup Cacheに入れてはならない。
func (c *Catalog) FallbackSources() []model.Source {
	if c.observer != nil {
		c.observer.RecordFallback(CategorySources)
	}
	return mock.Sources()
}

// ListingError は設定済みのSource Directoryからソース一覧を取得できなかったことを表す。
type ListingError struct {
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *ListingError) Error() string {
	return "source listing failed: " + e.Reason
}

func (c *Catalog) fallback(category string, state directory.State, reason string) {
	if state == directory.StateFailed {
		c.logger.Warn("Source Directoryからの取得に失敗したため代替データを使用します",
			slog.String("category", category),
			slog.String("reason", reason),
		)
	} else {
		c.logger.Debug("Source Directoryが未設定のため代替データを使用します",
			slog.String("category", category),
		)
	}
	if c.observer != nil {
		c.observer.RecordFallback(category)
	}
}
