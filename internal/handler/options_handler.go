package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/repodigest/internal/lookup"
	"github.com/hitoshi/repodigest/internal/middleware"
	"github.com/hitoshi/repodigest/internal/model"
)

// CatalogService はモデル・ソース種別の一覧を提供するインターフェース。
// Source Directoryが使えない場合は代替データを返し、isMockをtrueにする。
type CatalogService interface {
	Models(ctx context.Context) (models []string, isMock bool)
	SourceTypes(ctx context.Context) (sourceTypes []string, isMock bool)
	Available() bool
	FallbackSources() []model.Source
}

// OptionsHandler は選択肢（モデル、ソース種別、ソース）のHTTPハンドラー。
type OptionsHandler struct {
	catalog CatalogService
	logger  *slog.Logger
}

// NewOptionsHandler はOptionsHandlerを生成する。
func NewOptionsHandler(catalog CatalogService, logger *slog.Logger) *OptionsHandler {
	return &OptionsHandler{catalog: catalog, logger: logger}
}

type listResponse struct {
	Items  []string `json:"items"`
	IsMock bool     `json:"is_mock"`
}

type sourcesResponse struct {
	SourceType string   `json:"source_type,omitempty"`
	Sources    []string `json:"sources"`
	IsMock     bool     `json:"is_mock"`
}

type optionsResponse struct {
	Models      listResponse    `json:"models"`
	SourceTypes listResponse    `json:"source_types"`
	Sources     sourcesResponse `json:"sources"`
}

// Options は画面の初期状態をまとめて返す。
// ソースは先頭のソース種別で取得し、セッションのLookup Cacheも更新する。
// GET /api/options
func (h *OptionsHandler) Options(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeSessionRequired(w)
		return
	}

	models, modelsMock := h.catalog.Models(r.Context())
	types, typesMock := h.catalog.SourceTypes(r.Context())

	resp := optionsResponse{
		Models:      listResponse{Items: nonNil(models), IsMock: modelsMock},
		SourceTypes: listResponse{Items: nonNil(types), IsMock: typesMock},
		Sources:     sourcesResponse{Sources: []string{}},
	}

	var first *model.SourceType
	if len(types) > 0 {
		if st, ok := model.ParseSourceType(types[0]); ok {
			first = &st
			resp.Sources.SourceType = st.String()
		}
	}
	names, isMock := h.refreshSources(r, sess.Cache, first)
	resp.Sources.Sources = names
	resp.Sources.IsMock = isMock

	writeJSON(w, http.StatusOK, resp)
}

// Models はモデル一覧を返す。
// GET /api/models
func (h *OptionsHandler) Models(w http.ResponseWriter, r *http.Request) {
	models, isMock := h.catalog.Models(r.Context())
	writeJSON(w, http.StatusOK, listResponse{Items: nonNil(models), IsMock: isMock})
}

// SourceTypes はソース種別一覧を返す。
// GET /api/source-types
func (h *OptionsHandler) SourceTypes(w http.ResponseWriter, r *http.Request) {
	types, isMock := h.catalog.SourceTypes(r.Context())
	writeJSON(w, http.StatusOK, listResponse{Items: nonNil(types), IsMock: isMock})
}

// Sources は指定ソース種別のソース名一覧を返す。
// 取得のたびにセッションのLookup Cacheを作り直す。
// GET /api/sources?source_type=github
func (h *OptionsHandler) Sources(w http.ResponseWriter, r *http.Request) {
	sess, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		writeSessionRequired(w)
		return
	}

	var sourceType *model.SourceType
	if raw := strings.TrimSpace(r.URL.Query().Get("source_type")); raw != "" {
		st, ok := model.ParseSourceType(raw)
		if !ok {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidSourceTypeError(raw))
			return
		}
		sourceType = &st
	}

	names, isMock := h.refreshSources(r, sess.Cache, sourceType)
	resp := sourcesResponse{Sources: names, IsMock: isMock}
	if sourceType != nil {
		resp.SourceType = sourceType.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// refreshSources はLookup Cacheを作り直し、表示用のソース名を返す。
// 取得に失敗した場合は代替のソース名を返すが、キャッシュは空のまま残す。
func (h *OptionsHandler) refreshSources(r *http.Request, cache *lookup.Cache, sourceType *model.SourceType) ([]string, bool) {
	sources, err := cache.Refresh(r.Context(), sourceType)
	if err != nil {
		h.logger.Warn("ソース一覧の取得に失敗しました", slog.String("error", err.Error()))
		return sourceNames(h.catalog.FallbackSources()), true
	}
	return sourceNames(sources), !h.catalog.Available()
}

func sourceNames(sources []model.Source) []string {
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name)
	}
	return names
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
