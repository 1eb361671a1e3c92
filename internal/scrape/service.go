package scrape

import (
	"context"
	"log/slog"
	"strings"

	"github.com/John-Robertt/dramaapi/internal/config"
	"github.com/John-Robertt/dramaapi/internal/domain"
	"github.com/John-Robertt/dramaapi/internal/extract"
	"github.com/John-Robertt/dramaapi/internal/fetch"
	"github.com/John-Robertt/dramaapi/internal/infra/snapshot"
	"github.com/John-Robertt/dramaapi/internal/metrics"
)

const (
	kindHome   = "home"
	kindDetail = "detail"
	kindPlay   = "play"
)

// Service 把“定位页面 + 抽取”组合成对外的查询操作。
//
// 约束：
// - 每次调用都重新抓取，不跨请求缓存
// - 单个请求内串行尝试候选 URL
// - Snapshots 非空时落盘每个被采纳的页面；落盘失败只记日志
type Service struct {
	Fetcher     *fetch.Fetcher
	Paths       config.Paths
	Limits      config.Limits
	DefaultLang string

	Snapshots *snapshot.Store
	Logger    *slog.Logger
}

// New 根据生效配置组装 Service。
func New(f *fetch.Fetcher, eff config.EffectiveConfig, logger *slog.Logger) *Service {
	s := &Service{
		Fetcher:     f,
		Paths:       eff.Paths,
		Limits:      eff.Limits,
		DefaultLang: eff.DefaultLang,
		Logger:      logger,
	}
	if strings.TrimSpace(eff.SnapshotDir) != "" {
		st := snapshot.New(eff.SnapshotDir, false)
		s.Snapshots = &st
	}
	return s
}

// ChapterList 是 Chapters 的结果。
type ChapterList struct {
	BookID   string
	Title    string
	Chapters []domain.ChapterItem
}

// Home 返回首页条目。首页抓取失败或抽取为空时返回空列表（不是错误）。
func (s *Service) Home(ctx context.Context, lang string) ([]domain.ListingItem, error) {
	lang, err := s.lang(lang)
	if err != nil {
		return nil, err
	}
	page, ok, err := s.page(ctx, kindHome, lang, s.Paths.Home, fetch.Vars{Lang: lang})
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.ListingItem{}, nil
	}
	items, trace := extract.ListingTrace(page.Body, s.options(lang))
	for _, c := range trace {
		metrics.ExtractItems.WithLabelValues("listing", c.Strategy).Add(float64(c.Added))
	}
	if items == nil {
		items = []domain.ListingItem{}
	}
	return items, nil
}

// Search 在首页条目中按标题做大小写不敏感的子串匹配。
func (s *Service) Search(ctx context.Context, q, lang string) ([]domain.ListingItem, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, &InputError{Field: "q", Msg: "query parameter q is required"}
	}
	items, err := s.Home(ctx, lang)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(q)
	out := make([]domain.ListingItem, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.Title), needle) {
			out = append(out, it)
		}
	}
	return out, nil
}

// Hot 返回首页前 Limits.Hot 条。
func (s *Service) Hot(ctx context.Context, lang string) ([]domain.ListingItem, error) {
	items, err := s.Home(ctx, lang)
	if err != nil {
		return nil, err
	}
	if n := s.Limits.Hot; n > 0 && len(items) > n {
		items = items[:n]
	}
	return items, nil
}

// Book 返回剧集详情；页面不存在或抽不出标题时返回 ErrNotFound。
func (s *Service) Book(ctx context.Context, id, lang string) (domain.DetailRecord, error) {
	id, lang, err := s.idLang(id, lang)
	if err != nil {
		return domain.DetailRecord{}, err
	}
	page, ok, err := s.page(ctx, kindDetail, id, s.Paths.Detail, fetch.Vars{Lang: lang, ID: id})
	if err != nil {
		return domain.DetailRecord{}, err
	}
	if !ok {
		return domain.DetailRecord{}, notFound("book", id)
	}
	rec, ok := extract.Detail(page.Body, id, s.options(lang))
	if !ok {
		return domain.DetailRecord{}, notFound("book", id)
	}
	rec.URL = page.URL
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if rec.Chapters == nil {
		rec.Chapters = []domain.ChapterItem{}
	}
	metrics.ExtractItems.WithLabelValues("detail", "chapters").Add(float64(len(rec.Chapters)))
	return rec, nil
}

// Chapters 返回剧集的章节列表。页面存在但没有标题时仍返回章节（Title 为空）。
func (s *Service) Chapters(ctx context.Context, id, lang string) (ChapterList, error) {
	id, lang, err := s.idLang(id, lang)
	if err != nil {
		return ChapterList{}, err
	}
	page, ok, err := s.page(ctx, kindDetail, id, s.Paths.Detail, fetch.Vars{Lang: lang, ID: id})
	if err != nil {
		return ChapterList{}, err
	}
	if !ok {
		return ChapterList{}, notFound("book", id)
	}

	out := ChapterList{BookID: id}
	if rec, ok := extract.Detail(page.Body, id, s.options(lang)); ok {
		out.Title = rec.Title
		out.Chapters = rec.Chapters
	} else {
		out.Chapters = extract.Chapters(page.Body, id, s.options(lang))
	}
	if out.Chapters == nil {
		out.Chapters = []domain.ChapterItem{}
	}
	metrics.ExtractItems.WithLabelValues("detail", "chapters").Add(float64(len(out.Chapters)))
	return out, nil
}

// Play 返回播放页上的全部媒体源；一个都没有时返回 ErrNotFound。
func (s *Service) Play(ctx context.Context, id, lang string) ([]domain.MediaSource, error) {
	id, lang, err := s.idLang(id, lang)
	if err != nil {
		return nil, err
	}
	page, ok, err := s.page(ctx, kindPlay, id, s.Paths.Play, fetch.Vars{Lang: lang, ID: id})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("episode", id)
	}
	sources, trace := extract.MediaTrace(page.Body, s.Fetcher.BaseURL)
	for _, c := range trace {
		metrics.ExtractItems.WithLabelValues("media", c.Strategy).Add(float64(c.Added))
	}
	if len(sources) == 0 {
		return nil, notFound("episode", id)
	}
	return sources, nil
}

// Stream 返回首选播放流以及全部媒体源。
func (s *Service) Stream(ctx context.Context, id, lang string) (domain.Stream, error) {
	sources, err := s.Play(ctx, id, lang)
	if err != nil {
		return domain.Stream{}, err
	}
	best, ok := extract.Best(sources)
	if !ok {
		return domain.Stream{}, notFound("episode", id)
	}
	return domain.Stream{
		ID:         strings.TrimSpace(id),
		StreamURL:  best.URL,
		Type:       best.Type,
		Quality:    best.Quality,
		AllSources: sources,
	}, nil
}

// page 按模板抓取页面；只有 ctx 被取消时才返回 error。
func (s *Service) page(ctx context.Context, kind, key string, templates []string, v fetch.Vars) (fetch.Page, bool, error) {
	page, attempts, ok := s.Fetcher.First(ctx, templates, v)
	if !ok {
		if err := ctx.Err(); err != nil {
			return fetch.Page{}, false, err
		}
		s.logger().Info("page not found", slog.String("kind", kind), slog.String("key", key), slog.String("attempts", fetch.Summary(attempts)))
		return fetch.Page{}, false, nil
	}
	s.snapshot(kind, key, page.Body)
	return page, true, nil
}

func (s *Service) snapshot(kind, key string, body []byte) {
	if s.Snapshots == nil {
		return
	}
	if err := s.Snapshots.WritePage(kind, key, body); err != nil {
		s.logger().Warn("snapshot write failed", slog.String("kind", kind), slog.String("key", key), slog.Any("error", err))
	}
}

func (s *Service) options(lang string) extract.Options {
	return ExtractOptions(s.Fetcher.BaseURL, s.Paths, s.Limits, lang)
}

// ExtractOptions 把站点配置转换为抽取器参数。
// 没有 href 的条目使用第一个详情页模板作为规范 URL，只有 ID 的章节使用第一个播放页模板。
func ExtractOptions(baseURL string, paths config.Paths, limits config.Limits, lang string) extract.Options {
	return extract.Options{
		Origin:            baseURL,
		Lang:              lang,
		ItemURL:           templateURL(baseURL, paths.Detail, lang),
		ChapterURL:        templateURL(baseURL, paths.Play, lang),
		MaxListing:        limits.Listing,
		MaxChapters:       limits.Chapters,
		MaxTags:           limits.Tags,
		FallbackThreshold: limits.FallbackThreshold,
		WindowChars:       limits.WindowChars,
	}
}

func templateURL(baseURL string, templates []string, lang string) func(string) string {
	if len(templates) == 0 {
		return nil
	}
	tmpl := templates[0]
	return func(id string) string {
		return fetch.Expand(baseURL, tmpl, fetch.Vars{Lang: lang, ID: id})
	}
}

func (s *Service) lang(lang string) (string, error) {
	if strings.TrimSpace(lang) == "" {
		lang = s.DefaultLang
	}
	if strings.TrimSpace(lang) == "" {
		lang = config.DefaultLang
	}
	l, ok := domain.ParseLang(lang)
	if !ok {
		return "", &InputError{Field: "lang", Msg: "expected a language tag like id or en"}
	}
	return l, nil
}

func (s *Service) idLang(id, lang string) (string, string, error) {
	pid, ok := domain.ParseID(id)
	if !ok {
		return "", "", &InputError{Field: "id", Msg: "expected a numeric id"}
	}
	l, err := s.lang(lang)
	if err != nil {
		return "", "", err
	}
	return pid, l, nil
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
