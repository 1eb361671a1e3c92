package extract

import "strings"

// Options 是抽取器的站点上下文与数量上限。零值字段走默认。
type Options struct {
	// Origin 是源站 origin（用于解析相对 URL）。
	Origin string
	// Lang 是请求的语言标签，原样写入 ListingItem.Lang。
	Lang string

	// ItemURL 为“没有 href 的条目”生成规范 URL；nil 时使用 origin/{lang}/{id}。
	ItemURL func(id string) string
	// ChapterURL 为只有 ID 的章节生成播放页 URL；nil 时退回 ItemURL。
	ChapterURL func(id string) string

	MaxListing        int
	MaxChapters       int
	MaxTags           int
	FallbackThreshold int
	WindowChars       int
}

const (
	defaultMaxListing        = 50
	defaultMaxChapters       = 60
	defaultMaxTags           = 10
	defaultFallbackThreshold = 5
	defaultWindowChars       = 800
)

func (o Options) withDefaults() Options {
	if o.MaxListing <= 0 {
		o.MaxListing = defaultMaxListing
	}
	if o.MaxChapters <= 0 {
		o.MaxChapters = defaultMaxChapters
	}
	if o.MaxTags <= 0 {
		o.MaxTags = defaultMaxTags
	}
	if o.FallbackThreshold <= 0 {
		o.FallbackThreshold = defaultFallbackThreshold
	}
	if o.WindowChars <= 0 {
		o.WindowChars = defaultWindowChars
	}
	o.Origin = strings.TrimRight(o.Origin, "/")
	return o
}

func (o Options) itemURL(id string) string {
	if o.ItemURL != nil {
		return o.ItemURL(id)
	}
	if o.Lang == "" {
		return o.Origin + "/" + id
	}
	return o.Origin + "/" + o.Lang + "/" + id
}

func (o Options) chapterURL(id string) string {
	if o.ChapterURL != nil {
		return o.ChapterURL(id)
	}
	return o.itemURL(id)
}

// StrategyCount 记录某个策略贡献的新条目数（去重后）。
type StrategyCount struct {
	Strategy string
	Added    int
}
