package domain

const (
	MediaVideo  = "video"
	MediaIframe = "iframe"
	MediaM3U8   = "m3u8"
	MediaMP4    = "mp4"
	MediaWebM   = "webm"
)

// QualityAuto 是未能识别清晰度时的默认标签。
const QualityAuto = "auto"

// MediaSource 是某一集的一个候选播放地址。
// 同一次抽取内按 URL 去重（先发现者优先）。
type MediaSource struct {
	Type    string `json:"type"`
	Quality string `json:"quality"`
	URL     string `json:"url"`
}

// Stream 是 /m3u8 端点的返回体：最佳播放源 + 全部候选。
type Stream struct {
	ID         string        `json:"id"`
	StreamURL  string        `json:"stream_url"`
	Type       string        `json:"type"`
	Quality    string        `json:"quality"`
	AllSources []MediaSource `json:"all_sources"`
}
