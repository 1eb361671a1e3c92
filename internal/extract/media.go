package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/dramaapi/internal/domain"
)

const (
	LayerMarkup    = "markup"
	LayerNextData  = "nextdata"
	LayerScriptURL = "script-url"
	LayerScriptKey = "script-key"
)

var (
	// 扩展名之后只允许 ?query，然后必须是引号、空白、尖括号、反斜杠或文本结尾；a.mp4.jpg 不算。
	streamURLRE = regexp.MustCompile(`(?i)(https?://[^\s"'<>\\]+\.(?:m3u8|mp4|webm)(?:\?[^\s"'<>\\]*)?)(?:["'\s<>\\]|$)`)
	streamKeyRE = regexp.MustCompile(`(?i)["']?\b(?:file|source|src|url|videoUrl|playUrl|streamUrl|video_url|play_url|stream_url)["']?\s*[:=]\s*["'](https?://[^"'\s]+)["']`)
	qualityRE   = regexp.MustCompile(`(?i)(?:^|[^0-9])(2160|1440|1080|720|576|540|480|360|240|144)p`)
	numericRE   = regexp.MustCompile(`^[0-9]{3,4}$`)

	jsonUnescaper = strings.NewReplacer(`\/`, `/`, `\u002F`, `/`, `\u002f`, `/`, `\u0026`, `&`, `&amp;`, `&`)
)

// 命中 key 模式但明显不是视频的资源。
var nonMediaExt = map[string]struct{}{
	"jpg": {}, "jpeg": {}, "png": {}, "gif": {}, "webp": {}, "svg": {}, "ico": {},
	"css": {}, "js": {}, "json": {}, "woff": {}, "woff2": {}, "html": {},
}

// Media 从播放页 HTML 中抽取所有媒体源。
//
// 约束：
// - 四层都会运行：markup → __NEXT_DATA__ → 脚本内的流地址 → 脚本内的 key: "url" 模式
// - 同一 URL 只保留第一次发现（因此 markup 的类型/清晰度优先）
// - URL 一律绝对化
func Media(html []byte, origin string) []domain.MediaSource {
	out, _ := MediaTrace(html, origin)
	return out
}

// MediaTrace 同 Media，额外返回每一层新增的媒体源数量。
func MediaTrace(html []byte, origin string) ([]domain.MediaSource, []StrategyCount) {
	origin = strings.TrimRight(origin, "/")
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, nil
	}

	var (
		out   []domain.MediaSource
		trace []StrategyCount
		seen  = map[string]struct{}{}
	)
	add := func(src domain.MediaSource) bool {
		if src.URL == "" {
			return false
		}
		if _, ok := seen[src.URL]; ok {
			return false
		}
		seen[src.URL] = struct{}{}
		if src.Quality == "" {
			src.Quality = qualityOf(src.URL)
		}
		out = append(out, src)
		return true
	}

	n := 0
	for _, s := range markupSources(doc, origin) {
		if add(s) {
			n++
		}
	}
	trace = append(trace, StrategyCount{Strategy: LayerMarkup, Added: n})

	n = 0
	for _, s := range nextDataSources(doc) {
		if add(s) {
			n++
		}
	}
	trace = append(trace, StrategyCount{Strategy: LayerNextData, Added: n})

	scripts := scriptTexts(doc)

	n = 0
	for _, text := range scripts {
		for _, m := range streamURLRE.FindAllStringSubmatch(text, -1) {
			u := m[1]
			if add(domain.MediaSource{Type: typeOf(u), URL: u}) {
				n++
			}
		}
	}
	trace = append(trace, StrategyCount{Strategy: LayerScriptURL, Added: n})

	n = 0
	for _, text := range scripts {
		for _, m := range streamKeyRE.FindAllStringSubmatch(text, -1) {
			u := m[1]
			if _, skip := nonMediaExt[extOf(u)]; skip {
				continue
			}
			if add(domain.MediaSource{Type: typeOf(u), URL: u}) {
				n++
			}
		}
	}
	trace = append(trace, StrategyCount{Strategy: LayerScriptKey, Added: n})

	return out, trace
}

func markupSources(doc *goquery.Document, origin string) []domain.MediaSource {
	var out []domain.MediaSource
	doc.Find("video[src], video source[src], iframe[src], iframe[data-src]").Each(func(_ int, s *goquery.Selection) {
		raw := attr(s, "src")
		if raw == "" {
			raw = attr(s, "data-src")
		}
		u := Resolve(origin, raw)
		if u == "" {
			return
		}
		src := domain.MediaSource{URL: u}
		if goquery.NodeName(s) == "iframe" {
			src.Type = domain.MediaIframe
		} else {
			src.Type = typeOf(u)
			src.Quality = qualityAttr(s)
		}
		out = append(out, src)
	})
	return out
}

var (
	// 这些键的值就是播放地址，扩展名可以缺省。
	nextStreamKeys = []string{"videoUrl", "playUrl", "streamUrl", "hlsUrl", "m3u8Url", "mp4Url", "video_url", "play_url", "stream_url"}
	// 通用键只在带媒体扩展名时才算。
	nextGenericKeys = []string{"url", "src", "file"}
	nextQualityKeys = []string{"quality", "definition", "resolution", "label"}
)

// nextDataSources 读取 __NEXT_DATA__ 里的播放地址，同一对象上的 quality/type 字段一并带出。
func nextDataSources(doc *goquery.Document) []domain.MediaSource {
	root, ok := nextDataRoot(doc)
	if !ok {
		return nil
	}
	var out []domain.MediaSource
	walkJSON(root, func(m map[string]any) {
		add := func(u string, generic bool) {
			l := strings.ToLower(u)
			if !strings.HasPrefix(l, "http://") && !strings.HasPrefix(l, "https://") {
				return
			}
			if _, skip := nonMediaExt[extOf(u)]; skip {
				return
			}
			typ := typeOf(u)
			if generic && typ == domain.MediaVideo {
				return
			}
			if t := nextTypeOf(scalarString(m["type"])); t != "" && typ == domain.MediaVideo {
				typ = t
			}
			out = append(out, domain.MediaSource{Type: typ, Quality: nextQuality(m), URL: u})
		}
		for _, k := range nextStreamKeys {
			add(scalarString(m[k]), false)
		}
		for _, k := range nextGenericKeys {
			add(scalarString(m[k]), true)
		}
	})
	return out
}

func nextTypeOf(t string) string {
	switch strings.ToLower(t) {
	case "m3u8", "hls", "application/x-mpegurl", "application/vnd.apple.mpegurl":
		return domain.MediaM3U8
	case "mp4", "video/mp4":
		return domain.MediaMP4
	case "webm", "video/webm":
		return domain.MediaWebM
	}
	return ""
}

func nextQuality(m map[string]any) string {
	v := firstScalar(m, nextQualityKeys...)
	if v == "" {
		return ""
	}
	if numericRE.MatchString(v) {
		return v + "p"
	}
	if q := qualityRE.FindStringSubmatch(v); q != nil {
		return q[1] + "p"
	}
	return ""
}

// scriptTexts 返回所有内联脚本的文本（已还原 JSON 转义的 '/'）。
func scriptTexts(doc *goquery.Document) []string {
	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		t := s.Text()
		if strings.TrimSpace(t) == "" {
			return
		}
		out = append(out, jsonUnescaper.Replace(t))
	})
	return out
}

func typeOf(u string) string {
	switch extOf(u) {
	case "m3u8":
		return domain.MediaM3U8
	case "mp4":
		return domain.MediaMP4
	case "webm":
		return domain.MediaWebM
	}
	return domain.MediaVideo
}

func qualityOf(u string) string {
	if m := qualityRE.FindStringSubmatch(u); m != nil {
		return m[1] + "p"
	}
	return domain.QualityAuto
}

func qualityAttr(s *goquery.Selection) string {
	for _, k := range []string{"label", "size", "res", "data-quality", "data-res"} {
		v := attr(s, k)
		if v == "" {
			continue
		}
		if numericRE.MatchString(v) {
			return v + "p"
		}
		if m := qualityRE.FindStringSubmatch(v); m != nil {
			return m[1] + "p"
		}
	}
	return ""
}

// Best 选出首选播放流：第一个 m3u8，其次第一个 mp4，否则第一个媒体源。
func Best(sources []domain.MediaSource) (domain.MediaSource, bool) {
	if len(sources) == 0 {
		return domain.MediaSource{}, false
	}
	for _, want := range []string{domain.MediaM3U8, domain.MediaMP4} {
		for _, s := range sources {
			if s.Type == want {
				return s, true
			}
		}
	}
	return sources[0], true
}
