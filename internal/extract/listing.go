package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/dramaapi/internal/domain"
)

const (
	StrategyAnchor   = "anchor"
	StrategyWindow   = "window"
	StrategyNextData = "nextdata"
	StrategyDigits   = "digits"
)

// maxDigitsRun 之外的超长数字串更像哈希/签名，不当作内容 ID。
const maxDigitsRun = 20

type listingStrategy struct {
	name string
	run  func(doc *goquery.Document, raw string, o Options) []domain.ListingItem
}

// listingStrategies 按“精度从高到低”排列；后面的策略只在结果不足时才运行。
var listingStrategies = []listingStrategy{
	{name: StrategyAnchor, run: anchorCards},
	{name: StrategyWindow, run: windowCards},
	{name: StrategyNextData, run: nextDataCards},
	{name: StrategyDigits, run: digitRuns},
}

// Listing 从列表页 HTML 中抽取条目。
func Listing(html []byte, o Options) []domain.ListingItem {
	items, _ := ListingTrace(html, o)
	return items
}

// ListingTrace 同 Listing，额外返回每个策略新增的条目数。
//
// 约束：
// - 同一 id 只出现一次，先发现者胜
// - 累计条目数达到 FallbackThreshold 后不再运行后续策略
// - 结果最多 MaxListing 条
// - 永不返回 error：解析失败等价于“什么都没找到”
func ListingTrace(html []byte, o Options) ([]domain.ListingItem, []StrategyCount) {
	o = o.withDefaults()
	raw := string(html)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		doc = nil
	}

	var (
		out   []domain.ListingItem
		trace []StrategyCount
		seen  = map[string]struct{}{}
	)
	for _, s := range listingStrategies {
		if len(out) >= o.FallbackThreshold {
			break
		}
		if doc == nil && s.name != StrategyWindow && s.name != StrategyDigits {
			continue
		}
		added := 0
		for _, it := range s.run(doc, raw, o) {
			if it.ID == "" {
				continue
			}
			if _, ok := seen[it.ID]; ok {
				continue
			}
			seen[it.ID] = struct{}{}
			it.Lang = o.Lang
			if it.Title == "" {
				it.Title = placeholderTitle(it.ID)
			}
			it.Title = truncateRunes(it.Title, maxTitleRunes)
			if it.URL == "" {
				it.URL = o.itemURL(it.ID)
			}
			out = append(out, it)
			added++
		}
		trace = append(trace, StrategyCount{Strategy: s.name, Added: added})
	}
	if len(out) > o.MaxListing {
		out = out[:o.MaxListing]
	}
	return out, trace
}

func placeholderTitle(id string) string { return "Drama " + id }

// anchorCards：包含图片的 <a href=".../{id}">。
func anchorCards(doc *goquery.Document, _ string, o Options) []domain.ListingItem {
	var out []domain.ListingItem
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		id := firstID(href)
		if id == "" || len(id) > maxDigitsRun {
			return
		}
		img := a.Find("img").First()
		bg := a.Find("[style*='background']").First()
		if img.Length() == 0 && !hasBackground(a) && bg.Length() == 0 {
			return
		}

		title := attr(a, "title")
		if title == "" {
			title = attr(a, "alt")
		}
		if title == "" && img.Length() > 0 {
			title = attr(img, "alt")
		}
		if title == "" {
			title = normSpace(a.Text())
		}

		out = append(out, domain.ListingItem{
			ID:        id,
			Title:     title,
			URL:       Resolve(o.Origin, href),
			Thumbnail: Resolve(o.Origin, pickThumb(thumbCandidates(img, a, bg))),
		})
	})
	return out
}

var (
	windowAnchorRE = regexp.MustCompile(`(?is)<a\b[^>]*?\bhref\s*=\s*["']([^"']*)["'][^>]*>`)
	imgTagRE       = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	anchorCloseRE  = regexp.MustCompile(`(?is)</a\s*>`)
	attrRE         = regexp.MustCompile(`(?is)\b([a-z][a-z0-9_-]*)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	bgURLRE        = regexp.MustCompile(`(?i)background(?:-image)?\s*:[^;"']*url\(\s*['"]?([^'")]+)['"]?\s*\)`)
)

// windowCards：正则扫描原始 HTML，对每个带 ID 的锚点在前后 WindowChars 字符内找最近的 <img>。
// 用于 DOM 结构不规则（锚点与图片不嵌套）的页面。
func windowCards(_ *goquery.Document, raw string, o Options) []domain.ListingItem {
	var out []domain.ListingItem
	for _, m := range windowAnchorRE.FindAllStringSubmatchIndex(raw, -1) {
		href := cleanText(raw[m[2]:m[3]])
		id := firstID(href)
		if id == "" || len(id) > maxDigitsRun {
			continue
		}
		start, end := m[0], m[1]
		img := nearestImg(raw, start, end, o.WindowChars)
		if img == "" {
			continue
		}

		aAttrs := tagAttrs(raw[start:end])
		imgAttrs := tagAttrs(img)

		title := aAttrs["title"]
		if title == "" {
			title = aAttrs["alt"]
		}
		if title == "" {
			title = imgAttrs["alt"]
		}
		if title == "" {
			title = anchorInnerText(raw, end, o.WindowChars)
		}

		cands := []string{imgAttrs["data-src"], imgAttrs["data-original"], imgAttrs["src"]}
		if bg := bgURLRE.FindStringSubmatch(imgAttrs["style"]); bg != nil {
			cands = append(cands, bg[1])
		}
		out = append(out, domain.ListingItem{
			ID:        id,
			Title:     title,
			URL:       Resolve(o.Origin, href),
			Thumbnail: Resolve(o.Origin, pickThumb(cands)),
		})
	}
	return out
}

// nearestImg 返回锚点前后 window 字符内距离锚点最近的 <img> 标签。
func nearestImg(raw string, start, end, window int) string {
	var (
		after     string
		afterDist = -1
	)
	hi := end + window
	if hi > len(raw) {
		hi = len(raw)
	}
	if loc := imgTagRE.FindStringIndex(raw[end:hi]); loc != nil {
		after = raw[end+loc[0] : end+loc[1]]
		afterDist = loc[0]
	}

	lo := start - window
	if lo < 0 {
		lo = 0
	}
	all := imgTagRE.FindAllStringIndex(raw[lo:start], -1)
	if len(all) == 0 {
		return after
	}
	last := all[len(all)-1]
	before := raw[lo+last[0] : lo+last[1]]
	if afterDist >= 0 && afterDist <= start-(lo+last[1]) {
		return after
	}
	return before
}

func anchorInnerText(raw string, end, window int) string {
	hi := end + window
	if hi > len(raw) {
		hi = len(raw)
	}
	seg := raw[end:hi]
	if loc := anchorCloseRE.FindStringIndex(seg); loc != nil {
		seg = seg[:loc[0]]
	}
	return stripTags(seg)
}

// tagAttrs 解析单个开始标签的属性（键名小写，值已解码实体）。
func tagAttrs(tag string) map[string]string {
	out := map[string]string{}
	for _, m := range attrRE.FindAllStringSubmatch(tag, -1) {
		k := strings.ToLower(m[1])
		if _, ok := out[k]; ok {
			continue
		}
		v := m[2]
		if v == "" {
			v = m[3]
		}
		out[k] = cleanText(v)
	}
	return out
}

var (
	nextIDKeys    = []string{"bookId", "dramaId", "seriesId", "book_id", "drama_id", "id"}
	nextTitleKeys = []string{"bookName", "dramaName", "title", "name", "book_name"}
	nextThumbKeys = []string{"cover", "coverUrl", "coverImage", "cover_url", "image", "poster", "thumbnail"}
)

// nextDataCards：Next.js 页面把列表数据放在 __NEXT_DATA__ 里，DOM 中可能没有图片锚点。
func nextDataCards(doc *goquery.Document, _ string, o Options) []domain.ListingItem {
	root, ok := nextDataRoot(doc)
	if !ok {
		return nil
	}
	var out []domain.ListingItem
	walkJSON(root, func(m map[string]any) {
		if it, ok := nextDataItem(m, o); ok {
			out = append(out, it)
		}
	})
	return out
}

func nextDataItem(m map[string]any, o Options) (domain.ListingItem, bool) {
	var id string
	for _, k := range nextIDKeys {
		if id = exactID(scalarString(m[k])); id != "" {
			break
		}
	}
	if id == "" {
		return domain.ListingItem{}, false
	}
	var title string
	for _, k := range nextTitleKeys {
		if s := normSpace(scalarString(m[k])); s != "" {
			title = s
			break
		}
	}
	if title == "" {
		return domain.ListingItem{}, false
	}
	var thumbs []string
	for _, k := range nextThumbKeys {
		thumbs = append(thumbs, scalarString(m[k]))
	}
	return domain.ListingItem{
		ID:        id,
		Title:     title,
		Thumbnail: Resolve(o.Origin, pickThumb(thumbs)),
	}, true
}

// digitRuns：最后的召回手段，文档里每个 ≥10 位数字串都当作一个条目。
func digitRuns(_ *goquery.Document, raw string, _ Options) []domain.ListingItem {
	var out []domain.ListingItem
	for _, id := range idRunRE.FindAllString(raw, -1) {
		if len(id) > maxDigitsRun {
			continue
		}
		out = append(out, domain.ListingItem{ID: id})
	}
	return out
}

func attr(s *goquery.Selection, name string) string {
	if s == nil || s.Length() == 0 {
		return ""
	}
	v, _ := s.Attr(name)
	return normSpace(v)
}

func hasBackground(s *goquery.Selection) bool {
	style, _ := s.Attr("style")
	return bgURLRE.MatchString(style)
}

// thumbCandidates 按 data-src → data-original → src → background-image 收集候选。
func thumbCandidates(img *goquery.Selection, others ...*goquery.Selection) []string {
	var out []string
	if img != nil && img.Length() > 0 {
		for _, k := range []string{"data-src", "data-original", "src"} {
			out = append(out, attr(img, k))
		}
		if m := bgURLRE.FindStringSubmatch(attr(img, "style")); m != nil {
			out = append(out, m[1])
		}
	}
	for _, s := range others {
		if s == nil || s.Length() == 0 {
			continue
		}
		if m := bgURLRE.FindStringSubmatch(attr(s, "style")); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}

var placeholderMarkers = []string{"default-book-cover", "logo.png"}

func isPlaceholder(u string) bool {
	l := strings.ToLower(u)
	if strings.HasPrefix(l, "data:") {
		return true
	}
	for _, p := range placeholderMarkers {
		if strings.Contains(l, p) {
			return true
		}
	}
	return false
}

// pickThumb 返回第一个非占位图候选；全是占位图时退回第一个可用候选。
func pickThumb(cands []string) string {
	fallback := ""
	for _, c := range cands {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if !isPlaceholder(c) {
			return c
		}
		if fallback == "" && !strings.HasPrefix(strings.ToLower(c), "data:") {
			fallback = c
		}
	}
	return fallback
}
