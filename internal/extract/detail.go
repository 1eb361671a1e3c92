package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/dramaapi/internal/domain"
)

const (
	minTitleRunes = 2
	minTagRunes   = 2
	maxTagRunes   = 49
)

// Detail 从详情页 HTML 中抽取记录。
//
// 约束：
// - 找不到至少 2 个字符的标题时返回 ok=false（记录不存在）
// - URL 由调用方填写（即产出该记录的页面地址）
// - Chapters 已排序并截断到 MaxChapters
func Detail(html []byte, id string, o Options) (domain.DetailRecord, bool) {
	o = o.withDefaults()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.DetailRecord{}, false
	}
	title := detailTitle(doc)
	if runeLen(title) < minTitleRunes {
		return domain.DetailRecord{}, false
	}
	return domain.DetailRecord{
		ID:          id,
		Title:       truncateRunes(title, maxTitleRunes),
		Description: detailDescription(doc),
		Thumbnail:   Resolve(o.Origin, detailThumbnail(doc)),
		Tags:        detailTags(doc, o.MaxTags),
		Chapters:    chapters(doc, id, o),
	}, true
}

// Chapters 只抽取章节列表（不要求页面有标题）。
func Chapters(html []byte, id string, o Options) []domain.ChapterItem {
	o = o.withDefaults()
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}
	return chapters(doc, id, o)
}

func detailTitle(doc *goquery.Document) string {
	for _, sel := range []string{"h1", "h2"} {
		var found string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := normSpace(s.Text())
			if runeLen(t) >= minTitleRunes {
				found = t
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	if t := metaContent(doc, "og:title"); runeLen(t) >= minTitleRunes {
		return t
	}
	return cutTitle(normSpace(doc.Find("title").First().Text()))
}

// cutTitle 去掉 "<标题> | 站点名" / "<标题> - 站点名" 这类后缀。
func cutTitle(t string) string {
	for _, sep := range []string{"|", " - ", " – "} {
		if i := strings.Index(t, sep); i >= 0 {
			t = t[:i]
		}
	}
	return strings.TrimSpace(t)
}

func metaContent(doc *goquery.Document, key string) string {
	sel := fmt.Sprintf("meta[property=%q], meta[name=%q]", key, key)
	var v string
	doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		v = normSpace(attr(s, "content"))
		return v == ""
	})
	return v
}

func detailDescription(doc *goquery.Document) string {
	if d := metaContent(doc, "og:description"); d != "" {
		return d
	}
	if d := metaContent(doc, "description"); d != "" {
		return d
	}
	var d string
	doc.Find("[class*='desc'], [class*='summary'], [class*='intro'], [class*='synopsis']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "meta" {
			return true
		}
		d = normSpace(s.Text())
		return d == ""
	})
	return d
}

func detailThumbnail(doc *goquery.Document) string {
	if u := metaContent(doc, "og:image"); u != "" {
		return u
	}
	img := doc.Find("[class*='cover'] img, [class*='poster'] img").First()
	if img.Length() == 0 {
		img = doc.Find("img[class*='cover'], img[class*='poster']").First()
	}
	if img.Length() == 0 {
		return ""
	}
	return pickThumb(thumbCandidates(img))
}

func detailTags(doc *goquery.Document, limit int) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(t string) bool {
		t = normSpace(t)
		n := runeLen(t)
		if n < minTagRunes || n > maxTagRunes {
			return true
		}
		if _, ok := seen[t]; ok {
			return true
		}
		seen[t] = struct{}{}
		out = append(out, t)
		return len(out) < limit
	}

	doc.Find("[class*='tag'], [class*='label'], [class*='genre'], [class*='badge']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		switch goquery.NodeName(s) {
		case "meta", "script", "style", "body", "html":
			return true
		}
		if s.Children().Length() == 0 {
			return add(s.Text())
		}
		// 容器：取其中的叶子节点文本。
		cont := true
		s.Find("a, span, li").EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if c.Children().Length() > 0 {
				return true
			}
			cont = add(c.Text())
			return cont
		})
		return cont
	})
	return out
}

// 拉丁关键词后面可以直接跟集数（EP01、Episode2）。
var chapterKeywordRE = regexp.MustCompile(`(?i)\b(?:episode|eps|ep|part|chapter|bagian)(?:\b|\.?\s*\d)|集|话|話|화`)

var (
	nextChapterListKeys = map[string]struct{}{
		"episodes": {}, "episodeList": {}, "episode_list": {}, "videoList": {}, "playlist": {},
	}
	nextChapterIDKeys     = []string{"id", "episodeId", "chapterId", "videoId", "episode_id", "chapter_id"}
	nextChapterNumberKeys = []string{"number", "episode", "sort", "episodeNumber", "ep"}
	nextChapterTitleKeys  = []string{"title", "name", "episodeName", "chapterName"}
	nextChapterURLKeys    = []string{"url", "href", "detailUrl"}
)

// chapters 合并两层来源：锚点优先，__NEXT_DATA__ 里的剧集数组补充。
//
// 约束：
// - 同一章节 ID 只出现一次，且不等于 ownID
// - 结果按 ChapterNumber 非递减排序后再截断到 MaxChapters
func chapters(doc *goquery.Document, ownID string, o Options) []domain.ChapterItem {
	var out []domain.ChapterItem
	seen := map[string]struct{}{ownID: {}}
	add := func(c domain.ChapterItem) {
		if _, ok := seen[c.ID]; ok {
			return
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	for _, c := range anchorChapters(doc, ownID, o) {
		add(c)
	}
	for _, c := range nextDataChapters(doc, ownID, o) {
		add(c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ChapterNumber < out[j].ChapterNumber })
	if len(out) > o.MaxChapters {
		out = out[:o.MaxChapters]
	}
	return out
}

// anchorChapters 收集指向同站其它内容 ID、且文本或 href 命中章节关键词的锚点。
func anchorChapters(doc *goquery.Document, ownID string, o Options) []domain.ChapterItem {
	var out []domain.ChapterItem
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		cid := otherID(href, ownID)
		if cid == "" {
			return
		}
		if _, ok := seen[cid]; ok {
			return
		}
		text := normSpace(a.Text())
		if !chapterKeywordRE.MatchString(text) && !chapterKeywordRE.MatchString(href) {
			return
		}
		seen[cid] = struct{}{}
		title := text
		if title == "" {
			title = attr(a, "title")
		}
		n, ok := firstNumber(title)
		if !ok {
			n = len(out) + 1
		}
		if title == "" {
			title = fmt.Sprintf("Episode %d", n)
		}
		out = append(out, domain.ChapterItem{
			ID:            cid,
			ChapterNumber: n,
			Title:         truncateRunes(title, maxTitleRunes),
			URL:           Resolve(o.Origin, href),
		})
	})
	return out
}

// otherID 返回 href 中第一个不是 ownID 的内容 ID。
// 形如 /episode/{bookID}/{chapterID} 的链接会同时带上作品自身的 ID。
func otherID(href, ownID string) string {
	for _, id := range idRunRE.FindAllString(href, -1) {
		if id != ownID && len(id) <= maxDigitsRun {
			return id
		}
	}
	return ""
}

// nextDataChapters 读取 __NEXT_DATA__ 中的剧集数组（episodes/episodeList/videoList/playlist）。
func nextDataChapters(doc *goquery.Document, ownID string, o Options) []domain.ChapterItem {
	root, ok := nextDataRoot(doc)
	if !ok {
		return nil
	}
	var out []domain.ChapterItem
	walkJSON(root, func(m map[string]any) {
		keys := make([]string, 0, len(nextChapterListKeys))
		for k := range m {
			if _, ok := nextChapterListKeys[k]; ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			arr, ok := m[k].([]any)
			if !ok {
				continue
			}
			for i, e := range arr {
				ep, ok := e.(map[string]any)
				if !ok {
					continue
				}
				if c, ok := nextDataChapter(ep, i, ownID, o); ok {
					out = append(out, c)
				}
			}
		}
	})
	return out
}

func nextDataChapter(ep map[string]any, idx int, ownID string, o Options) (domain.ChapterItem, bool) {
	var id string
	for _, k := range nextChapterIDKeys {
		if id = exactID(scalarString(ep[k])); id != "" {
			break
		}
	}
	if id == "" || id == ownID {
		return domain.ChapterItem{}, false
	}
	n, ok := firstNumber(firstScalar(ep, nextChapterNumberKeys...))
	if !ok || n <= 0 {
		n = idx + 1
	}
	title := normSpace(firstScalar(ep, nextChapterTitleKeys...))
	if title == "" {
		title = fmt.Sprintf("Episode %d", n)
	}
	u := Resolve(o.Origin, firstScalar(ep, nextChapterURLKeys...))
	if u == "" {
		u = o.chapterURL(id)
	}
	return domain.ChapterItem{
		ID:            id,
		ChapterNumber: n,
		Title:         truncateRunes(title, maxTitleRunes),
		URL:           u,
	}, true
}
