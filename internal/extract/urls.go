package extract

import (
	"net/url"
	"path"
	"strings"
)

// Resolve 把 href 规范化为绝对 URL。
//
// - "//host/x"：补 https:
// - "/x"、"x"：相对 origin 解析
// - 已是 http/https：原样返回
// - data:/javascript:/blob:/about: 等不可抓取的地址：返回空串
func Resolve(origin, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return href
	}
	for _, p := range []string{"data:", "javascript:", "blob:", "about:", "mailto:", "#"} {
		if strings.HasPrefix(lower, p) {
			return ""
		}
	}
	bu, err := url.Parse(strings.TrimRight(origin, "/") + "/")
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}

// extOf 返回 URL 路径的小写扩展名（不含 '.'）。
func extOf(raw string) string {
	u, err := url.Parse(raw)
	p := raw
	if err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	return strings.TrimPrefix(ext, ".")
}
