package extract

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const maxNextDataDepth = 16

// nextDataRoot 解码 Next.js 页面内嵌的 __NEXT_DATA__。
//
// 约束：数字保留为 json.Number，超过 float64 精度的 ID 不会被改写。
func nextDataRoot(doc *goquery.Document) (any, bool) {
	if doc == nil {
		return nil, false
	}
	script := doc.Find("script#__NEXT_DATA__").First()
	if script.Length() == 0 {
		return nil, false
	}
	dec := json.NewDecoder(strings.NewReader(script.Text()))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, false
	}
	return root, true
}

// walkJSON 深度优先访问每个对象，对象的键按字典序遍历以保证结果稳定。
func walkJSON(v any, visit func(m map[string]any)) {
	var walk func(v any, depth int)
	walk = func(v any, depth int) {
		if depth > maxNextDataDepth {
			return
		}
		switch t := v.(type) {
		case map[string]any:
			visit(t)
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k], depth+1)
			}
		case []any:
			for _, e := range t {
				walk(e, depth+1)
			}
		}
	}
	walk(v, 0)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return ""
}

// firstScalar 按 keys 顺序返回第一个非空标量值。
func firstScalar(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// exactID 仅当 s 整体就是一个 ID 时返回它。
func exactID(s string) string {
	if c := firstID(s); c != "" && c == s && len(c) <= maxDigitsRun {
		return c
	}
	return ""
}
