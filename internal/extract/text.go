package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const maxTitleRunes = 200

// idRunRE 匹配内容 ID：至少 10 位连续数字。
var idRunRE = regexp.MustCompile(`[0-9]{10,}`)

var digitRunRE = regexp.MustCompile(`[0-9]+`)

// firstID 返回 s 中第一个 ≥10 位的数字串。
func firstID(s string) string {
	return idRunRE.FindString(s)
}

// firstNumber 返回 s 中第一个数字串的值；过长（像 ID 而不是集数）视为不存在。
func firstNumber(s string) (int, bool) {
	m := digitRunRE.FindString(s)
	if m == "" || len(m) > 6 {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

// cleanText 解码 HTML 实体并压缩空白（用于正则直接截取的片段）。
func cleanText(s string) string {
	return normSpace(html.UnescapeString(s))
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

var tagRE = regexp.MustCompile(`(?s)<[^>]*>`)

// stripTags 去掉片段中的标签，只留文本。
func stripTags(s string) string {
	return cleanText(tagRE.ReplaceAllString(s, " "))
}
