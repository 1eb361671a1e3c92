package domain

import (
	"regexp"
	"strings"
)

var langRE = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2})?$`)

// ParseLang 校验语言标签（如 id、en、zh-TW）。
func ParseLang(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !langRE.MatchString(s) {
		return "", false
	}
	return s, true
}
