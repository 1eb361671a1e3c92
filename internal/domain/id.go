package domain

import (
	"regexp"
	"strings"
)

// MinIDDigits 是站点内容 ID 的最小位数。
const MinIDDigits = 10

var idRE = regexp.MustCompile(`^[0-9]{10,}$`)

// ParseID 校验内容 ID（纯数字，至少 10 位）。
func ParseID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !idRE.MatchString(s) {
		return "", false
	}
	return s, true
}
