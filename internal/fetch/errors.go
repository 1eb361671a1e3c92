package fetch

import (
	"fmt"
	"strings"
)

// HTTPStatusError 表示源站返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// BodyTooSmallError 表示响应体没有达到“像内容页”的最小长度。
// 源站对不存在的内容常返回 200 + 占位页，只能用长度粗略区分。
type BodyTooSmallError struct {
	URL  string
	Got  int
	Want int
}

func (e *BodyTooSmallError) Error() string {
	return fmt.Sprintf("响应体过短：%d < %d 字节", e.Got, e.Want)
}
