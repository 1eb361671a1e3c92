package scrape

import (
	"errors"
	"fmt"
)

// ErrNotFound 表示源站上找不到对应内容（所有候选页面都失败，或页面里抽不出记录）。
var ErrNotFound = errors.New("not found")

// InputError 表示调用方参数不合法（对外映射为 400）。
type InputError struct {
	Field string
	Msg   string
}

func (e *InputError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// IsInput 判断 err 链上是否有 *InputError。
func IsInput(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}
