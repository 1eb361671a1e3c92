package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/dramaapi/internal/infra/fsx"
)

// Store 把抓取到的原始页面落盘到 <root>/pages/<kind>/<key>.html。
//
// 约束：
// - 只用于排查站点结构变化与离线复现抽取，服务端从不读回快照作答（不是缓存）
// - ReadOnly=true 时拒绝写入（离线 extract 命令使用）
type Store struct {
	Root     string
	ReadOnly bool
}

var ErrReadOnly = errors.New("snapshot: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// PagePath 返回快照页面的绝对路径。
func (s Store) PagePath(kind, key string) (string, error) {
	k, err := cleanName("kind", kind)
	if err != nil {
		return "", err
	}
	name, err := cleanName("key", key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.Root, "pages", k, name+".html"), nil
}

// ReadPage 读取快照；不存在时返回 ok=false 且 err=nil。
func (s Store) ReadPage(kind, key string) ([]byte, bool, error) {
	path, err := s.PagePath(kind, key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s Store) WritePage(kind, key string, html []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	k, err := cleanName("kind", kind)
	if err != nil {
		return err
	}
	name, err := cleanName("key", key)
	if err != nil {
		return err
	}
	dir := filepath.Join(s.Root, "pages", k)
	return fsx.WriteFileAtomicReplace(dir, name+".html", html)
}

var nameRE = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func cleanName(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%s 不能为空", field)
	}
	// 最小约束：避免路径穿越。
	if !nameRE.MatchString(v) {
		return "", fmt.Errorf("非法 %s：%q", field, v)
	}
	return v, nil
}
