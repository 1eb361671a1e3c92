// Package fsx 提供页面快照落盘所需的原子写入。
package fsx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// renameFunc 供测试模拟 rename 失败。
var renameFunc = os.Rename

const (
	dirPerm  os.FileMode = 0o755
	filePerm os.FileMode = 0o644
)

// PathTypeConflictError 表示快照目标已存在但不是常规文件（例如是目录）。
type PathTypeConflictError struct {
	Path string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标不是常规文件：%q（实际 %s）", e.Path, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// WriteFileAtomicReplace 把 data 原子地写到 dir/name，已存在则整体替换。
//
// 约束：
// - 读者要么看到旧内容，要么看到完整的新内容（同目录临时文件 + rename）
// - 失败时不留下临时文件
// - 目标若是目录或非常规文件，返回 *PathTypeConflictError
func WriteFileAtomicReplace(dir, name string, data []byte) error {
	dir = filepath.Clean(dir)
	dst := filepath.Join(dir, name)
	switch fi, err := os.Lstat(dst); {
	case err == nil && fi.IsDir():
		return &PathTypeConflictError{Path: dst, Got: "dir"}
	case err == nil && !fi.Mode().IsRegular():
		return &PathTypeConflictError{Path: dst, Got: fi.Mode().Type().String()}
	case err != nil && !os.IsNotExist(err):
		return err
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}
	// 前缀 '.'：临时文件不会被当成快照本身。
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := renameFunc(tmpName, dst); err != nil {
		return err
	}
	committed = true

	syncDir(dir)
	return nil
}

// syncDir 尽力持久化目录项；失败不影响结果。
func syncDir(dir string) {
	if runtime.GOOS == "windows" {
		return
	}
	f, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = f.Sync()
	_ = f.Close()
}
