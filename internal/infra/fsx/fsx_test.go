package fsx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const pageName = "31001241758.html"

// tempFiles 返回 dir 下属于 name 的临时文件。
func tempFiles(t *testing.T, dir, name string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir 失败：%v", err)
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "."+name+".tmp-") {
			out = append(out, e.Name())
		}
	}
	return out
}

func readPage(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取快照失败：%v", err)
	}
	return string(b)
}

func TestWriteFileAtomicReplace_CreatesKindDirAndReplaces(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pages", "detail")

	if err := WriteFileAtomicReplace(dir, pageName, []byte("<h1>v1</h1>")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if err := WriteFileAtomicReplace(dir, pageName, []byte("<h1>v2</h1>")); err != nil {
		t.Fatalf("覆盖写入不期望错误：%v", err)
	}

	if got := readPage(t, filepath.Join(dir, pageName)); got != "<h1>v2</h1>" {
		t.Fatalf("期望最新页面，实际 %q", got)
	}
	if left := tempFiles(t, dir, pageName); len(left) != 0 {
		t.Fatalf("临时文件未清理：%v", left)
	}
}

func TestWriteFileAtomicReplace_AfterInterruptedWrite(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, pageName)
	if err := os.WriteFile(dst, []byte("<h1>old</h1>"), 0o644); err != nil {
		t.Fatalf("准备旧快照失败：%v", err)
	}
	// 上一次写入在 rename 之前被中断，留下了半截临时文件。
	stale := "." + pageName + ".tmp-interrupted"
	if err := os.WriteFile(filepath.Join(dir, stale), []byte("<h1>ha"), 0o644); err != nil {
		t.Fatalf("准备残留临时文件失败：%v", err)
	}

	if err := WriteFileAtomicReplace(dir, pageName, []byte("<h1>new</h1>")); err != nil {
		t.Fatalf("残留临时文件不应阻止写入：%v", err)
	}
	if got := readPage(t, dst); got != "<h1>new</h1>" {
		t.Fatalf("期望新页面，实际 %q", got)
	}
	left := tempFiles(t, dir, pageName)
	if len(left) != 1 || left[0] != stale {
		t.Fatalf("只应剩下原有的残留文件，实际 %v", left)
	}
}

func TestWriteFileAtomicReplace_RenameFailKeepsPreviousPage(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, pageName)
	if err := WriteFileAtomicReplace(dir, pageName, []byte("<h1>old</h1>")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	err := WriteFileAtomicReplace(dir, pageName, []byte("<h1>new</h1>"))
	if !errors.Is(err, os.ErrPermission) {
		t.Fatalf("期望 ErrPermission，实际 %v", err)
	}
	if got := readPage(t, dst); got != "<h1>old</h1>" {
		t.Fatalf("失败后应保留旧页面，实际 %q", got)
	}
	if left := tempFiles(t, dir, pageName); len(left) != 0 {
		t.Fatalf("临时文件未清理：%v", left)
	}
}

func TestWriteFileAtomicReplace_TargetConflictDir(t *testing.T) {
	dir := t.TempDir()

	if err := os.Mkdir(filepath.Join(dir, pageName), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}

	err := WriteFileAtomicReplace(dir, pageName, []byte("<h1>x</h1>"))
	if !IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflictError，实际：%T %v", err, err)
	}
}
