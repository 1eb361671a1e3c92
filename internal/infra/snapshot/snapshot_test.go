package snapshot

import (
	"errors"
	"os"
	"testing"
)

func TestStore_ReadWritePage(t *testing.T) {
	root := t.TempDir()

	s := New(root, false)
	if err := s.WritePage("detail", "31001241758", []byte("<html/>")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, ok, err := s.ReadPage("detail", "31001241758")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok {
		t.Fatalf("期望读到快照，但 ok=false")
	}
	if string(b) != "<html/>" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	path, err := s.PagePath("detail", "31001241758")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("期望文件存在，但 Stat 失败：%v", err)
	}
}

func TestStore_ReadMissing(t *testing.T) {
	s := New(t.TempDir(), true)
	_, ok, err := s.ReadPage("home", "id")
	if err != nil || ok {
		t.Fatalf("期望 ok=false err=nil，实际 ok=%v err=%v", ok, err)
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	root := t.TempDir()

	s := New(root, true)
	err := s.WritePage("play", "31001241759", []byte("<html/>"))
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}

	path, err := s.PagePath("play", "31001241759")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("期望文件不存在，但 Stat err=%v", err)
	}
}

func TestStore_RejectPathTraversal(t *testing.T) {
	s := New(t.TempDir(), false)
	if err := s.WritePage("detail", "../../etc", []byte("x")); err == nil {
		t.Fatalf("期望非法 key 错误，但得到 nil")
	}
	if _, err := s.PagePath("../x", "1"); err == nil {
		t.Fatalf("期望非法 kind 错误，但得到 nil")
	}
}
