package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger 构造进程级 logger 并设为 slog 默认 logger。
//
// 规则：
// - stderr 是终端且未配置日志文件：文本格式
// - 否则：JSON（配置了日志文件时同时写 stderr 与滚动文件）
func newLogger(level, file string) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	closeFn := func() {}
	file = strings.TrimSpace(file)
	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
			return nil, closeFn, err
		}
		rot := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, rot)
		closeFn = func() { _ = rot.Close() }
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if file == "" && isTTY(os.Stderr) {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(h).With(slog.String("service", "dramaapi"))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
