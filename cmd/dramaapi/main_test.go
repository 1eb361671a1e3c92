package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/dramaapi/internal/config"
	"github.com/John-Robertt/dramaapi/internal/domain"
	"github.com/John-Robertt/dramaapi/internal/infra/snapshot"
)

func testEffective(t *testing.T) config.EffectiveConfig {
	t.Helper()
	eff, err := config.LoadEffective(t.TempDir(), config.CLIArgs{
		BaseURL:    "https://www.example.test",
		BaseURLSet: true,
	}, func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("加载配置失败：%v", err)
	}
	return eff
}

func TestParseServeArgs(t *testing.T) {
	ca, err := parseServeArgs([]string{"--addr", ":9000", "--base-url=https://x.test", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ca.AddrSet || ca.Addr != ":9000" {
		t.Fatalf("addr 解析不符合预期：%+v", ca)
	}
	if !ca.BaseURLSet || ca.BaseURL != "https://x.test" {
		t.Fatalf("base-url 解析不符合预期：%+v", ca)
	}
	if !ca.LogLevelSet || ca.LogLevel != "debug" {
		t.Fatalf("log-level 解析不符合预期：%+v", ca)
	}
	if ca.SnapshotDirSet {
		t.Fatalf("未指定 --snapshot-dir 时不应标记为已设置")
	}

	for _, bad := range [][]string{
		{"--addr"},
		{"--addr="},
		{"--unknown", "x"},
		{"positional"},
	} {
		if _, err := parseServeArgs(bad); err == nil {
			t.Fatalf("期望 %v 报错", bad)
		}
	}
}

func TestParseExtractArgs(t *testing.T) {
	ea, err := parseExtractArgs([]string{"detail", "page.html", "--id", "31001241758", "--lang=en"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if ea.Extractor != "detail" || ea.Input != "page.html" || ea.ID != "31001241758" || ea.Lang != "en" {
		t.Fatalf("解析不符合预期：%+v", ea)
	}

	for _, bad := range [][]string{
		{"detail"},
		{"nope", "page.html"},
		{"detail", "page.html", "--id", "12"},
		{"detail", "page.html", "--what", "x"},
	} {
		if _, err := parseExtractArgs(bad); err == nil {
			t.Fatalf("期望 %v 报错", bad)
		}
	}
}

func TestRunExtract_ListingFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "home.html")
	html := `<a href="/id/31001241758" title="Love Story"><img src="/c/1.jpg"></a>`
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		t.Fatalf("写入 fixture 失败：%v", err)
	}

	var buf bytes.Buffer
	if err := runExtract(extractArgs{Extractor: "listing", Input: path}, testEffective(t), &buf); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var items []domain.ListingItem
	if err := json.Unmarshal(buf.Bytes(), &items); err != nil {
		t.Fatalf("输出不是合法 JSON：%v\n%s", err, buf.String())
	}
	if len(items) != 1 || items[0].URL != "https://www.example.test/id/31001241758" || items[0].Lang != config.DefaultLang {
		t.Fatalf("输出不符合预期：%+v", items)
	}
}

func TestRunExtract_DetailIDFromFileName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "drama-31001241758.html")
	html := `<h1>Love Story</h1><a href="/id/episode/31001241758">Episode 1 (self)</a><a href="/id/episode/40000000001">Episode 1</a>`
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		t.Fatalf("写入 fixture 失败：%v", err)
	}

	var buf bytes.Buffer
	if err := runExtract(extractArgs{Extractor: "detail", Input: path}, testEffective(t), &buf); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var rec domain.DetailRecord
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("输出不是合法 JSON：%v", err)
	}
	if rec.ID != "31001241758" || len(rec.Chapters) != 1 || rec.Chapters[0].ID != "40000000001" {
		t.Fatalf("输出不符合预期：%+v", rec)
	}
}

func TestRunExtract_MediaFromSnapshot(t *testing.T) {
	dir := t.TempDir()
	if err := snapshot.New(dir, false).WritePage("play", "40000000001", []byte(`<video src="/v/1.mp4"></video>`)); err != nil {
		t.Fatalf("写入快照失败：%v", err)
	}
	eff := testEffective(t)
	eff.SnapshotDir = dir

	var buf bytes.Buffer
	ea := extractArgs{Extractor: "media", Input: "40000000001", CLI: config.CLIArgs{SnapshotDir: dir, SnapshotDirSet: true}}
	if err := runExtract(ea, eff, &buf); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	var res mediaResult
	if err := json.Unmarshal(buf.Bytes(), &res); err != nil {
		t.Fatalf("输出不是合法 JSON：%v", err)
	}
	if res.Best == nil || res.Best.URL != "https://www.example.test/v/1.mp4" || res.Best.Type != domain.MediaMP4 {
		t.Fatalf("输出不符合预期：%+v", res)
	}

	ea.Input = "40000000002"
	if err := runExtract(ea, eff, &buf); err == nil {
		t.Fatalf("快照不存在时期望错误")
	}
}

func TestExtractIDFromName(t *testing.T) {
	if got := extractIDFromName("/tmp/drama-31001241758.html"); got != "31001241758" {
		t.Fatalf("期望 31001241758，实际 %q", got)
	}
	if got := extractIDFromName("home.html"); got != "" {
		t.Fatalf("期望空串，实际 %q", got)
	}
}
