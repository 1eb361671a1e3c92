package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/dramaapi/internal/config"
	"github.com/John-Robertt/dramaapi/internal/domain"
	"github.com/John-Robertt/dramaapi/internal/extract"
	"github.com/John-Robertt/dramaapi/internal/infra/snapshot"
	"github.com/John-Robertt/dramaapi/internal/scrape"
)

// extractKinds 把抽取器名映射到快照目录中的页面类别。
var extractKinds = map[string]string{
	"listing": "home",
	"detail":  "detail",
	"media":   "play",
}

type extractArgs struct {
	Extractor string
	Input     string
	Lang      string
	ID        string
	CLI       config.CLIArgs
}

type mediaResult struct {
	Best    *domain.MediaSource  `json:"best"`
	Sources []domain.MediaSource `json:"sources"`
}

func extractCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printExtractUsage()
			return 0
		}
	}

	ea, err := parseExtractArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printExtractUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	eff, err := config.LoadEffective(cwd, ea.CLI, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败（%s）：%v\n", config.Code(err), err)
		return 1
	}

	if err := runExtract(ea, eff, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "抽取失败：%v\n", err)
		return 1
	}
	return 0
}

// runExtract 读取页面（文件或只读快照）并把抽取结果以 JSON 写到 w。
func runExtract(ea extractArgs, eff config.EffectiveConfig, w io.Writer) error {
	html, err := readInput(ea, eff)
	if err != nil {
		return err
	}

	lang := ea.Lang
	if lang == "" {
		lang = eff.DefaultLang
	}
	if _, ok := domain.ParseLang(lang); !ok {
		return fmt.Errorf("lang 无效：%q", lang)
	}
	id := ea.ID
	if id == "" {
		id = extractIDFromName(ea.Input)
	}
	opts := scrape.ExtractOptions(eff.BaseURL, eff.Paths, eff.Limits, lang)

	var out any
	switch ea.Extractor {
	case "listing":
		items := extract.Listing(html, opts)
		if items == nil {
			items = []domain.ListingItem{}
		}
		out = items
	case "detail":
		rec, ok := extract.Detail(html, id, opts)
		if !ok {
			return fmt.Errorf("页面中没有可用标题，记录不存在")
		}
		out = rec
	case "media":
		sources := extract.Media(html, eff.BaseURL)
		res := mediaResult{Sources: sources}
		if res.Sources == nil {
			res.Sources = []domain.MediaSource{}
		}
		if best, ok := extract.Best(sources); ok {
			res.Best = &best
		}
		out = res
	default:
		return fmt.Errorf("未知抽取器：%q", ea.Extractor)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if f, ok := w.(*os.File); ok && isTTY(f) {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

// readInput：命令行显式给出 --snapshot-dir 时把 Input 当作快照 key，否则当作文件路径。
func readInput(ea extractArgs, eff config.EffectiveConfig) ([]byte, error) {
	if !ea.CLI.SnapshotDirSet || eff.SnapshotDir == "" {
		return os.ReadFile(ea.Input)
	}
	st := snapshot.New(eff.SnapshotDir, true)
	b, ok, err := st.ReadPage(extractKinds[ea.Extractor], ea.Input)
	if err != nil {
		return nil, err
	}
	if !ok {
		p, _ := st.PagePath(extractKinds[ea.Extractor], ea.Input)
		return nil, fmt.Errorf("快照不存在：%s", p)
	}
	return b, nil
}

func extractIDFromName(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	for _, part := range strings.FieldsFunc(base, func(r rune) bool { return r < '0' || r > '9' }) {
		if id, ok := domain.ParseID(part); ok {
			return id
		}
	}
	return ""
}

func parseExtractArgs(args []string) (extractArgs, error) {
	var ea extractArgs
	var positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			positional = append(positional, a)
			continue
		}
		name, val, next, err := nextValue(args, i)
		switch name {
		case "--lang", "--id":
		default:
			if _, ok := commonFlags[name]; !ok {
				return extractArgs{}, fmt.Errorf("未知参数 %q", a)
			}
		}
		if err != nil {
			return extractArgs{}, err
		}
		switch name {
		case "--lang":
			ea.Lang = val
		case "--id":
			ea.ID = val
		default:
			commonFlags[name](&ea.CLI, val)
		}
		i = next
	}

	if len(positional) != 2 {
		return extractArgs{}, fmt.Errorf("需要 2 个位置参数（抽取器与输入），实际 %d 个", len(positional))
	}
	ea.Extractor, ea.Input = positional[0], positional[1]
	if _, ok := extractKinds[ea.Extractor]; !ok {
		return extractArgs{}, fmt.Errorf("抽取器只能是 listing、detail 或 media，实际是 %q", ea.Extractor)
	}
	if ea.ID != "" {
		if _, ok := domain.ParseID(ea.ID); !ok {
			return extractArgs{}, fmt.Errorf("--id 必须是至少 10 位的数字，实际是 %q", ea.ID)
		}
	}
	return ea, nil
}

func printExtractUsage() {
	fmt.Fprint(os.Stdout, `用法：
  dramaapi extract <listing|detail|media> <FILE|KEY> [--lang LANG] [--id ID] [--base-url URL] [--snapshot-dir DIR]

参数：
  listing|detail|media  抽取器
  FILE|KEY              本地 HTML 文件；指定 --snapshot-dir 时为快照 key（如 id、31001241758）
  --lang                写入条目的语言标签（默认取配置）
  --id                  详情页所属记录 id（默认从文件名中取第一个 ≥10 位数字串）
  --base-url            解析相对 URL 使用的 origin
  --snapshot-dir        从 <DIR>/pages/<kind>/<KEY>.html 只读加载快照
  --config              配置文件路径
  -h, --help            显示帮助
`)
}
