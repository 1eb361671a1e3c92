package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/John-Robertt/dramaapi/internal/config"
)

// version 由构建时 -ldflags "-X main.version=..." 注入。
var version = "dev"

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "serve":
		if code := serveCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "extract":
		if code := extractCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "version":
		fmt.Fprintln(os.Stdout, version)
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

// commonFlags 是 serve 与 extract 共享的配置入口。
var commonFlags = map[string]func(*config.CLIArgs, string){
	"--config": func(c *config.CLIArgs, v string) { c.ConfigPath = v },
	"--addr": func(c *config.CLIArgs, v string) {
		c.Addr = v
		c.AddrSet = true
	},
	"--base-url": func(c *config.CLIArgs, v string) {
		c.BaseURL = v
		c.BaseURLSet = true
	},
	"--snapshot-dir": func(c *config.CLIArgs, v string) {
		c.SnapshotDir = v
		c.SnapshotDirSet = true
	},
	"--log-level": func(c *config.CLIArgs, v string) {
		c.LogLevel = v
		c.LogLevelSet = true
	},
}

// nextValue 解析 "--name value" 与 "--name=value" 两种写法，返回值与新的下标。
func nextValue(args []string, i int) (name, val string, next int, err error) {
	name, val, hasVal := strings.Cut(args[i], "=")
	if hasVal {
		if strings.TrimSpace(val) == "" {
			return name, "", i, fmt.Errorf("%s 不能为空", name)
		}
		return name, val, i, nil
	}
	if i+1 >= len(args) {
		return name, "", i, fmt.Errorf("%s 需要一个值", name)
	}
	return name, args[i+1], i + 1, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  dramaapi serve [--config FILE] [--addr ADDR] [--base-url URL] [--snapshot-dir DIR] [--log-level LEVEL]
  dramaapi extract <listing|detail|media> <FILE|KEY> [--lang LANG] [--id ID] [--base-url URL] [--snapshot-dir DIR]
  dramaapi version

命令：
  serve    启动 JSON HTTP 服务
  extract  对本地保存的页面（或快照）离线执行抽取，结果以 JSON 输出到 stdout
  version  打印版本

使用 "dramaapi <命令> --help" 查看详细说明。
`)
}
