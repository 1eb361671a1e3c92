package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/dramaapi/internal/config"
	"github.com/John-Robertt/dramaapi/internal/fetch"
	"github.com/John-Robertt/dramaapi/internal/infra/httpx"
	"github.com/John-Robertt/dramaapi/internal/scrape"
	"github.com/John-Robertt/dramaapi/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printServeUsage()
			return 0
		}
	}

	ca, err := parseServeArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printServeUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	eff, err := config.LoadEffective(cwd, ca, os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败（%s）：%v\n", config.Code(err), err)
		return 1
	}

	logger, closeLog, err := newLogger(eff.LogLevel, eff.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer closeLog()

	handler, err := buildHandler(eff, logger)
	if err != nil {
		logger.Error("初始化失败", slog.Any("error", err))
		return 1
	}

	srv := &http.Server{
		Addr:              eff.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			slog.String("addr", eff.Addr),
			slog.String("base_url", eff.BaseURL),
			slog.String("default_lang", eff.DefaultLang),
			slog.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", slog.Any("error", err))
		return 1
	}
	return 0
}

// buildHandler 按生效配置组装 httpx → fetch → scrape → server。
func buildHandler(eff config.EffectiveConfig, logger *slog.Logger) (http.Handler, error) {
	client, err := httpx.NewSiteClient(httpx.Options{
		Timeout:        eff.Timeout,
		UserAgent:      eff.UserAgent,
		AcceptLanguage: eff.AcceptLanguage,
		Referer:        eff.Referer,
		ProxyURL:       eff.ProxyURL,
		RetryMax:       eff.RetryMax,
		RetrySleep:     eff.RetrySleep,
		RateLimit:      eff.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("构造 http client 失败：%w", err)
	}
	f := &fetch.Fetcher{
		Client:       client,
		BaseURL:      eff.BaseURL,
		MinBodyBytes: eff.MinBodyBytes,
		Logger:       logger,
	}
	svc := scrape.New(f, eff, logger)
	return server.New(svc, server.Options{
		Version:     version,
		BaseURL:     eff.BaseURL,
		DefaultLang: eff.DefaultLang,
		Logger:      logger,
	}), nil
}

func parseServeArgs(args []string) (config.CLIArgs, error) {
	var ca config.CLIArgs
	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "-") {
			return config.CLIArgs{}, fmt.Errorf("serve 不接受位置参数：%q", a)
		}
		name, val, next, err := nextValue(args, i)
		set, ok := commonFlags[name]
		if !ok {
			return config.CLIArgs{}, fmt.Errorf("未知参数 %q", a)
		}
		if err != nil {
			return config.CLIArgs{}, err
		}
		set(&ca, val)
		i = next
	}
	return ca, nil
}

func printServeUsage() {
	fmt.Fprint(os.Stdout, `用法：
  dramaapi serve [--config FILE] [--addr ADDR] [--base-url URL] [--snapshot-dir DIR] [--log-level LEVEL]

参数：
  --config        配置文件路径（默认读取当前目录的 dramaapi.json，不存在则忽略）
  --addr          监听地址（默认 :8080；也可用 PORT / DRAMAAPI_ADDR）
  --base-url      源站 origin（默认 https://www.goodshort.com）
  --snapshot-dir  把抓取到的页面落盘到 <DIR>/pages/<kind>/<key>.html
  --log-level     debug|info|warn|error
  -h, --help      显示帮助
`)
}
