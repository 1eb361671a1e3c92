package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/John-Robertt/dramaapi/internal/domain"
)

const (
	// ErrCodeNotFound 表示显式指定的配置文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件/环境变量无法解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	DefaultFileName       = "dramaapi.json"
	DefaultAddr           = ":8080"
	DefaultBaseURL        = "https://www.goodshort.com"
	DefaultLang           = "id"
	DefaultTimeout        = 10 * time.Second
	DefaultAcceptLanguage = "id-ID,id;q=0.9,en-US;q=0.8,en;q=0.7"
	DefaultRetryMax       = 1
	DefaultRetrySleep     = 300 * time.Millisecond
	DefaultMinBodyBytes   = 5000
	DefaultLogLevel       = "info"
)

// Limits 是各抽取结果的上限（防止异常页面产出失控的结果）。
type Limits struct {
	Listing           int `json:"listing"`
	Chapters          int `json:"chapters"`
	Tags              int `json:"tags"`
	Hot               int `json:"hot"`
	FallbackThreshold int `json:"fallback_threshold"`
	WindowChars       int `json:"window_chars"`
}

// DefaultLimits 返回内置默认上限。
func DefaultLimits() Limits {
	return Limits{
		Listing:           50,
		Chapters:          60,
		Tags:              10,
		Hot:               10,
		FallbackThreshold: 5,
		WindowChars:       800,
	}
}

// Paths 是对站点路由的猜测：按顺序尝试，取第一个“像内容页”的响应。
// 占位符：{lang}、{id}。
type Paths struct {
	Home   []string `json:"home"`
	Detail []string `json:"detail"`
	Play   []string `json:"play"`
}

// DefaultPaths 返回内置的路径模板。
func DefaultPaths() Paths {
	return Paths{
		Home:   []string{"/{lang}", "/"},
		Detail: []string{"/{lang}/{id}", "/{id}", "/{lang}/drama/{id}", "/{lang}/book/{id}"},
		Play:   []string{"/{lang}/episode/{id}", "/{lang}/{id}", "/{id}", "/{lang}/watch/{id}"},
	}
}

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
type CLIArgs struct {
	ConfigPath string

	Addr    string
	AddrSet bool

	BaseURL    string
	BaseURLSet bool

	SnapshotDir    string
	SnapshotDirSet bool

	LogLevel    string
	LogLevelSet bool
}

// FileConfig 对应 dramaapi.json 的解析结构。时长字段使用 Go duration 字符串（例如 "10s"）。
type FileConfig struct {
	Addr           string     `json:"addr"`
	BaseURL        string     `json:"base_url"`
	DefaultLang    string     `json:"default_lang"`
	Timeout        string     `json:"timeout"`
	UserAgent      string     `json:"user_agent"`
	AcceptLanguage string     `json:"accept_language"`
	Referer        string     `json:"referer"`
	ProxyURL       string     `json:"proxy_url"`
	RetryMax       *int       `json:"retry_max"`
	RetrySleep     string     `json:"retry_sleep"`
	RateLimit      float64    `json:"rate_limit"`
	MinBodyBytes   int        `json:"min_body_bytes"`
	Paths          *Paths     `json:"paths"`
	Limits         *Limits    `json:"limits"`
	SnapshotDir    string     `json:"snapshot_dir"`
	Log            *LogConfig `json:"log"`
}

type LogConfig struct {
	Level string `json:"level"`
	File  string `json:"file"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Addr string

	BaseURL     string // 不带结尾 '/'
	DefaultLang string

	Timeout        time.Duration
	UserAgent      string // 为空时由 httpx 的 UA 池提供
	AcceptLanguage string
	Referer        string
	ProxyURL       string
	RetryMax       int
	RetrySleep     time.Duration
	RateLimit      float64 // 每秒请求数；0 表示不限速
	MinBodyBytes   int

	Paths  Paths
	Limits Limits

	// SnapshotDir 非空时，把每个被采纳的页面落盘到该目录（排查站点结构变化用）。
	SnapshotDir string

	LogLevel string
	LogFile  string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LookupFunc 与 os.LookupEnv 同签名，便于测试注入。
type LookupFunc func(key string) (string, bool)

// LoadEffective 发现并读取配置，然后与环境变量、CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试 <cwd>/dramaapi.json（可选）
// 3) <cwd>/.env 若存在，作为环境变量的低优先级补充（真实环境变量优先）
//
// 覆盖优先级：CLI > 环境变量 > 配置文件 > 内置默认。
func LoadEffective(cwd string, cli CLIArgs, lookup LookupFunc) (EffectiveConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
	)
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		var exists bool
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, DefaultFileName)
		fc, _, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}

	dotenvPath := filepath.Join(cwdAbs, ".env")
	dotenv, err := readDotEnv(dotenvPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: dotenvPath, Err: err}
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	eff, err := merge(fc, env, cli)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	return eff, nil
}

func merge(fc FileConfig, env LookupFunc, cli CLIArgs) (EffectiveConfig, error) {
	eff := EffectiveConfig{
		Addr:           DefaultAddr,
		BaseURL:        DefaultBaseURL,
		DefaultLang:    DefaultLang,
		Timeout:        DefaultTimeout,
		AcceptLanguage: DefaultAcceptLanguage,
		RetryMax:       DefaultRetryMax,
		RetrySleep:     DefaultRetrySleep,
		MinBodyBytes:   DefaultMinBodyBytes,
		Paths:          DefaultPaths(),
		Limits:         DefaultLimits(),
		LogLevel:       DefaultLogLevel,
	}

	// 1) 配置文件
	setStr(&eff.Addr, fc.Addr)
	setStr(&eff.BaseURL, fc.BaseURL)
	setStr(&eff.DefaultLang, fc.DefaultLang)
	setStr(&eff.UserAgent, fc.UserAgent)
	setStr(&eff.AcceptLanguage, fc.AcceptLanguage)
	setStr(&eff.Referer, fc.Referer)
	setStr(&eff.ProxyURL, fc.ProxyURL)
	setStr(&eff.SnapshotDir, fc.SnapshotDir)
	if err := setDuration(&eff.Timeout, "timeout", fc.Timeout); err != nil {
		return EffectiveConfig{}, err
	}
	if err := setDuration(&eff.RetrySleep, "retry_sleep", fc.RetrySleep); err != nil {
		return EffectiveConfig{}, err
	}
	if fc.RetryMax != nil {
		eff.RetryMax = *fc.RetryMax
	}
	if fc.RateLimit != 0 {
		eff.RateLimit = fc.RateLimit
	}
	if fc.MinBodyBytes != 0 {
		eff.MinBodyBytes = fc.MinBodyBytes
	}
	if fc.Paths != nil {
		if len(fc.Paths.Home) > 0 {
			eff.Paths.Home = append([]string(nil), fc.Paths.Home...)
		}
		if len(fc.Paths.Detail) > 0 {
			eff.Paths.Detail = append([]string(nil), fc.Paths.Detail...)
		}
		if len(fc.Paths.Play) > 0 {
			eff.Paths.Play = append([]string(nil), fc.Paths.Play...)
		}
	}
	if fc.Limits != nil {
		mergeLimits(&eff.Limits, *fc.Limits)
	}
	if fc.Log != nil {
		setStr(&eff.LogLevel, fc.Log.Level)
		setStr(&eff.LogFile, fc.Log.File)
	}

	// 2) 环境变量
	if v, ok := env("PORT"); ok && strings.TrimSpace(v) != "" {
		eff.Addr = ":" + strings.TrimSpace(v)
	}
	envStr(env, "DRAMAAPI_ADDR", &eff.Addr)
	envStr(env, "DRAMAAPI_BASE_URL", &eff.BaseURL)
	envStr(env, "DRAMAAPI_LANG", &eff.DefaultLang)
	envStr(env, "DRAMAAPI_USER_AGENT", &eff.UserAgent)
	envStr(env, "DRAMAAPI_ACCEPT_LANGUAGE", &eff.AcceptLanguage)
	envStr(env, "DRAMAAPI_REFERER", &eff.Referer)
	envStr(env, "DRAMAAPI_PROXY_URL", &eff.ProxyURL)
	envStr(env, "DRAMAAPI_SNAPSHOT_DIR", &eff.SnapshotDir)
	envStr(env, "DRAMAAPI_LOG_LEVEL", &eff.LogLevel)
	envStr(env, "DRAMAAPI_LOG_FILE", &eff.LogFile)
	if v, ok := env("DRAMAAPI_TIMEOUT"); ok {
		if err := setDuration(&eff.Timeout, "DRAMAAPI_TIMEOUT", v); err != nil {
			return EffectiveConfig{}, err
		}
	}
	if v, ok := env("DRAMAAPI_RETRY_SLEEP"); ok {
		if err := setDuration(&eff.RetrySleep, "DRAMAAPI_RETRY_SLEEP", v); err != nil {
			return EffectiveConfig{}, err
		}
	}
	if err := envInt(env, "DRAMAAPI_RETRY_MAX", &eff.RetryMax); err != nil {
		return EffectiveConfig{}, err
	}
	if err := envInt(env, "DRAMAAPI_MIN_BODY_BYTES", &eff.MinBodyBytes); err != nil {
		return EffectiveConfig{}, err
	}
	if v, ok := env("DRAMAAPI_RATE_LIMIT"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return EffectiveConfig{}, fmt.Errorf("DRAMAAPI_RATE_LIMIT 无效：%q", v)
		}
		eff.RateLimit = f
	}

	// 3) CLI
	if cli.AddrSet {
		eff.Addr = cli.Addr
	}
	if cli.BaseURLSet {
		eff.BaseURL = cli.BaseURL
	}
	if cli.SnapshotDirSet {
		eff.SnapshotDir = cli.SnapshotDir
	}
	if cli.LogLevelSet {
		eff.LogLevel = cli.LogLevel
	}

	return normalize(eff)
}

func normalize(eff EffectiveConfig) (EffectiveConfig, error) {
	eff.Addr = strings.TrimSpace(eff.Addr)
	if eff.Addr == "" {
		return EffectiveConfig{}, fmt.Errorf("addr 不能为空")
	}

	eff.BaseURL = strings.TrimRight(strings.TrimSpace(eff.BaseURL), "/")
	u, err := url.Parse(eff.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return EffectiveConfig{}, fmt.Errorf("base_url 无效：%q", eff.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return EffectiveConfig{}, fmt.Errorf("base_url 必须是 http/https：%q", eff.BaseURL)
	}

	lang, ok := domain.ParseLang(eff.DefaultLang)
	if !ok {
		return EffectiveConfig{}, fmt.Errorf("default_lang 无效：%q", eff.DefaultLang)
	}
	eff.DefaultLang = lang

	if strings.TrimSpace(eff.Referer) == "" {
		eff.Referer = eff.BaseURL + "/"
	}

	eff.ProxyURL = strings.TrimSpace(eff.ProxyURL)
	if eff.ProxyURL != "" {
		pu, err := url.Parse(eff.ProxyURL)
		if err != nil || pu.Host == "" {
			return EffectiveConfig{}, fmt.Errorf("proxy_url 无效：%q", eff.ProxyURL)
		}
	}

	// 超时只允许“秒级”：过长会让慢站点拖住整个请求。
	if eff.Timeout <= 0 {
		eff.Timeout = DefaultTimeout
	}
	if eff.Timeout > time.Minute {
		eff.Timeout = time.Minute
	}
	if eff.RetryMax < 0 {
		eff.RetryMax = 0
	}
	if eff.RetryMax > 5 {
		eff.RetryMax = 5
	}
	if eff.RetrySleep < 0 {
		eff.RetrySleep = 0
	}
	if eff.RateLimit < 0 {
		return EffectiveConfig{}, fmt.Errorf("rate_limit 不能为负数：%v", eff.RateLimit)
	}
	if eff.MinBodyBytes < 0 {
		eff.MinBodyBytes = 0
	}

	for name, list := range map[string][]string{"paths.home": eff.Paths.Home, "paths.detail": eff.Paths.Detail, "paths.play": eff.Paths.Play} {
		for _, p := range list {
			if !strings.HasPrefix(strings.TrimSpace(p), "/") {
				return EffectiveConfig{}, fmt.Errorf("%s 必须以 '/' 开头：%q", name, p)
			}
		}
	}

	switch strings.ToLower(strings.TrimSpace(eff.LogLevel)) {
	case "debug", "info", "warn", "error":
		eff.LogLevel = strings.ToLower(strings.TrimSpace(eff.LogLevel))
	default:
		return EffectiveConfig{}, fmt.Errorf("log.level 只能是 debug/info/warn/error，实际是 %q", eff.LogLevel)
	}

	eff.SnapshotDir = strings.TrimSpace(eff.SnapshotDir)
	eff.LogFile = strings.TrimSpace(eff.LogFile)
	return eff, nil
}

func mergeLimits(dst *Limits, src Limits) {
	if src.Listing > 0 {
		dst.Listing = src.Listing
	}
	if src.Chapters > 0 {
		dst.Chapters = src.Chapters
	}
	if src.Tags > 0 {
		dst.Tags = src.Tags
	}
	if src.Hot > 0 {
		dst.Hot = src.Hot
	}
	if src.FallbackThreshold > 0 {
		dst.FallbackThreshold = src.FallbackThreshold
	}
	if src.WindowChars > 0 {
		dst.WindowChars = src.WindowChars
	}
}

func setStr(dst *string, v string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s 无效：%q", name, v)
	}
	*dst = d
	return nil
}

func envStr(env LookupFunc, key string, dst *string) {
	if v, ok := env(key); ok {
		setStr(dst, v)
	}
}

func envInt(env LookupFunc, key string, dst *int) error {
	v, ok := env(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s 无效：%q", key, v)
	}
	*dst = n
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// readDotEnv 读取 .env（不存在不算错误）。不写回进程环境，只作为低优先级来源。
func readDotEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return godotenv.Read(path)
}
