package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/dramaapi/internal/metrics"
)

// maxBodyBytes 限制单个页面读取量，避免异常响应撑爆内存。
const maxBodyBytes = 8 << 20

const (
	StageFetch = "fetch" // 传输失败或非 2xx
	StageSize  = "size"  // 响应体过短
	StageOK    = "ok"
)

// Vars 是路径模板的占位符取值。
type Vars struct {
	Lang string
	ID   string
}

// Page 是被采纳的页面。
type Page struct {
	URL  string
	Body []byte
}

// Attempt 记录一次 URL 尝试（用于解释为何落到了后面的模板）。
type Attempt struct {
	URL   string
	Stage string // "fetch" / "size" / "ok"
	Err   error  // nil when Stage=="ok"
}

// Fetcher 负责对源站发起 GET，并按路径模板顺序猜测内容页。
//
// 约束：
// - 不做缓存；每次调用都重新抓取
// - 传输层重试/限速/请求头由 Client（httpx.Transport）统一处理
// - First 永不返回 error：失败只体现为 ok=false + Attempt 轨迹
type Fetcher struct {
	Client *http.Client

	// BaseURL 是源站 origin（不带结尾 '/'）。
	BaseURL string

	// MinBodyBytes 是“像内容页”的最小响应体长度；<=0 表示不检查。
	MinBodyBytes int

	Logger *slog.Logger
}

// Get 抓取单个 URL；非 2xx 返回 *HTTPStatusError。
func (f *Fetcher) Get(ctx context.Context, u string) ([]byte, error) {
	if f.Client == nil {
		return nil, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// First 按顺序展开 templates 并逐个抓取，返回第一个响应体达到 MinBodyBytes 的页面。
// 全部失败时返回 ok=false（调用方把它当作“内容不存在”）。
func (f *Fetcher) First(ctx context.Context, templates []string, v Vars) (Page, []Attempt, bool) {
	attempts := make([]Attempt, 0, len(templates))
	seen := make(map[string]struct{}, len(templates))

	for _, tmpl := range templates {
		u := Expand(f.BaseURL, tmpl, v)
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}

		if ctx.Err() != nil {
			attempts = append(attempts, Attempt{URL: u, Stage: StageFetch, Err: ctx.Err()})
			break
		}

		body, err := f.Get(ctx, u)
		if err != nil {
			attempts = append(attempts, f.record(Attempt{URL: u, Stage: StageFetch, Err: err}))
			continue
		}
		if f.MinBodyBytes > 0 && len(body) < f.MinBodyBytes {
			attempts = append(attempts, f.record(Attempt{URL: u, Stage: StageSize, Err: &BodyTooSmallError{URL: u, Got: len(body), Want: f.MinBodyBytes}}))
			continue
		}

		attempts = append(attempts, f.record(Attempt{URL: u, Stage: StageOK}))
		return Page{URL: u, Body: body}, attempts, true
	}
	return Page{}, attempts, false
}

func (f *Fetcher) record(a Attempt) Attempt {
	metrics.FetchAttempts.WithLabelValues(a.Stage).Inc()
	if f.Logger != nil {
		if a.Err != nil {
			f.Logger.Debug("fetch attempt failed", slog.String("url", a.URL), slog.String("stage", a.Stage), slog.Any("error", a.Err))
		} else {
			f.Logger.Debug("fetch attempt ok", slog.String("url", a.URL))
		}
	}
	return a
}

// Expand 把路径模板展开为绝对 URL。占位符按路径段转义。
func Expand(baseURL, tmpl string, v Vars) string {
	r := strings.NewReplacer(
		"{lang}", url.PathEscape(v.Lang),
		"{id}", url.PathEscape(v.ID),
	)
	p := r.Replace(strings.TrimSpace(tmpl))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(baseURL, "/") + p
}

// Summary 把尝试轨迹压缩为一行（用于日志与错误信息）。
func Summary(attempts []Attempt) string {
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		if a.Err != nil {
			parts = append(parts, fmt.Sprintf("%s[%s: %v]", a.URL, a.Stage, a.Err))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s[%s]", a.URL, a.Stage))
	}
	return strings.Join(parts, " -> ")
}
