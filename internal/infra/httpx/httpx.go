package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultAccept   = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	defaultAcceptLn = "id-ID,id;q=0.9,en-US;q=0.8,en;q=0.7"
)

// Options 描述站点抓取客户端的网络策略。零值可用（全部走默认）。
type Options struct {
	Timeout time.Duration

	// UserAgent 为空时每个请求从内置 UA 池随机取一个。
	UserAgent      string
	AcceptLanguage string
	Referer        string

	ProxyURL string

	// RetryMax 表示传输失败时的最大重试次数（不含首次尝试）；HTTP 状态码不触发重试。
	RetryMax   int
	RetrySleep time.Duration

	// RateLimit 是每秒允许发出的请求数；<=0 表示不限速。
	RateLimit float64
}

// Transport 把“浏览器请求头 + 代理 + keep-alive 策略 + 有界重试 + 限速”固化为统一策略。
//
// 设计目标：fetch/extract 只负责“定位页面 + 解析 HTML”，不关心网络策略细节。
// 源站会根据请求头是否齐全返回不同内容，因此请求头在这里统一补齐。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	UserAgent      string
	AcceptLanguage string
	Referer        string

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax   int
	RetrySleep time.Duration

	// Limiter 为 nil 表示不限速。
	Limiter *rate.Limiter

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 {
		max = 0
	}
	if !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if attempt > 0 && t.RetrySleep > 0 {
			timer := time.NewTimer(t.RetrySleep)
			select {
			case <-req.Context().Done():
				timer.Stop()
				return nil, lastErr
			case <-timer.C:
			}
		}
		if t.Limiter != nil {
			if err := t.Limiter.Wait(req.Context()); err != nil {
				if lastErr == nil {
					lastErr = err
				}
				return nil, lastErr
			}
		}

		r := cloneRequest(req)
		t.applyHeaders(r)
		if t.DisableKeepAlives {
			// 额外保险：即使上层误用了其它 Transport，也尽量不复用连接。
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// applyHeaders 只补齐调用方没有设置的请求头。
func (t *Transport) applyHeaders(r *http.Request) {
	if r.Header.Get("User-Agent") == "" {
		ua := strings.TrimSpace(t.UserAgent)
		if ua == "" && t.ua != nil {
			ua = t.ua.random()
		}
		if ua != "" {
			r.Header.Set("User-Agent", ua)
		}
	}
	if r.Header.Get("Accept") == "" {
		r.Header.Set("Accept", defaultAccept)
	}
	if r.Header.Get("Accept-Language") == "" {
		al := strings.TrimSpace(t.AcceptLanguage)
		if al == "" {
			al = defaultAcceptLn
		}
		r.Header.Set("Accept-Language", al)
	}
	if r.Header.Get("Referer") == "" && strings.TrimSpace(t.Referer) != "" {
		r.Header.Set("Referer", t.Referer)
	}
}

func cloneRequest(req *http.Request) *http.Request {
	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	return req.Clone(req.Context())
}

// NewSiteClient 构造用于抓取源站页面的 HTTP client。
//
// 规则：
// - ProxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - 固定浏览器请求头；未配置 UA 时使用内置 UA 池
// - 传输失败有界重试（固定间隔）+ 总超时（秒级）
func NewSiteClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	disableKeepAlives := false
	proxyURL := strings.TrimSpace(opts.ProxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	tr := &Transport{
		Base:              base,
		ua:                globalUA,
		UserAgent:         opts.UserAgent,
		AcceptLanguage:    opts.AcceptLanguage,
		Referer:           opts.Referer,
		RetryMax:          opts.RetryMax,
		RetrySleep:        opts.RetrySleep,
		Limiter:           limiter,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	// 只放桌面浏览器：移动端 UA 会被源站重定向到 h5 页面，结构完全不同。
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
