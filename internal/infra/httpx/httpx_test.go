package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewSiteClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewSiteClient(Options{ProxyURL: "http://127.0.0.1:8080"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives {
		t.Fatalf("期望禁用 keep-alive，但 Base.DisableKeepAlives=false")
	}
	if !tr.DisableKeepAlives {
		t.Fatalf("期望设置 Request.Close=true 的额外保险，但 DisableKeepAlives=false")
	}
}

func TestNewSiteClient_Defaults(t *testing.T) {
	c, err := NewSiteClient(Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if c.Timeout != defaultTimeout {
		t.Fatalf("期望默认超时 %v，实际 %v", defaultTimeout, c.Timeout)
	}
	tr := c.Transport.(*Transport)
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if tr.Limiter != nil {
		t.Fatalf("RateLimit=0 时不应限速")
	}
}

func TestNewSiteClient_InvalidProxyURL(t *testing.T) {
	_, err := NewSiteClient(Options{ProxyURL: "http://[::1"})
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestTransport_AppliesBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	c, err := NewSiteClient(Options{
		UserAgent:      "TestAgent/1.0",
		AcceptLanguage: "id-ID",
		Referer:        "https://www.example.test/",
		RateLimit:      100,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()

	if got.Get("User-Agent") != "TestAgent/1.0" {
		t.Fatalf("User-Agent 不符合预期：%q", got.Get("User-Agent"))
	}
	if got.Get("Accept-Language") != "id-ID" {
		t.Fatalf("Accept-Language 不符合预期：%q", got.Get("Accept-Language"))
	}
	if got.Get("Referer") != "https://www.example.test/" {
		t.Fatalf("Referer 不符合预期：%q", got.Get("Referer"))
	}
	if got.Get("Accept") == "" {
		t.Fatalf("期望补齐 Accept 头")
	}
}

func TestTransport_UAPoolWhenUnset(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c, _ := NewSiteClient(Options{})
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()

	found := false
	for _, u := range globalUA.uas {
		if u == ua {
			found = true
		}
	}
	if !found {
		t.Fatalf("期望 UA 来自内置 UA 池，实际 %q", ua)
	}
}

func TestTransport_RetryOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close() // 关闭后连接必然失败

	tr := &Transport{
		Base:       &http.Transport{},
		ua:         globalUA,
		RetryMax:   2,
		RetrySleep: time.Millisecond,
	}
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, addr, nil)
	start := time.Now()
	_, err := tr.RoundTrip(req)
	if err == nil {
		t.Fatalf("期望传输错误，但得到 nil")
	}
	if time.Since(start) < 2*time.Millisecond {
		t.Fatalf("期望重试之间有固定间隔")
	}
}

func TestTransport_NoRetryAfterCancel(t *testing.T) {
	tr := &Transport{
		Base:       &http.Transport{},
		RetryMax:   3,
		RetrySleep: time.Hour,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:1/", nil)

	done := make(chan error, 1)
	go func() {
		_, err := tr.RoundTrip(req)
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("期望错误，但得到 nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("ctx 已取消时不应等待重试间隔")
	}
}

func TestTransport_NilBase(t *testing.T) {
	tr := &Transport{}
	req, _ := http.NewRequest(http.MethodGet, "http://example.test/", nil)
	if _, err := tr.RoundTrip(req); err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("期望 nil base transport 错误，实际 %v", err)
	}
}
