// Package server 把 scrape.Service 暴露为 JSON HTTP 接口。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/John-Robertt/dramaapi/internal/config"
	"github.com/John-Robertt/dramaapi/internal/domain"
	"github.com/John-Robertt/dramaapi/internal/metrics"
	"github.com/John-Robertt/dramaapi/internal/scrape"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Scraper 是 server 依赖的查询能力（*scrape.Service 实现它）。
type Scraper interface {
	Home(ctx context.Context, lang string) ([]domain.ListingItem, error)
	Search(ctx context.Context, q, lang string) ([]domain.ListingItem, error)
	Hot(ctx context.Context, lang string) ([]domain.ListingItem, error)
	Book(ctx context.Context, id, lang string) (domain.DetailRecord, error)
	Chapters(ctx context.Context, id, lang string) (scrape.ChapterList, error)
	Play(ctx context.Context, id, lang string) ([]domain.MediaSource, error)
	Stream(ctx context.Context, id, lang string) (domain.Stream, error)
}

// Options 描述对外展示的站点元数据。
type Options struct {
	Name        string
	Version     string
	BaseURL     string
	DefaultLang string
	Logger      *slog.Logger
}

// Server 是完整的 HTTP handler（路由 + 中间件）。
type Server struct {
	svc     Scraper
	opts    Options
	logger  *slog.Logger
	handler http.Handler
}

// New 组装路由与中间件。
//
// 中间件顺序（外到内）：request id → 访问日志 → 指标 → panic 恢复 → CORS/OPTIONS → 路由。
func New(svc Scraper, opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "dramaapi"
	}
	if opts.DefaultLang == "" {
		opts.DefaultLang = config.DefaultLang
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, opts: opts, logger: logger}

	r := mux.NewRouter()
	r.Use(markRoute)
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/home", s.handleHome).Methods(http.MethodGet)
	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/hot", s.handleHot).Methods(http.MethodGet)
	r.HandleFunc("/book/{id}", s.handleBook).Methods(http.MethodGet)
	r.HandleFunc("/chapters/{id}", s.handleChapters).Methods(http.MethodGet)
	r.HandleFunc("/play/{id}", s.handlePlay).Methods(http.MethodGet)
	r.HandleFunc("/m3u8/{id}", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.handler = s.requestID(s.accessLog(s.metricsMiddleware(s.recoverer(cors(r)))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type listResponse struct {
	Status string `json:"status"`
	Lang   string `json:"lang,omitempty"`
	Query  string `json:"query,omitempty"`
	Total  int    `json:"total"`
	Data   any    `json:"data"`
}

type chaptersResponse struct {
	Status string               `json:"status"`
	BookID string               `json:"book_id"`
	Title  string               `json:"title"`
	Total  int                  `json:"total"`
	Data   []domain.ChapterItem `json:"data"`
}

type dataResponse struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

type indexResponse struct {
	Status      string     `json:"status"`
	Name        string     `json:"name"`
	Version     string     `json:"version,omitempty"`
	Source      string     `json:"source,omitempty"`
	DefaultLang string     `json:"default_lang"`
	Endpoints   []endpoint `json:"endpoints"`
}

var endpoints = []endpoint{
	{http.MethodGet, "/home?lang=", "drama cards on the home page"},
	{http.MethodGet, "/search?q=&lang=", "home page cards whose title contains q"},
	{http.MethodGet, "/hot?lang=", "first cards of the home page"},
	{http.MethodGet, "/book/{id}?lang=", "drama detail with chapters"},
	{http.MethodGet, "/chapters/{id}?lang=", "chapter list of a drama"},
	{http.MethodGet, "/play/{id}?lang=", "all media sources of an episode"},
	{http.MethodGet, "/m3u8/{id}?lang=", "preferred stream of an episode"},
	{http.MethodGet, "/healthz", "liveness probe"},
	{http.MethodGet, "/metrics", "prometheus metrics"},
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, indexResponse{
		Status:      statusSuccess,
		Name:        s.opts.Name,
		Version:     s.opts.Version,
		Source:      s.opts.BaseURL,
		DefaultLang: s.opts.DefaultLang,
		Endpoints:   endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dataResponse{Status: statusSuccess, Data: map[string]string{"name": s.opts.Name}})
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	lang := s.lang(r)
	items, err := s.svc.Home(r.Context(), lang)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Status: statusSuccess, Lang: lang, Total: len(items), Data: items})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	items, err := s.svc.Search(r.Context(), q, s.lang(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Status: statusSuccess, Query: q, Total: len(items), Data: items})
}

func (s *Server) handleHot(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.Hot(r.Context(), s.lang(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Status: statusSuccess, Total: len(items), Data: items})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Book(r.Context(), mux.Vars(r)["id"], s.lang(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Status: statusSuccess, Data: rec})
}

func (s *Server) handleChapters(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Chapters(r.Context(), mux.Vars(r)["id"], s.lang(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chaptersResponse{
		Status: statusSuccess,
		BookID: list.BookID,
		Title:  list.Title,
		Total:  len(list.Chapters),
		Data:   list.Chapters,
	})
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	sources, err := s.svc.Play(r.Context(), mux.Vars(r)["id"], s.lang(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Status: statusSuccess, Total: len(sources), Data: sources})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Stream(r.Context(), mux.Vars(r)["id"], s.lang(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dataResponse{Status: statusSuccess, Data: st})
}

func (s *Server) lang(r *http.Request) string {
	if l := strings.TrimSpace(r.URL.Query().Get("lang")); l != "" {
		return l
	}
	return s.opts.DefaultLang
}

// fail 把 service 错误映射为 HTTP 状态码：参数错误 400，不存在 404，其余 500。
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", r.URL.Path), slog.String("request_id", RequestID(r.Context())), slog.Any("error", err))
	}
	writeError(w, code, err.Error())
}

func statusOf(err error) int {
	switch {
	case scrape.IsInput(err):
		return http.StatusBadRequest
	case errors.Is(err, scrape.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Status: statusError, Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
