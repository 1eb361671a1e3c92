package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/dramaapi/internal/config"
	"github.com/John-Robertt/dramaapi/internal/domain"
	"github.com/John-Robertt/dramaapi/internal/fetch"
)

const homeHTML = `<html><body>
<a href="/id/31001241758" title="Love Story"><img src="/c/1.jpg"></a>
<a href="/id/31001241759" title="Hate Plan"><img src="/c/2.jpg"></a>
<a href="/id/31001241760" title="Lovely Runaway"><img src="/c/3.jpg"></a>
</body></html>`

const detailHTML = `<html><head><meta property="og:description" content="A story."></head><body>
<h1>Love Story</h1>
<a href="/id/episode/40000000002">Episode 2</a>
<a href="/id/episode/40000000001">Episode 1</a>
</body></html>`

const untitledHTML = `<html><body>
<a href="/id/episode/40000000001">Episode 1</a>
</body></html>`

const playHTML = `<html><body>
<video src="https://cdn.example.test/v/1.mp4"></video>
<script>var p = {"playUrl":"https:\/\/cdn.example.test\/hls\/1.m3u8"};</script>
</body></html>`

func newUpstream(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newService(t *testing.T, srv *httptest.Server, mutate func(*config.EffectiveConfig)) *Service {
	t.Helper()
	eff := config.EffectiveConfig{
		BaseURL:     srv.URL,
		DefaultLang: config.DefaultLang,
		Paths:       config.DefaultPaths(),
		Limits:      config.DefaultLimits(),
	}
	if mutate != nil {
		mutate(&eff)
	}
	f := &fetch.Fetcher{Client: srv.Client(), BaseURL: srv.URL}
	return New(f, eff, nil)
}

func TestHome(t *testing.T) {
	srv := newUpstream(t, map[string]string{"/id": homeHTML})
	s := newService(t, srv, nil)

	items, err := s.Home(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "31001241758", items[0].ID)
	assert.Equal(t, "id", items[0].Lang)
	assert.Equal(t, srv.URL+"/id/31001241758", items[0].URL)
	assert.Equal(t, srv.URL+"/c/1.jpg", items[0].Thumbnail)
}

func TestHome_UpstreamDownIsEmpty(t *testing.T) {
	srv := newUpstream(t, map[string]string{})
	s := newService(t, srv, nil)

	items, err := s.Home(context.Background(), "en")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestHome_InvalidLang(t *testing.T) {
	srv := newUpstream(t, map[string]string{})
	s := newService(t, srv, nil)

	_, err := s.Home(context.Background(), "../etc")
	require.Error(t, err)
	assert.True(t, IsInput(err))
}

func TestSearch(t *testing.T) {
	srv := newUpstream(t, map[string]string{"/id": homeHTML})
	s := newService(t, srv, nil)

	items, err := s.Search(context.Background(), "LOVE", "id")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Love Story", items[0].Title)
	assert.Equal(t, "Lovely Runaway", items[1].Title)

	items, err = s.Search(context.Background(), "plan", "id")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Hate Plan", items[0].Title)
}

func TestSearch_EmptyQuery(t *testing.T) {
	srv := newUpstream(t, map[string]string{"/id": homeHTML})
	s := newService(t, srv, nil)

	_, err := s.Search(context.Background(), "   ", "id")
	var ie *InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "q", ie.Field)
}

func TestHot_Limit(t *testing.T) {
	srv := newUpstream(t, map[string]string{"/id": homeHTML})
	s := newService(t, srv, func(eff *config.EffectiveConfig) { eff.Limits.Hot = 2 })

	items, err := s.Hot(context.Background(), "id")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "31001241759", items[1].ID)
}

func TestBook_FallsBackThroughTemplates(t *testing.T) {
	srv := newUpstream(t, map[string]string{"/id/drama/31001241758": detailHTML})
	s := newService(t, srv, nil)

	rec, err := s.Book(context.Background(), "31001241758", "id")
	require.NoError(t, err)
	assert.Equal(t, "Love Story", rec.Title)
	assert.Equal(t, "A story.", rec.Description)
	assert.Equal(t, srv.URL+"/id/drama/31001241758", rec.URL)
	assert.NotNil(t, rec.Tags)
	require.Len(t, rec.Chapters, 2)
	assert.Equal(t, 1, rec.Chapters[0].ChapterNumber)
	assert.Equal(t, "40000000001", rec.Chapters[0].ID)
}

func TestBook_NotFound(t *testing.T) {
	srv := newUpstream(t, map[string]string{"/id/31001241758": untitledHTML})
	s := newService(t, srv, nil)

	_, err := s.Book(context.Background(), "31001241758", "id")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Book(context.Background(), "31001241799", "id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBook_InvalidID(t *testing.T) {
	srv := newUpstream(t, map[string]string{})
	s := newService(t, srv, nil)

	for _, id := range []string{"", "abc", "123", "../31001241758"} {
		_, err := s.Book(context.Background(), id, "id")
		assert.True(t, IsInput(err), "id=%q err=%v", id, err)
	}
}

func TestChapters(t *testing.T) {
	srv := newUpstream(t, map[string]string{
		"/id/31001241758": detailHTML,
		"/id/31001241759": untitledHTML,
	})
	s := newService(t, srv, nil)

	list, err := s.Chapters(context.Background(), "31001241758", "id")
	require.NoError(t, err)
	assert.Equal(t, "31001241758", list.BookID)
	assert.Equal(t, "Love Story", list.Title)
	require.Len(t, list.Chapters, 2)

	list, err = s.Chapters(context.Background(), "31001241759", "id")
	require.NoError(t, err)
	assert.Empty(t, list.Title)
	require.Len(t, list.Chapters, 1)

	_, err = s.Chapters(context.Background(), "31001241700", "id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChapters_NextDataUsesPlayTemplate(t *testing.T) {
	const nextHTML = `<html><body><h1>Hate Plan</h1>
<script id="__NEXT_DATA__" type="application/json">
{"props":{"pageProps":{"episodeList":[{"id":40000000007,"number":7}]}}}
</script></body></html>`
	srv := newUpstream(t, map[string]string{"/id/31001241759": nextHTML})
	s := newService(t, srv, nil)

	list, err := s.Chapters(context.Background(), "31001241759", "id")
	require.NoError(t, err)
	require.Len(t, list.Chapters, 1)
	assert.Equal(t, 7, list.Chapters[0].ChapterNumber)
	assert.Equal(t, srv.URL+"/id/episode/40000000007", list.Chapters[0].URL)
}

func TestPlayAndStream(t *testing.T) {
	srv := newUpstream(t, map[string]string{"/id/watch/40000000001": playHTML})
	s := newService(t, srv, nil)

	sources, err := s.Play(context.Background(), "40000000001", "id")
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, domain.MediaMP4, sources[0].Type)

	st, err := s.Stream(context.Background(), "40000000001", "id")
	require.NoError(t, err)
	assert.Equal(t, "40000000001", st.ID)
	assert.Equal(t, "https://cdn.example.test/hls/1.m3u8", st.StreamURL)
	assert.Equal(t, domain.MediaM3U8, st.Type)
	assert.Equal(t, domain.QualityAuto, st.Quality)
	assert.Len(t, st.AllSources, 2)
}

func TestPlay_NoSources(t *testing.T) {
	srv := newUpstream(t, map[string]string{"/id/episode/40000000001": `<html><body>nothing</body></html>`})
	s := newService(t, srv, nil)

	_, err := s.Play(context.Background(), "40000000001", "id")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Stream(context.Background(), "40000000001", "id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCanceledContext(t *testing.T) {
	srv := newUpstream(t, map[string]string{"/id": homeHTML})
	s := newService(t, srv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Home(ctx, "id")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSnapshotWritten(t *testing.T) {
	dir := t.TempDir()
	srv := newUpstream(t, map[string]string{"/id/31001241758": detailHTML})
	s := newService(t, srv, func(eff *config.EffectiveConfig) { eff.SnapshotDir = dir })

	_, err := s.Book(context.Background(), "31001241758", "id")
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "pages", "detail", "31001241758.html"))
	require.NoError(t, err)
	assert.Equal(t, detailHTML, string(b))
}
