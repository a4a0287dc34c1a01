package http_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/harvest"
	harvesthttp "github.com/fwojciec/harvest/http"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const financeURLSet = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>{{BASE}}/finance/rates-cut</loc></url>
  <url><loc>{{BASE}}/trade/exports-rise</loc></url>
  <url><loc>{{BASE}}/finance/video/briefing</loc></url>
  <url><loc>{{BASE}}/financial-times-partner</loc></url>
</urlset>`

func TestSitemapService_DiscoverURLs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		baseURL string // appended to the server URL
		filter  *harvest.URLFilter
		want    []string // paths
	}{
		{
			name: "returns every entry in document order",
			want: []string{"/finance/rates-cut", "/trade/exports-rise", "/finance/video/briefing", "/financial-times-partner"},
		},
		{
			name:    "restricts results to the section of the base URL",
			baseURL: "/finance",
			want:    []string{"/finance/rates-cut", "/finance/video/briefing"},
		},
		{
			name:   "applies include patterns",
			filter: &harvest.URLFilter{Include: []*regexp.Regexp{regexp.MustCompile(`/trade/`)}},
			want:   []string{"/trade/exports-rise"},
		},
		{
			name:    "applies exclude patterns inside a section",
			baseURL: "/finance/",
			filter:  &harvest.URLFilter{Exclude: []*regexp.Regexp{regexp.MustCompile(`/video/`)}},
			want:    []string{"/finance/rates-cut"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, map[string]string{"/sitemap.xml": financeURLSet})

			urls, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL+tt.baseURL, tt.filter)

			require.NoError(t, err)
			want := make([]string, len(tt.want))
			for i, p := range tt.want {
				want[i] = srv.URL + p
			}
			assert.Equal(t, want, urls)
		})
	}
}

func TestSitemapService_DiscoverURLs_Robots(t *testing.T) {
	t.Parallel()

	t.Run("reads every sitemap declared in robots.txt", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{
			"/robots.txt": "User-agent: *\nDisallow: /admin/\nSITEMAP: {{BASE}}/finance.xml\nSitemap:{{BASE}}/trade.xml\n",
			"/finance.xml": `<urlset><url><loc>{{BASE}}/finance/a</loc></url><url><loc>{{BASE}}/shared</loc></url></urlset>`,
			"/trade.xml":   `<urlset><url><loc>{{BASE}}/shared</loc></url><url><loc>{{BASE}}/trade/b</loc></url></urlset>`,
			// Not declared, so never read.
			"/sitemap.xml": `<urlset><url><loc>{{BASE}}/unlisted</loc></url></urlset>`,
		})

		urls, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/finance/a", srv.URL + "/shared", srv.URL + "/trade/b"}, urls)
	})

	t.Run("falls back to conventional locations", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{
			"/news-sitemap.xml": `<urlset><url><loc>{{BASE}}/finance/a</loc></url></urlset>`,
		})

		urls, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/finance/a"}, urls)
	})

	t.Run("returns an empty list when the site has no sitemap", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{})

		urls, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)

		require.NoError(t, err)
		assert.NotNil(t, urls)
		assert.Empty(t, urls)
	})

	t.Run("sends the user agent", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var agents []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			agents = append(agents, r.UserAgent())
			mu.Unlock()
			http.NotFound(w, r)
		}))
		t.Cleanup(srv.Close)

		svc := harvesthttp.NewSitemapService(srv.Client())
		svc.UserAgent = "newsbot/2.0"
		_, err := svc.DiscoverURLs(context.Background(), srv.URL, nil)

		require.NoError(t, err)
		require.NotEmpty(t, agents)
		for _, a := range agents {
			assert.Equal(t, "newsbot/2.0", a)
		}
	})
}

func TestSitemapService_DiscoverURLs_Index(t *testing.T) {
	t.Parallel()

	t.Run("descends into nested sitemap indexes", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{
			"/sitemap.xml": `<sitemapindex>
  <sitemap><loc>{{BASE}}/2025.xml</loc></sitemap>
  <sitemap><loc>{{BASE}}/sections.xml</loc></sitemap>
</sitemapindex>`,
			"/2025.xml":     `<sitemapindex><sitemap><loc>{{BASE}}/2025-06.xml</loc></sitemap></sitemapindex>`,
			"/2025-06.xml":  `<urlset><url><loc>{{BASE}}/finance/june</loc></url></urlset>`,
			"/sections.xml": `<urlset><url><loc>{{BASE}}/finance/</loc></url></urlset>`,
		})

		urls, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/finance/june", srv.URL + "/finance/"}, urls)
	})

	t.Run("reads an index that lists itself only once", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{
			"/sitemap.xml": `<sitemapindex>
  <sitemap><loc>{{BASE}}/sitemap.xml</loc></sitemap>
  <sitemap><loc>{{BASE}}/articles.xml</loc></sitemap>
</sitemapindex>`,
			"/articles.xml": `<urlset><url><loc>{{BASE}}/finance/a</loc></url></urlset>`,
		})

		urls, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/finance/a"}, urls)
	})

	t.Run("fails when a declared child sitemap is missing", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{
			"/robots.txt":  "Sitemap: {{BASE}}/index.xml\n",
			"/index.xml":   `<sitemapindex><sitemap><loc>{{BASE}}/gone.xml</loc></sitemap></sitemapindex>`,
			"/sitemap.xml": `<urlset><url><loc>{{BASE}}/finance/a</loc></url></urlset>`,
		})

		_, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)

		require.Error(t, err)
		assert.Equal(t, harvest.ENOTFOUND, harvest.ErrorCode(err))
	})

	t.Run("rejects documents that are not sitemaps", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{"/sitemap.xml": `<rss><channel></channel></rss>`})

		_, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)

		require.Error(t, err)
		assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(err))
	})
}

func TestSitemapService_DiscoverURLs_Freshness(t *testing.T) {
	t.Parallel()

	since := &harvest.URLFilter{ModifiedSince: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	t.Run("drops entries modified before the cut-off", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{"/sitemap.xml": `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>{{BASE}}/news/old</loc><lastmod>2024-12-30</lastmod></url>
  <url><loc>{{BASE}}/news/new</loc><lastmod>2025-01-05T08:00:00+08:00</lastmod></url>
  <url><loc>{{BASE}}/news/undated</loc></url>
</urlset>`})

		urls, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, since)

		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/news/new", srv.URL + "/news/undated"}, urls)
	})

	t.Run("prefers the news publication date over lastmod", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{"/sitemap.xml": `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"
        xmlns:news="http://www.google.com/schemas/sitemap-news/0.9">
  <url>
    <loc>{{BASE}}/news/republished</loc>
    <lastmod>2025-03-01</lastmod>
    <news:news><news:publication_date>2024-11-20</news:publication_date><news:title>Old story</news:title></news:news>
  </url>
  <url>
    <loc>{{BASE}}/news/breaking</loc>
    <news:news><news:publication_date>2025-02-10T06:00:00Z</news:publication_date></news:news>
  </url>
</urlset>`})

		urls, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, since)

		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/news/breaking"}, urls)
	})

	t.Run("skips stale index entries without fetching them", func(t *testing.T) {
		t.Parallel()

		// The stale sitemap is not served; fetching it would fail the discovery.
		srv := newTestServer(t, map[string]string{
			"/sitemap.xml": `<sitemapindex>
  <sitemap><loc>{{BASE}}/sitemap-2019.xml</loc><lastmod>2019-06-01</lastmod></sitemap>
  <sitemap><loc>{{BASE}}/sitemap-2025.xml</loc><lastmod>2025-06-01</lastmod></sitemap>
</sitemapindex>`,
			"/sitemap-2025.xml": `<urlset><url><loc>{{BASE}}/news/current</loc></url></urlset>`,
		})

		urls, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, since)

		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/news/current"}, urls)
	})
}

func TestSitemapService_DiscoverURLs_Gzip(t *testing.T) {
	t.Parallel()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("Sitemap: " + srv.URL + "/sitemap.xml.gz\n"))
		case "/sitemap.xml.gz":
			var buf bytes.Buffer
			zw := gzip.NewWriter(&buf)
			_, _ = zw.Write([]byte(`<urlset><url><loc>` + srv.URL + `/finance/a</loc></url></urlset>`))
			_ = zw.Close()
			w.Header().Set("Content-Type", "application/gzip")
			_, _ = w.Write(buf.Bytes())
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	urls, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(context.Background(), srv.URL, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/finance/a"}, urls)
}

func TestSitemapService_DiscoverURLs_Errors(t *testing.T) {
	t.Parallel()

	t.Run("returns the context error when cancelled", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, map[string]string{"/sitemap.xml": financeURLSet})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := harvesthttp.NewSitemapService(srv.Client()).DiscoverURLs(ctx, srv.URL, nil)

		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("rejects a base URL without a host", func(t *testing.T) {
		t.Parallel()

		_, err := harvesthttp.NewSitemapService(nil).DiscoverURLs(context.Background(), "finance/rates", nil)

		require.Error(t, err)
		assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(err))
	})
}

// newTestServer serves content by path. Bodies may contain {{BASE}}, which is
// replaced with the server URL.
func newTestServer(t *testing.T, content map[string]string) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := content[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if r.URL.Path == "/robots.txt" {
			w.Header().Set("Content-Type", "text/plain")
		} else {
			w.Header().Set("Content-Type", "application/xml")
		}
		_, _ = w.Write([]byte(strings.ReplaceAll(body, "{{BASE}}", srv.URL)))
	}))
	t.Cleanup(srv.Close)
	return srv
}
