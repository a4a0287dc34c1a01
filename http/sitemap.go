package http

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/fwojciec/harvest"
	"github.com/klauspost/compress/gzip"
)

// Ensure SitemapService implements harvest.SitemapService.
var _ harvest.SitemapService = (*SitemapService)(nil)

// maxSitemapDepth bounds sitemap index nesting. News sites commonly nest an
// index of per-year indexes of per-day sitemaps.
const maxSitemapDepth = 4

// fallbackSitemaps are probed in order when robots.txt lists no sitemap.
var fallbackSitemaps = []string{"/sitemap.xml", "/sitemap_index.xml", "/news-sitemap.xml"}

// SitemapService discovers article URLs from website sitemaps via HTTP.
// It understands plain and gzip-compressed sitemaps, sitemap indexes and the
// Google News extension.
type SitemapService struct {
	client *http.Client

	// UserAgent is sent with every request.
	UserAgent string
}

// NewSitemapService creates a new SitemapService with the given HTTP client.
// If client is nil, http.DefaultClient is used.
func NewSitemapService(client *http.Client) *SitemapService {
	if client == nil {
		client = http.DefaultClient
	}
	return &SitemapService{client: client, UserAgent: DefaultUserAgent}
}

// DiscoverURLs returns the article URLs listed in a site's sitemaps in
// document order without duplicates. It returns an empty slice, not nil,
// when the site has no sitemap.
//
// When baseURL has a path (e.g. https://news.example.com/finance/), only URLs
// inside that section are returned. Entries dated before
// filter.ModifiedSince are dropped; a news:publication_date takes precedence
// over lastmod.
func (s *SitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *harvest.URLFilter) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, harvest.Errorf(harvest.EINVALID, "invalid base URL: %q", baseURL)
	}

	w := &sitemapWalk{
		svc:     s,
		filter:  filter,
		section: sectionPrefix(base.Path),
		visited: make(map[string]bool),
		listed:  make(map[string]bool),
		urls:    []string{},
	}

	site := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: "/"}
	declared, err := s.robotsSitemaps(ctx, site.JoinPath("robots.txt").String())
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	for _, loc := range declared {
		if err := w.walk(ctx, loc, 0); err != nil {
			return nil, err
		}
	}
	if len(declared) > 0 {
		return w.urls, nil
	}

	// Without a declaration, use the first conventional location that exists.
	for _, path := range fallbackSitemaps {
		err := w.walk(ctx, site.JoinPath(path).String(), 0)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if harvest.ErrorCode(err) != harvest.ENOTFOUND {
			return nil, err
		}
	}
	return w.urls, nil
}

// robotsSitemaps returns the Sitemap: directives of a robots.txt file.
func (s *SitemapService) robotsSitemaps(ctx context.Context, robotsURL string) ([]string, error) {
	body, err := s.get(ctx, robotsURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var sitemaps []string
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "sitemap") {
			continue
		}
		if loc := strings.TrimSpace(value); loc != "" {
			sitemaps = append(sitemaps, loc)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading robots.txt: %w", err)
	}
	return sitemaps, nil
}

// get fetches targetURL and returns the body of a 200 response. Other
// statuses map to application error codes like Fetcher.Fetch.
func (s *SitemapService) get(ctx context.Context, targetURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, harvest.Errorf(harvest.EINVALID, "invalid sitemap URL %q: %v", targetURL, err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if err := statusError(resp.StatusCode, targetURL); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

// sitemapWalk accumulates URLs across the sitemaps of one discovery run.
type sitemapWalk struct {
	svc     *SitemapService
	filter  *harvest.URLFilter
	section string

	visited map[string]bool // sitemap locations already read
	listed  map[string]bool // article URLs already returned
	urls    []string
}

// walk reads the sitemap at loc and descends into sitemap indexes.
func (w *sitemapWalk) walk(ctx context.Context, loc string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > maxSitemapDepth || w.visited[loc] {
		return nil
	}
	w.visited[loc] = true

	root, err := w.svc.read(ctx, loc)
	if err != nil {
		return err
	}

	switch root.Tag {
	case "sitemapindex":
		for _, child := range root.SelectElements("sitemap") {
			childLoc := text(child.SelectElement("loc"))
			if childLoc == "" || !w.filter.Fresh(parseTime(child.SelectElement("lastmod"))) {
				continue
			}
			if err := w.walk(ctx, childLoc, depth+1); err != nil {
				return err
			}
		}
	case "urlset":
		for _, entry := range root.SelectElements("url") {
			w.add(text(entry.SelectElement("loc")), entryTime(entry))
		}
	default:
		return harvest.Errorf(harvest.EINVALID, "unrecognized sitemap root <%s> in %s", root.Tag, loc)
	}
	return nil
}

func (w *sitemapWalk) add(u string, modified time.Time) {
	if u == "" || w.listed[u] {
		return
	}
	if !inSection(u, w.section) || !w.filter.Fresh(modified) || !w.filter.Match(u) {
		return
	}
	w.listed[u] = true
	w.urls = append(w.urls, u)
}

// read fetches and parses a sitemap document, unwrapping gzip if needed.
func (s *SitemapService) read(ctx context.Context, loc string) (*etree.Element, error) {
	body, err := s.get(ctx, loc)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	r, err := decompress(body)
	if err != nil {
		return nil, harvest.Errorf(harvest.EINVALID, "reading sitemap %s: %v", loc, err)
	}

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, harvest.Errorf(harvest.EINVALID, "parsing sitemap %s: %v", loc, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, harvest.Errorf(harvest.EINVALID, "empty sitemap %s", loc)
	}
	return root, nil
}

// entryTime returns the freshest date known for a urlset entry: the Google
// News publication date when present, otherwise lastmod.
func entryTime(entry *etree.Element) time.Time {
	if news := entry.SelectElement("news"); news != nil {
		if t := parseTime(news.SelectElement("publication_date")); !t.IsZero() {
			return t
		}
	}
	return parseTime(entry.SelectElement("lastmod"))
}

// parseTime returns the zero time for a missing or unparseable element.
func parseTime(el *etree.Element) time.Time {
	t, err := harvest.ParsePublishTime(text(el))
	if err != nil || t == nil {
		return time.Time{}
	}
	return *t
}

func text(el *etree.Element) string {
	if el == nil {
		return ""
	}
	return strings.TrimSpace(el.Text())
}

// sectionPrefix normalizes a base path to a directory prefix; the site root
// yields "".
func sectionPrefix(path string) string {
	if path == "" || path == "/" {
		return ""
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}

// inSection reports whether rawURL lies under prefix, respecting path
// boundaries: /finance/ matches /finance/rates but not /financial.
func inSection(rawURL, prefix string) bool {
	if prefix == "" {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, prefix)
}

// decompress transparently unwraps gzip-compressed sitemaps.
func decompress(body io.Reader) (io.Reader, error) {
	br := bufio.NewReader(body)
	magic, err := br.Peek(2)
	if err != nil || !bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		return br, nil
	}
	return gzip.NewReader(br)
}
