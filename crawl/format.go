package crawl

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// DisplayURL renders rawURL for progress output within width runes. The
// scheme is dropped; when that is still too wide the middle of the path is
// elided so the host and the article's file name stay visible.
func DisplayURL(rawURL string, width int) string {
	if width <= 0 {
		return ""
	}
	s := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		s = u.Host + u.EscapedPath()
		if u.RawQuery != "" {
			s += "?" + u.RawQuery
		}
	}

	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if host, path, ok := strings.Cut(s, "/"); ok {
		name := path[strings.LastIndex(path, "/")+1:]
		if short := host + "/…/" + name; utf8.RuneCountInString(short) <= width {
			return short
		}
	}
	return "…" + string(r[len(r)-width+1:])
}
