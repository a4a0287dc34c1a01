package harvest

import (
	"net"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/idna"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// CanonicalURL normalizes a URL so that trivially different spellings of the
// same address compare equal. Scheme and host are lower-cased, internationalized
// hosts are converted to ASCII, default ports and fragments are dropped, and the
// path is cleaned of dot segments, duplicate slashes and a trailing slash.
// Percent-encoded slashes stay encoded, so /a%2Fb and /a/b remain distinct.
// The query string is kept as-is.
func CanonicalURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", Errorf(EINVALID, "invalid URL %q", rawURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", Errorf(EINVALID, "URL %q must be absolute", rawURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = canonicalHost(u.Scheme, u.Hostname(), u.Port())
	u.Fragment = ""
	u.RawFragment = ""

	escaped := u.EscapedPath()
	if escaped == "" {
		escaped = "/"
	}
	escaped = path.Clean(escaped)
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return "", Errorf(EINVALID, "invalid URL path %q", rawURL)
	}
	u.Path = decoded
	u.RawPath = escaped

	return u.String(), nil
}

func canonicalHost(scheme, host, port string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) == nil {
		if ascii, err := idna.Lookup.ToASCII(host); err == nil {
			host = ascii
		}
	}
	if port == defaultPorts[scheme] {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(host, port)
	}
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}
