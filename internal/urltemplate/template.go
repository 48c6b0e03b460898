// Package urltemplate rewrites {placeholder} tokens in destination URLs.
package urltemplate

import (
	"net/url"
	"regexp"
	"strings"
)

var tokenRegex = regexp.MustCompile(`\{\s*([A-Za-z0-9_.\-]+)\s*\}`)

// Render substitutes every token in tmpl from sources and normalizes the query string.
// The lookup table is built once per call; unknown tokens become empty strings.
func Render(tmpl string, sources Sources) string {
	return CleanQuery(Substitute(tmpl, sources.Merge()))
}

// Substitute replaces each {key} with the escaped value for key, or with nothing
// when values has no entry. The template is scanned once, so substituted values
// are never rescanned for tokens.
func Substitute(tmpl string, values map[string]string) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	return tokenRegex.ReplaceAllStringFunc(tmpl, func(token string) string {
		key := tokenRegex.FindStringSubmatch(token)[1]
		v, ok := values[key]
		if !ok {
			return ""
		}
		return Escape(v)
	})
}

// Escape percent-encodes v for use inside a URL component. Spaces become %20
// and only RFC 3986 unreserved characters are left as-is.
func Escape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

// CleanQuery normalizes the query string of u: empty segments from repeated
// '&' are dropped, parameters with an empty value ("key=") are removed, and a
// '?' left with nothing after it is stripped. The fragment is preserved.
// CleanQuery is idempotent.
func CleanQuery(u string) string {
	base, fragment, hasFragment := strings.Cut(u, "#")
	path, query, hasQuery := strings.Cut(base, "?")
	if !hasQuery {
		return u
	}

	parts := strings.Split(query, "&")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" || isEmptyParam(p) {
			continue
		}
		kept = append(kept, p)
	}

	var b strings.Builder
	b.Grow(len(u))
	b.WriteString(path)
	if len(kept) > 0 {
		b.WriteByte('?')
		b.WriteString(strings.Join(kept, "&"))
	}
	if hasFragment {
		b.WriteByte('#')
		b.WriteString(fragment)
	}
	return b.String()
}

func isEmptyParam(p string) bool {
	i := strings.IndexByte(p, '=')
	return i >= 0 && i == len(p)-1
}
