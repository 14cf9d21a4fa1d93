// Package urlnorm normalizes crawled URLs into a canonical form and
// derives the deterministic page_id used to key coverage history and
// the crawl frontier's dedup set.
//
// Query parameters are sorted into the canonical form rather than
// discarded: two URLs differing only in query-param order are the same
// page, while URLs differing in query values are not.
package urlnorm

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Normalize resolves rawURL against base (if rawURL is relative or
// protocol-relative), strips the fragment, sorts query parameters by
// key, and trims a single trailing slash from the path. The result is
// the canonical form fed to PageID and used for frontier dedup.
func Normalize(rawURL, base string) (string, error) {
	if rawURL == "" {
		return "", fmt.Errorf("urlnorm: empty URL")
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("urlnorm: invalid base URL %q: %w", base, err)
	}

	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("urlnorm: invalid URL %q: %w", rawURL, err)
	}

	resolved := baseURL.ResolveReference(ref)
	resolved.Fragment = ""
	resolved.Host = strings.ToLower(resolved.Host)

	if resolved.RawQuery != "" {
		resolved.RawQuery = sortQuery(resolved.RawQuery)
	}

	if resolved.Path != "/" {
		resolved.Path = strings.TrimSuffix(resolved.Path, "/")
	}

	return resolved.String(), nil
}

// sortQuery returns rawQuery with its key=value pairs sorted
// lexicographically by key, then by value, preserving multi-value keys.
func sortQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for j, v := range vs {
			if i > 0 || j > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// PageID derives the deterministic page_id from a normalized URL: the
// first 12 hex characters of the MD5 digest of the canonical form.
func PageID(normalizedURL string) string {
	sum := md5.Sum([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])[:12]
}

// SameHost reports whether candidate shares a's host, ignoring a
// leading "www." on either side (common alias, not a distinct site).
func SameHost(a, candidate *url.URL) bool {
	return strings.TrimPrefix(a.Hostname(), "www.") == strings.TrimPrefix(candidate.Hostname(), "www.")
}
