// Package assetref normalizes the ways a stored media object can be referenced
// (bare identifier, upstream public URL, internal proxy URL) into one canonical
// identifier, and builds the URLs the rest of the application uses.
//
// Only proxy URLs should ever be persisted or rendered in markup: they are
// served by the retrieval gateway, which applies retries, fallback content and
// cache headers. Direct URLs embed the read-only upstream credential and are
// meant for server-side consumers.
package assetref

import (
	"net/url"
	"regexp"
	"strings"
)

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

var (
	bareIDRe   = regexp.MustCompile(`^` + uuidPattern + `$`)
	filesIDRe  = regexp.MustCompile(`/files/(` + uuidPattern + `)(?:[/?#]|$)`)
	// Greedy so a UUID-shaped credential segment is skipped in favour of the last identifier.
	publicIDRe = regexp.MustCompile(`/public/(?:[^/?#]+/)*(` + uuidPattern + `)(?:[/?#]|$)`)
)

// IsIdentifier reports whether s is a bare UUID-formatted file identifier.
func IsIdentifier(s string) bool {
	return bareIDRe.MatchString(s)
}

// ExtractIdentifier returns the identifier when input is a bare UUID or
// contains a /files/{uuid} path segment.
func ExtractIdentifier(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}
	if bareIDRe.MatchString(input) {
		return input, true
	}
	if m := filesIDRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}
	return "", false
}

// Canonicalize is the broader form of ExtractIdentifier. It also recognizes
// the upstream's /public/{credential...}/{uuid} shape, dropping whatever sits
// between "public" and the identifier, and finally accepts an input whose
// last path segment is a UUID.
func Canonicalize(input string) (string, bool) {
	if id, ok := ExtractIdentifier(input); ok {
		return id, true
	}
	input = strings.TrimSpace(input)
	if m := publicIDRe.FindStringSubmatch(input); m != nil {
		return m[1], true
	}

	rest := input
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimRight(rest, "/")
	if i := strings.LastIndex(rest, "/"); i >= 0 {
		rest = rest[i+1:]
	}
	if bareIDRe.MatchString(rest) {
		return rest, true
	}
	return "", false
}

// Resolver builds proxy and direct URLs for file identifiers.
type Resolver struct {
	proxyBase    string
	upstreamBase string
	readKey      string
}

// NewResolver returns a Resolver. proxyBase is the application path served by
// the retrieval gateway (e.g. "/files"); upstreamBase and readKey address the
// upstream store's anonymous read endpoint.
func NewResolver(proxyBase, upstreamBase, readKey string) *Resolver {
	proxyBase = "/" + strings.Trim(proxyBase, "/")
	if proxyBase == "/" {
		proxyBase = "/files"
	}
	return &Resolver{
		proxyBase:    proxyBase,
		upstreamBase: strings.TrimRight(upstreamBase, "/"),
		readKey:      readKey,
	}
}

// ProxyURL returns the application-internal URL for id.
func (r *Resolver) ProxyURL(id string) string {
	return r.proxyBase + "/" + url.PathEscape(id)
}

// DirectURL returns the upstream URL for id with the read credential embedded.
// Anyone holding this URL holds the credential.
func (r *Resolver) DirectURL(id string) string {
	return r.upstreamBase + "/public/" + url.PathEscape(r.readKey) + "/" + url.PathEscape(id)
}

// Normalize rewrites any recognized reference into its proxy URL.
func (r *Resolver) Normalize(input string) (string, bool) {
	id, ok := Canonicalize(input)
	if !ok {
		return "", false
	}
	return r.ProxyURL(id), true
}

// ProxyBase returns the path prefix under which proxy URLs are served.
func (r *Resolver) ProxyBase() string {
	return r.proxyBase
}
