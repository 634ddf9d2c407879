package proctor

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
)

var driveFilePath = regexp.MustCompile(`/file/d/([A-Za-z0-9_-]+)`)

var driveHosts = map[string]bool{
	"drive.google.com": true,
	"docs.google.com":  true,
}

// AudioResolver turns a raw audio link into an ordered list of playable candidates.
type AudioResolver struct {
	// ProxyBase is a same-origin relay endpoint; empty disables the proxy candidate.
	ProxyBase string
}

// NewAudioResolver creates a resolver that front-loads proxyBase when set.
func NewAudioResolver(proxyBase string) *AudioResolver {
	return &AudioResolver{ProxyBase: proxyBase}
}

// Resolve returns the candidates for raw, deduplicated and in a fixed order.
// Share-host "view" links serve an HTML viewer, so they are replaced by their
// fallbacks instead of being tried first.
func (r *AudioResolver) Resolve(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil || !driveHosts[strings.ToLower(u.Hostname())] {
		return []string{raw}
	}

	var candidates []string
	if !isViewLink(u) {
		candidates = append(candidates, raw)
	}
	if id, ok := driveFileID(u); ok {
		candidates = append(candidates, r.fallbacks(id)...)
	}
	return dedup(candidates)
}

func (r *AudioResolver) fallbacks(id string) []string {
	escaped := url.QueryEscape(id)
	direct := []string{
		"https://drive.google.com/uc?export=download&id=" + escaped,
		"https://drive.usercontent.google.com/download?id=" + escaped + "&export=download",
		"https://docs.google.com/uc?export=open&id=" + escaped,
	}
	if r.ProxyBase == "" {
		return direct
	}

	sep := "?"
	if strings.Contains(r.ProxyBase, "?") {
		sep = "&"
	}
	proxied := r.ProxyBase + sep + "src=" + url.QueryEscape(direct[0])
	return append([]string{proxied}, direct...)
}

// DriveFileID extracts the file identifier from a share-host link.
func DriveFileID(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !driveHosts[strings.ToLower(u.Hostname())] {
		return "", false
	}
	return driveFileID(u)
}

func driveFileID(u *url.URL) (string, bool) {
	if id := u.Query().Get("id"); id != "" {
		return id, true
	}
	if m := driveFilePath.FindStringSubmatch(u.Path); m != nil {
		return m[1], true
	}
	return "", false
}

func isViewLink(u *url.URL) bool {
	path := strings.TrimSuffix(u.Path, "/")
	return strings.HasSuffix(path, "/view") ||
		strings.HasSuffix(path, "/preview") ||
		path == "/open"
}

// dedup keeps the first of each group of candidates naming the same resource.
func dedup(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := canonicalURL(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// canonicalURL lowercases scheme and host and sorts the query parameters.
func canonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = u.Query().Encode()
	u.Fragment = ""
	return u.String()
}

// AudioPlayback tracks which candidate a player is currently trying.
type AudioPlayback struct {
	resolver *AudioResolver

	mu         sync.Mutex
	raw        string
	candidates []string
	cursor     int
}

// NewAudioPlayback creates playback state bound to a resolver.
func NewAudioPlayback(resolver *AudioResolver) *AudioPlayback {
	return &AudioPlayback{resolver: resolver}
}

// SetSource switches to a new raw URL. The cursor resets only when the URL changes.
func (p *AudioPlayback) SetSource(raw string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if raw == p.raw && p.candidates != nil {
		return
	}
	p.raw = raw
	p.candidates = p.resolver.Resolve(raw)
	p.cursor = 0
}

// Current returns the candidate to play. ok is false once the list is exhausted,
// in which case the player renders nothing.
func (p *AudioPlayback) Current() (src string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor >= len(p.candidates) {
		return "", false
	}
	return p.candidates[p.cursor], true
}

// Fail records a player error on the current candidate and moves to the next one.
func (p *AudioPlayback) Fail() (next string, ok bool) {
	p.mu.Lock()
	if p.cursor < len(p.candidates) {
		p.cursor++
	}
	p.mu.Unlock()
	return p.Current()
}

// Cursor returns the index of the current candidate.
func (p *AudioPlayback) Cursor() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}
