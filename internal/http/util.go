package httpx

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/kaamsathi/kaamsathi-api/internal/domain/model"
	apperrors "github.com/kaamsathi/kaamsathi-api/internal/errors"
)

// parseIntQuery returns the integer value of a query param or a default.
// It is tolerant of missing/invalid values.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// parsePage reads page and limit; the services clamp them.
func parsePage(r *http.Request) model.Page {
	return model.Page{
		Page:  parseIntQuery(r, "page", 1),
		Limit: parseIntQuery(r, "limit", model.DefaultPageLimit),
	}.Normalize()
}

// parseBoolQuery accepts true/1/yes in any case.
func parseBoolQuery(r *http.Request, key string) bool {
	switch strings.ToLower(r.URL.Query().Get(key)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// optionalQuery returns a pointer to a trimmed non-empty query value.
func optionalQuery(r *http.Request, key string) *string {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return nil
	}
	return &v
}

// optionalEnum converts an optional query value to a string-backed enum.
func optionalEnum[T ~string](r *http.Request, key string) *T {
	v := optionalQuery(r, key)
	if v == nil {
		return nil
	}
	e := T(*v)
	return &e
}

// optionalInt64Query parses a non-negative integer query value.
func optionalInt64Query(r *http.Request, key string) (*int64, error) {
	v := optionalQuery(r, key)
	if v == nil {
		return nil, nil
	}
	n, err := strconv.ParseInt(*v, 10, 64)
	if err != nil || n < 0 {
		return nil, apperrors.ValidationField(key, key+" must be a non-negative integer")
	}
	return &n, nil
}

// trustedProxies are the peers whose X-Forwarded-For header is believed.
type trustedProxies []netip.Prefix

func (p trustedProxies) trusts(addr netip.Addr) bool {
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientAddr identifies an anonymous viewer for view deduplication.
// X-Forwarded-For is read right to left, and only while the peer and each
// hop so far are trusted proxies.
func (p trustedProxies) clientAddr(r *http.Request) string {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	peer, err := netip.ParseAddr(host)
	if err != nil || !p.trusts(peer.Unmap()) {
		return host
	}
	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		addr, err := netip.ParseAddr(hop)
		if err != nil {
			return host
		}
		if !p.trusts(addr.Unmap()) {
			return addr.Unmap().String()
		}
		host = addr.Unmap().String()
	}
	return host
}
