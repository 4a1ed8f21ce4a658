package httpx

import (
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrustedProxies_ClientAddr(t *testing.T) {
	proxies := trustedProxies{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name    string
		proxies trustedProxies
		remote  string
		xff     string
		want    string
	}{
		{name: "no proxies ignores header", remote: "203.0.113.7:5000", xff: "198.51.100.1", want: "203.0.113.7"},
		{name: "untrusted peer ignores header", proxies: proxies, remote: "203.0.113.7:5000", xff: "198.51.100.1", want: "203.0.113.7"},
		{name: "trusted peer reports client", proxies: proxies, remote: "10.1.2.3:5000", xff: "198.51.100.1", want: "198.51.100.1"},
		{
			name: "spoofed leftmost hop is skipped", proxies: proxies, remote: "10.1.2.3:5000",
			xff: "1.1.1.1, 198.51.100.1, 10.9.9.9", want: "198.51.100.1",
		},
		{name: "garbage hop falls back to peer", proxies: proxies, remote: "10.1.2.3:5000", xff: "not-an-ip", want: "10.1.2.3"},
		{name: "trusted peer without header", proxies: proxies, remote: "10.1.2.3:5000", want: "10.1.2.3"},
		{name: "remote without port", remote: "203.0.113.7", want: "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/jobs/x", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, tt.proxies.clientAddr(r))
		})
	}
}
