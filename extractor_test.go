package focusflow

import (
	"net/http/httptest"
	"testing"
)

func TestExtractClientInfo(t *testing.T) {
	tests := []struct {
		name       string
		ua         string
		deviceType string
	}{
		{
			name:       "desktop chrome",
			ua:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			deviceType: "desktop",
		},
		{
			name:       "iphone safari",
			ua:         "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			deviceType: "mobile",
		},
		{
			name:       "ipad",
			ua:         "Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			deviceType: "tablet",
		},
		{
			name:       "googlebot",
			ua:         "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			deviceType: "bot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("User-Agent", tt.ua)

			info := ExtractClientInfo(req)
			if info.DeviceType != tt.deviceType {
				t.Errorf("Expected device type %s, got %s", tt.deviceType, info.DeviceType)
			}
			if info.UserAgent != tt.ua {
				t.Errorf("Expected user agent to be kept, got %s", info.UserAgent)
			}
			if tt.deviceType != "bot" && info.Browser == "" {
				t.Error("Expected a browser name")
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "203.0.113.7:4321", "203.0.113.7"},
		{"remote addr without port", nil, "203.0.113.7", "203.0.113.7"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, "10.0.0.2:80", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.2:80", "198.51.100.2"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "198.51.100.3"}, "10.0.0.2:80", "198.51.100.3"},
		{"garbage header", map[string]string{"X-Forwarded-For": "not-an-ip"}, "10.0.0.2:80", "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := map[string]bool{
		"127.0.0.1":   true,
		"10.1.2.3":    true,
		"192.168.1.1": true,
		"172.16.0.1":  true,
		"169.254.1.1": true,
		"::1":         true,
		"fe80::1":     true,
		"8.8.8.8":     false,
		"2001:db8::1": false,
		"garbage":     false,
	}
	for ip, want := range tests {
		if got := IsPrivateIP(ip); got != want {
			t.Errorf("IsPrivateIP(%s) = %v, want %v", ip, got, want)
		}
	}
}

func TestExtractRequestInfoWithoutGeoIP(t *testing.T) {
	s, _, _ := newTestService(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "8.8.8.8:1234"

	client, loc := s.ExtractRequestInfo(req)
	if client.IP != "8.8.8.8" || loc.IP != "8.8.8.8" {
		t.Errorf("Expected IP 8.8.8.8, got client %s, location %s", client.IP, loc.IP)
	}
	if loc.City != "" || loc.Country != "" {
		t.Errorf("Expected no location without GeoIP, got %+v", loc)
	}
}

func TestNewGeoIPReaderRequiresPath(t *testing.T) {
	if _, err := NewGeoIPReader(""); err != ErrGeoIPDatabaseNotConfigured {
		t.Errorf("Expected ErrGeoIPDatabaseNotConfigured, got %v", err)
	}

	var r *GeoIPReader
	loc := r.LookupWithFallback("8.8.8.8")
	if loc.IP != "8.8.8.8" {
		t.Errorf("Expected fallback location with IP, got %+v", loc)
	}
}
