package focusflow

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"
)

// ExtractClientInfo describes the device behind an HTTP request, for
// display next to a room member.
func ExtractClientInfo(r *http.Request) ClientInfo {
	ua := r.UserAgent()
	parsed := useragent.New(ua)

	browser, version := parsed.Browser()
	if version != "" {
		browser += " " + version
	}

	osInfo := parsed.OSInfo()
	os := osInfo.Name
	if osInfo.Version != "" {
		os += " " + osInfo.Version
	}

	return ClientInfo{
		IP:         ClientIP(r),
		UserAgent:  ua,
		Browser:    browser,
		OS:         os,
		DeviceType: deviceType(parsed, ua),
	}
}

func deviceType(parsed *useragent.UserAgent, ua string) string {
	switch {
	case parsed.Bot():
		return "bot"
	case isTablet(ua):
		return "tablet"
	case parsed.Mobile():
		return "mobile"
	default:
		return "desktop"
	}
}

var forwardedHeaders = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// ClientIP returns the originating client IP, preferring proxy headers
// over RemoteAddr. For X-Forwarded-For the first (client) entry is used.
func ClientIP(r *http.Request) string {
	for _, h := range forwardedHeaders {
		v := r.Header.Get(h)
		if v == "" {
			continue
		}
		first, _, _ := strings.Cut(v, ",")
		if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return host
}

var tabletKeywords = []string{"ipad", "tablet", "playbook", "silk"}

func isTablet(ua string) bool {
	ua = strings.ToLower(ua)
	for _, keyword := range tabletKeywords {
		if strings.Contains(ua, keyword) {
			return true
		}
	}
	return false
}

// IsPrivateIP reports whether ip is loopback, private, or link-local,
// where a GeoIP lookup cannot succeed.
func IsPrivateIP(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}
