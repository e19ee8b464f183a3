package ingest

import (
	"net"
	"net/http"
	"strings"
)

// proxyHeaders are checked in order before falling back to RemoteAddr.
var proxyHeaders = []string{"CF-Connecting-IP", "DO-Connecting-IP", "X-Forwarded-For", "X-Real-IP"}

// requestIP returns the normalized client address of r, "" when none parses.
func requestIP(r *http.Request) string {
	for _, h := range proxyHeaders {
		for candidate := range strings.SplitSeq(r.Header.Get(h), ",") {
			if ip := normalizeIP(candidate); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return normalizeIP(r.RemoteAddr)
	}
	return normalizeIP(host)
}

func normalizeIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}

// stampIP sets $ip on events that do not carry one.
func stampIP(events []map[string]any, ip string) {
	if ip == "" {
		return
	}
	for _, e := range events {
		props, ok := e["properties"].(map[string]any)
		if !ok {
			props = map[string]any{}
			e["properties"] = props
		}
		if _, set := props["$ip"]; !set {
			props["$ip"] = ip
		}
	}
}
