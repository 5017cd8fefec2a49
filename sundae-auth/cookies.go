package sundaeauth

import (
	"net/http"
	"strings"
)

// ParseCookies parses a raw Cookie header. Pairs are separated by "; " and split on
// the first "=", so values containing "=" (base64 padding, JWT segments) survive
// intact. An empty header yields an empty map.
func ParseCookies(header string) map[string]string {
	cookies := map[string]string{}
	if header == "" {
		return cookies
	}
	for _, pair := range strings.Split(header, "; ") {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies[name] = value
	}
	return cookies
}

// Header returns the value of a header from a single-valued header map, matching
// the name case-insensitively the way API Gateway and net/http differ on casing.
func Header(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HeadersFromHTTP flattens an http.Header. Repeated Cookie headers are joined with
// "; " so they parse as one cookie header.
func HeadersFromHTTP(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for k, vs := range h {
		sep := ", "
		if strings.EqualFold(k, "Cookie") {
			sep = "; "
		}
		headers[k] = strings.Join(vs, sep)
	}
	return headers
}
