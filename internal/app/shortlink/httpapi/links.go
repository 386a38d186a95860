package httpapi

import (
	"net/http"
	"strings"
)

type linkBuilder struct {
	baseURL string
}

// origin 优先使用配置的 BASE_URL；否则按反向代理头推断。
func (l linkBuilder) origin(r *http.Request) string {
	if l.baseURL != "" {
		return strings.TrimRight(l.baseURL, "/")
	}
	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	return scheme + "://" + r.Host
}

func (l linkBuilder) short(r *http.Request, short string) string {
	return l.origin(r) + "/" + short
}
