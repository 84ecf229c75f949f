package utils

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP 返回请求方 IP。配合 chi 的 RealIP 中间件使用时 RemoteAddr 已是真实地址。
func ClientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
