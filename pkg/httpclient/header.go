package httpclient

import (
	"net/http"
	"strings"
)

// hopByHopHeaders は中継時に転送してはならないヘッダー（RFC 9110 7.6.1）。
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// CopyEndToEndHeaders はsrcのヘッダーのうちhop-by-hopでないものをdstに追加する。
// Connectionヘッダーに列挙されたヘッダーも除外する。
func CopyEndToEndHeaders(dst, src http.Header) {
	skip := make(map[string]struct{}, len(hopByHopHeaders))
	for _, h := range hopByHopHeaders {
		skip[h] = struct{}{}
	}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				skip[http.CanonicalHeaderKey(name)] = struct{}{}
			}
		}
	}

	for k, vv := range src {
		if _, ok := skip[http.CanonicalHeaderKey(k)]; ok {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
