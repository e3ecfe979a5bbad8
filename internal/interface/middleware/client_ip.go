package middleware

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

const ctxRealIPKey = "real_ip"

// RealIP stores the client address under "real_ip". Forwarding headers are
// honored only when the direct peer is an internal address (our own proxy).
//
// Order: CF-Connecting-IP, then the right-most external X-Forwarded-For hop,
// then the peer address.
func RealIP() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxRealIPKey, clientIP(c))
		c.Next()
	}
}

func clientIP(c *gin.Context) string {
	peer := peerIP(c)
	if !isInternal(net.ParseIP(peer)) {
		return peer
	}
	if cf := net.ParseIP(strings.TrimSpace(c.GetHeader("CF-Connecting-IP"))); cf != nil {
		return cf.String()
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				break
			}
			if !isInternal(ip) || i == 0 {
				return ip.String()
			}
		}
	}
	return peer
}

func peerIP(c *gin.Context) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(c.Request.RemoteAddr)
	}
	return host
}

func isInternal(ip net.IP) bool {
	return ip != nil && (ip.IsLoopback() || ip.IsPrivate())
}

// AllowPrivateIP lets internal callers (scrapers, sidecars) past a rate limit.
func AllowPrivateIP() AllowFunc {
	return func(c *gin.Context) bool {
		return isInternal(net.ParseIP(clientKey(c)))
	}
}
