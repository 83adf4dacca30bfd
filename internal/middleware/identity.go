package middleware

// identity.go resolves the client identity used as the rate-limit key.
// The X-Forwarded-For header is only honored when the immediate peer is
// one of the explicitly configured trusted proxies; otherwise a client
// could spoof the header and sidestep its own quota.

import (
	"net"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// NewIPExtractor builds the Echo IP extractor from the trusted proxy
// CIDR list. With no trusted proxies the peer address is taken verbatim
// and forwarding headers are ignored. Echo's XFF extractor trusts
// private ranges by default; that is disabled so only the operator's
// list counts.
func NewIPExtractor(trustedCIDRs []string) echo.IPExtractor {
	if len(trustedCIDRs) == 0 {
		return echo.ExtractIPDirect()
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedCIDRs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			logrus.WithError(err).Warnf("ignoring invalid trusted proxy CIDR %q", cidr)
			continue
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}
