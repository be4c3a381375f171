package fragment

import (
	"hash/fnv"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"fragment-loader/common"
)

// Outbound timeouts so a single hung fragment request releases its slot.
const (
	ConnectTimeout  = 10 * time.Second
	ResponseTimeout = 25 * time.Second // time to first response header
	TotalTimeout    = 30 * time.Second // connect + headers + body
)

// SelectProxyFromPool picks one URL from a comma-separated pool by hashing
// hostname, so each replica sticks to one egress. Empty pool yields "".
func SelectProxyFromPool(pool, hostname string) string {
	var valid []string
	for _, p := range strings.Split(pool, ",") {
		if p = strings.TrimSpace(p); p != "" {
			valid = append(valid, p)
		}
	}
	if len(valid) == 0 {
		return ""
	}
	if hostname == "" {
		hostname = "0"
	}
	h := fnv.New32a()
	h.Write([]byte(hostname))
	return valid[h.Sum32()%uint32(len(valid))]
}

// BuildHTTPClient returns the client used for page and fragment fetches along
// with the proxy it routes through ("" for none). PROXY_URL wins over PROXY_POOL.
func BuildHTTPClient() (*http.Client, string) {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: ConnectTimeout}).DialContext,
		ResponseHeaderTimeout: ResponseTimeout,
	}
	proxyURL := common.GetEnv("PROXY_URL", "")
	if pool := common.GetEnv("PROXY_POOL", ""); proxyURL == "" && pool != "" {
		hostname := os.Getenv("HOSTNAME")
		proxyURL = SelectProxyFromPool(pool, hostname)
		if proxyURL != "" {
			log.Printf("fragment proxy from pool: hostname=%s proxy=%s", hostname, proxyURL)
		}
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			log.Printf("invalid PROXY_URL/PROXY_POOL: %v", err)
			proxyURL = ""
		} else {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Transport: transport, Timeout: TotalTimeout}, proxyURL
}
