package docparse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

const maxLinkSize = 20 << 20 // 20 MB

// LinkFetcher downloads a URL and extracts its text. Loopback and cloud
// metadata hosts are refused.
type LinkFetcher struct {
	parser    *Parser
	client    *http.Client
	checkHost func(host string) error
	logger    *slog.Logger
}

// LinkOption configures a LinkFetcher.
type LinkOption func(*LinkFetcher)

// WithHostCheck replaces the host guard applied to the URL and every redirect.
func WithHostCheck(fn func(host string) error) LinkOption {
	return func(f *LinkFetcher) { f.checkHost = fn }
}

// WithTimeout sets the overall HTTP timeout.
func WithTimeout(d time.Duration) LinkOption {
	return func(f *LinkFetcher) { f.client.Timeout = d }
}

// NewLinkFetcher creates a LinkFetcher that extracts text with p.
func NewLinkFetcher(p *Parser, opts ...LinkOption) *LinkFetcher {
	f := &LinkFetcher{
		parser:    p,
		checkHost: checkBlockedHost,
		logger:    p.logger,
	}
	f.client = &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects (max 5)")
			}
			return f.checkHost(req.URL.Hostname())
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads rawURL and returns its text content.
func (f *LinkFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme: %s (only http/https)", parsed.Scheme)
	}
	if err := f.checkHost(parsed.Hostname()); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLinkSize+1))
	if err != nil {
		return "", fmt.Errorf("read body failed: %w", err)
	}
	if len(data) > maxLinkSize {
		return "", fmt.Errorf("document too large: exceeds %d bytes", maxLinkSize)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	format := formatOfContentType(ct)
	if format == formatUnknown {
		format = formatOf(pathExt(parsed.Path))
	}
	text, err := f.parser.parseBytes(ctx, format, data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", parsed.Host, err)
	}
	f.logger.Debug("fetched link", slog.String("host", parsed.Host), slog.Int("bytes", len(data)))
	return text, nil
}

func pathExt(p string) string {
	for i := len(p) - 1; i >= 0 && p[i] != '/'; i-- {
		if p[i] == '.' {
			return p[i:]
		}
	}
	return ""
}

// checkBlockedHost rejects hosts that resolve to any non-public address.
func checkBlockedHost(host string) error {
	if host == "metadata.google.internal" {
		return fmt.Errorf("blocked host: %s", host)
	}

	ips := []net.IP{net.ParseIP(host)}
	if ips[0] == nil {
		var err error
		ips, err = net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil //nolint:nilerr // let http.Client handle DNS failures
		}
	}
	for _, ip := range ips {
		if blockedIP(ip) {
			return fmt.Errorf("blocked host: %s resolves to non-public address %s", host, ip)
		}
	}
	return nil
}

// blockedIP covers loopback, private (RFC 1918, IPv6 ULA), link-local
// (including cloud metadata), multicast and unspecified addresses.
func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsUnspecified()
}
