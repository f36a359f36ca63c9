package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/dock-ai/registry/pkg/config"
	"github.com/dock-ai/registry/pkg/models"
)

// Detector finds providers embedded in a business website.
type Detector interface {
	Detect(ctx context.Context, domain string) ([]models.PendingProvider, error)
}

// linkAttrs lists, per tag, the attributes that may reference a provider host.
var linkAttrs = map[string][]string{
	"script": {"src"},
	"iframe": {"src", "data-src"},
	"a":      {"href"},
	"link":   {"href"},
	"form":   {"action"},
	"img":    {"src"},
	"div":    {"data-src", "data-url"},
}

// HomepageDetector fetches the homepage of a domain and matches the hosts it
// references against a Catalog.
type HomepageDetector struct {
	httpClient *http.Client
	catalog    *Catalog
	scheme     string
	userAgent  string
	maxBytes   int64
	logger     *zap.Logger

	// baseURL overrides scheme://domain, for tests against httptest servers.
	baseURL func(domain string) string
}

// NewHomepageDetector creates a detector using the Entity Card fetch limits.
func NewHomepageDetector(catalog *Catalog, cfg *config.EntityCardConfig, logger *zap.Logger) *HomepageDetector {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxBytes := cfg.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return &HomepageDetector{
		httpClient: &http.Client{Timeout: timeout},
		catalog:    catalog,
		scheme:     scheme,
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		logger:     logger.Named("discovery"),
	}
}

func (d *HomepageDetector) homepageURL(domain string) string {
	if d.baseURL != nil {
		return d.baseURL(domain) + "/"
	}
	return (&url.URL{Scheme: d.scheme, Host: domain, Path: "/"}).String()
}

// Detect returns the catalog providers referenced by the homepage of domain,
// in order of first reference. A provider's own site is never reported.
func (d *HomepageDetector) Detect(ctx context.Context, domain string) ([]models.PendingProvider, error) {
	pageURL := d.homepageURL(domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch homepage of %s: %w", domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("homepage of %s returned status %d", domain, resp.StatusCode)
	}

	found := Scan(io.LimitReader(resp.Body, d.maxBytes), d.catalog, domain)
	d.logger.Debug("Scanned homepage for providers",
		zap.String("domain", domain),
		zap.Int("providers", len(found)))
	return found, nil
}

// Scan tokenizes an HTML document and returns the catalog providers it
// references. Hosts under self are ignored. Malformed markup is scanned as
// far as the tokenizer gets.
func Scan(r io.Reader, catalog *Catalog, self string) []models.PendingProvider {
	var out []models.PendingProvider
	seen := make(map[string]struct{})

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			attrs, ok := linkAttrs[string(name)]
			if !ok {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if !slices.Contains(attrs, string(key)) {
					continue
				}
				host := referencedHost(string(val))
				if host == "" || host == self || strings.HasSuffix(host, "."+self) {
					continue
				}
				entry, ok := catalog.Match(host)
				if !ok {
					continue
				}
				if _, dup := seen[entry.Provider]; dup {
					continue
				}
				seen[entry.Provider] = struct{}{}
				out = append(out, entry.Pending())
			}
		}
	}
}

// referencedHost returns the lowercase host of an absolute or
// protocol-relative URL, or "" for relative references.
func referencedHost(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "//") && !strings.HasPrefix(strings.ToLower(raw), "http") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

var _ Detector = (*HomepageDetector)(nil)
