// Package entitycard retrieves, validates and caches the Entity Cards that
// businesses host at /.well-known/entity-card.json.
package entitycard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/config"
	"github.com/dock-ai/registry/pkg/models"
)

const maxRedirects = 3

// Fetcher retrieves and validates the Entity Card of a domain.
type Fetcher interface {
	// Fetch returns the validated card of domain. Transport failures and
	// non-200 responses yield *apperrors.CardUnavailableError; invalid
	// documents *apperrors.InvalidCardError or *apperrors.DomainMismatchError.
	Fetch(ctx context.Context, domain string) (*models.EntityCard, error)
}

// HTTPFetcher fetches Entity Cards over HTTP(S) with a bounded timeout and
// response size.
type HTTPFetcher struct {
	httpClient *http.Client
	validator  *Validator
	scheme     string
	userAgent  string
	maxBytes   int64
	logger     *zap.Logger

	// baseURL overrides scheme://domain, for tests against httptest servers.
	baseURL func(domain string) string
}

// NewHTTPFetcher creates a fetcher from cfg.
func NewHTTPFetcher(cfg *config.EntityCardConfig, validator *Validator, logger *zap.Logger) *HTTPFetcher {
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

	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		validator: validator,
		scheme:    scheme,
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		logger:    logger.Named("entitycard"),
	}
}

// CardURL returns the well-known Entity Card URL of domain.
func CardURL(scheme, domain string) string {
	return (&url.URL{Scheme: scheme, Host: domain, Path: models.EntityCardPath}).String()
}

func (f *HTTPFetcher) cardURL(domain string) string {
	if f.baseURL != nil {
		return f.baseURL(domain) + models.EntityCardPath
	}
	return CardURL(f.scheme, domain)
}

// Fetch retrieves and validates the Entity Card of domain.
func (f *HTTPFetcher) Fetch(ctx context.Context, domain string) (*models.EntityCard, error) {
	cardURL := f.cardURL(domain)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Debug("Entity card fetch failed",
			zap.String("url", cardURL),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, &apperrors.CardUnavailableError{URL: cardURL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Debug("Entity card not served",
			zap.String("url", cardURL),
			zap.Int("status", resp.StatusCode))
		return nil, &apperrors.CardUnavailableError{
			URL:   cardURL,
			Cause: fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &apperrors.CardUnavailableError{URL: cardURL, Cause: err}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &apperrors.InvalidCardError{Reason: fmt.Sprintf("document exceeds %d bytes", f.maxBytes)}
	}

	card, err := f.validator.Parse(body, domain)
	if err != nil {
		var mismatch *apperrors.DomainMismatchError
		if !errors.As(err, &mismatch) {
			f.logger.Debug("Entity card rejected", zap.String("url", cardURL), zap.Error(err))
		}
		return nil, err
	}

	f.logger.Debug("Fetched entity card",
		zap.String("domain", domain),
		zap.Int("entities", len(card.Entities)),
		zap.Duration("elapsed", time.Since(start)))
	return card, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
