// Package discovery detects MCP providers a business already works with but
// that have not registered it, by scanning the business homepage for hosts
// listed in a provider catalog.
package discovery

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dock-ai/registry/pkg/models"
	"github.com/dock-ai/registry/pkg/validation"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogEntry describes one known provider and the hosts that reveal it.
type CatalogEntry struct {
	Provider       string   `yaml:"provider"`
	ProviderDomain string   `yaml:"provider_domain"`
	Hosts          []string `yaml:"hosts"`
	Capabilities   []string `yaml:"capabilities"`
}

type catalogFile struct {
	Providers []CatalogEntry `yaml:"providers"`
}

// Catalog maps hostnames to known providers.
type Catalog struct {
	entries []CatalogEntry
}

// DefaultCatalog returns the built-in provider catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("built-in provider catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a YAML catalog from path. An empty path yields the
// built-in catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid provider catalog: %w", err)
	}
	if len(f.Providers) == 0 {
		return nil, errors.New("provider catalog lists no providers")
	}

	seen := make(map[string]struct{}, len(f.Providers))
	for i := range f.Providers {
		e := &f.Providers[i]
		e.Provider = strings.TrimSpace(e.Provider)
		if e.Provider == "" {
			return nil, fmt.Errorf("providers[%d]: provider is required", i)
		}
		if _, dup := seen[e.Provider]; dup {
			return nil, fmt.Errorf("providers[%d]: duplicate provider %q", i, e.Provider)
		}
		seen[e.Provider] = struct{}{}

		if len(e.Hosts) == 0 && e.ProviderDomain != "" {
			e.Hosts = []string{e.ProviderDomain}
		}
		for j, h := range e.Hosts {
			host, err := validation.NormalizeDomain(h)
			if err != nil {
				return nil, fmt.Errorf("providers[%d].hosts[%d]: %w", i, j, err)
			}
			e.Hosts[j] = host
		}
		caps, err := validation.NormalizeCapabilities(e.Capabilities)
		if err != nil {
			return nil, fmt.Errorf("providers[%d]: %w", i, err)
		}
		e.Capabilities = caps
	}
	return &Catalog{entries: f.Providers}, nil
}

// Len returns the number of providers in the catalog.
func (c *Catalog) Len() int { return len(c.entries) }

// Match returns the provider whose hosts cover host, either exactly or as a
// parent domain.
func (c *Catalog) Match(host string) (*CatalogEntry, bool) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for i := range c.entries {
		for _, h := range c.entries[i].Hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return &c.entries[i], true
			}
		}
	}
	return nil, false
}

// Pending converts a catalog entry into the pending-provider hint shape.
func (e *CatalogEntry) Pending() models.PendingProvider {
	caps := slices.Clone(e.Capabilities)
	if caps == nil {
		caps = []string{}
	}
	return models.PendingProvider{
		ProviderDomain: e.ProviderDomain,
		Provider:       e.Provider,
		Capabilities:   caps,
	}
}
