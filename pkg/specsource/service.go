package specsource

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/specforge/specforge/pkg/models"
)

// Config tunes source document resolution.
type Config struct {
	// RepoURL is the spec repository listed by ListDocuments. Empty disables
	// listing.
	RepoURL string

	// AllowedDomains restricts where source documents may be fetched from.
	// Empty allows any http(s) host.
	AllowedDomains []string

	// CacheTTL bounds how long fetched documents are reused. Defaults to
	// one minute.
	CacheTTL time.Duration

	// GitHubToken authenticates fetches from private repositories. Empty
	// means public repos only.
	GitHubToken string
}

// Service resolves node source documents with caching.
type Service struct {
	github *GitHubClient
	cache  *gocache.Cache
	cfg    Config
}

// NewService creates a Service.
func NewService(cfg Config) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	return &Service{
		github: NewGitHubClient(cfg.GitHubToken),
		cache:  gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		cfg:    cfg,
	}
}

// Resolve returns the source document for a node. A node without a
// spec_source URL resolves to its own content; URL-based sources are fetched
// with caching. Fetch failures surface as errors, the caller decides the
// fallback policy.
func (s *Service) Resolve(ctx context.Context, node *models.Node) (string, error) {
	if node == nil {
		return "", fmt.Errorf("node is required")
	}
	source := strings.TrimSpace(node.SpecSource)
	if source == "" {
		return node.Content, nil
	}

	if err := ValidateSourceURL(source, s.cfg.AllowedDomains); err != nil {
		return "", fmt.Errorf("spec source for node %s: %w", node.ID, err)
	}

	key := ConvertToRawURL(source)
	if cached, ok := s.cache.Get(key); ok {
		return cached.(string), nil
	}

	content, err := s.github.DownloadContent(ctx, source)
	if err != nil {
		return "", fmt.Errorf("fetch spec source for node %s: %w", node.ID, err)
	}
	s.cache.SetDefault(key, content)
	return content, nil
}

// ListDocuments returns the markdown document URLs of the configured spec
// repository. Returns an empty slice when no repository is configured.
func (s *Service) ListDocuments(ctx context.Context) ([]string, error) {
	if s.cfg.RepoURL == "" {
		return []string{}, nil
	}

	if cached, ok := s.cache.Get(s.cfg.RepoURL); ok {
		return cached.([]string), nil
	}

	files, err := s.github.ListMarkdownFiles(ctx, s.cfg.RepoURL)
	if err != nil {
		return nil, fmt.Errorf("list spec documents from %s: %w", s.cfg.RepoURL, err)
	}
	if files == nil {
		files = []string{}
	}
	s.cache.SetDefault(s.cfg.RepoURL, files)
	return files, nil
}

// OverrideHTTPClientForTest replaces the internal GitHub client's HTTP
// client. For testing only.
func (s *Service) OverrideHTTPClientForTest(httpClient *http.Client) {
	s.github.httpClient = httpClient
}
