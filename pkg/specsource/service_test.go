package specsource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specforge/specforge/pkg/models"
)

func TestConvertToRawURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "blob URL converts",
			input:    "https://github.com/acme/specs/blob/main/payments.md",
			expected: "https://raw.githubusercontent.com/acme/specs/refs/heads/main/payments.md",
		},
		{
			name:     "raw URL passes through",
			input:    "https://raw.githubusercontent.com/acme/specs/refs/heads/main/payments.md",
			expected: "https://raw.githubusercontent.com/acme/specs/refs/heads/main/payments.md",
		},
		{
			name:     "non-github host passes through",
			input:    "https://specs.internal.example.com/payments.md",
			expected: "https://specs.internal.example.com/payments.md",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConvertToRawURL(tt.input))
		})
	}
}

func TestParseRepoURL(t *testing.T) {
	parts, err := ParseRepoURL("https://github.com/acme/specs/tree/main/docs")
	require.NoError(t, err)
	assert.Equal(t, "acme", parts.Owner)
	assert.Equal(t, "specs", parts.Repo)
	assert.Equal(t, "main", parts.Ref)
	assert.Equal(t, "docs", parts.Path)

	_, err = ParseRepoURL("https://gitlab.com/acme/specs/tree/main")
	assert.Error(t, err)

	_, err = ParseRepoURL("https://github.com/acme/specs")
	assert.Error(t, err)
}

func TestValidateSourceURL(t *testing.T) {
	assert.NoError(t, ValidateSourceURL("https://github.com/a/b/blob/main/x.md", nil))
	assert.Error(t, ValidateSourceURL("ftp://github.com/a/b", nil))
	assert.NoError(t, ValidateSourceURL("https://github.com/a/b", []string{"github.com"}))
	assert.NoError(t, ValidateSourceURL("https://www.github.com/a/b", []string{"github.com"}))
	assert.Error(t, ValidateSourceURL("https://evil.example.com/a/b", []string{"github.com"}))
}

func TestResolveInlineContent(t *testing.T) {
	svc := NewService(Config{})
	content, err := svc.Resolve(context.Background(), &models.Node{
		ID:      "n1",
		Content: "the module handles card payments",
	})
	require.NoError(t, err)
	assert.Equal(t, "the module handles card payments", content)
}

func TestResolveFetchesAndCaches(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("# Payments Spec"))
	}))
	defer srv.Close()

	svc := NewService(Config{CacheTTL: time.Minute})
	node := &models.Node{ID: "n1", SpecSource: srv.URL + "/payments.md"}

	for n := 0; n < 2; n++ {
		content, err := svc.Resolve(context.Background(), node)
		require.NoError(t, err)
		assert.Equal(t, "# Payments Spec", content)
	}
	assert.Equal(t, int64(1), hits.Load(), "second resolve is served from cache")
}

func TestResolveRejectsDisallowedDomain(t *testing.T) {
	svc := NewService(Config{AllowedDomains: []string{"github.com"}})
	_, err := svc.Resolve(context.Background(), &models.Node{
		ID:         "n1",
		SpecSource: "https://evil.example.com/spec.md",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in allowed list")
}

func TestResolveSurfacesFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	svc := NewService(Config{})
	_, err := svc.Resolve(context.Background(), &models.Node{
		ID:         "n1",
		SpecSource: srv.URL + "/missing.md",
	})
	assert.Error(t, err)
}
