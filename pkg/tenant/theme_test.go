package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveThemePriority(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fallback", ResolveTheme("", nil, "fallback").Name)
	assert.Equal(t, "config-default", ResolveTheme("config-default", nil, "fallback").Name)
	assert.Equal(t, "tenant-theme", ResolveTheme("config-default", map[string]any{"theme": "tenant-theme"}, "fallback").Name)
}

func TestThemeHeadersOmitsEmptyFields(t *testing.T) {
	t.Parallel()
	headers := ThemeHeaders(Theme{Name: "dark"})
	assert.Equal(t, map[string]string{"X-Theme-Name": "dark"}, headers)
}

func TestThemeHeadersIncludesAllFields(t *testing.T) {
	t.Parallel()
	headers := ThemeHeaders(Theme{Name: "dark", CustomCSS: "body{}", LogoURL: "l.png", FaviconURL: "f.ico"})
	assert.Len(t, headers, 4)
}
