package tenant

// Theme is the resolved set of branding fields a response can project into
// headers.
type Theme struct {
	Name       string
	CustomCSS  string
	LogoURL    string
	FaviconURL string
}

// ResolveTheme is a pure function picking a theme from
// (tenantBranding, processDefault, fallback), in that priority order.
// branding may be nil.
func ResolveTheme(configDefaultTheme string, branding map[string]any, fallbackTheme string) Theme {
	t := Theme{Name: fallbackTheme}
	if configDefaultTheme != "" {
		t.Name = configDefaultTheme
	}
	if branding == nil {
		return t
	}
	if name, ok := branding["theme"].(string); ok && name != "" {
		t.Name = name
	}
	if css, ok := branding["customCSS"].(string); ok {
		t.CustomCSS = css
	}
	if logo, ok := branding["logoUrl"].(string); ok {
		t.LogoURL = logo
	}
	if favicon, ok := branding["faviconUrl"].(string); ok {
		t.FaviconURL = favicon
	}
	return t
}

// ThemeHeaders projects a Theme into the X-prefixed response header scheme.
// Only non-empty fields are included.
func ThemeHeaders(t Theme) map[string]string {
	headers := map[string]string{}
	if t.Name != "" {
		headers["X-Theme-Name"] = t.Name
	}
	if t.CustomCSS != "" {
		headers["X-Theme-Custom-CSS"] = t.CustomCSS
	}
	if t.LogoURL != "" {
		headers["X-Theme-Logo-URL"] = t.LogoURL
	}
	if t.FaviconURL != "" {
		headers["X-Theme-Favicon-URL"] = t.FaviconURL
	}
	return headers
}
