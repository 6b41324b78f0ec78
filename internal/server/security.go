package server

import (
	"net/http"
	"strings"
)

// CSPConfig holds Content-Security-Policy configuration.
type CSPConfig struct {
	DefaultSrc     []string
	ScriptSrc      []string
	StyleSrc       []string
	ImgSrc         []string
	ConnectSrc     []string
	FrameAncestors []string
	BaseURI        []string
	FormAction     []string
	// UpgradeInsecureRequests forces HTTPS
	UpgradeInsecureRequests bool
}

// APICSPConfig returns a strict CSP for the REST API, which serves no
// documents that load resources.
func APICSPConfig() CSPConfig {
	return CSPConfig{
		DefaultSrc:     []string{"'none'"},
		FrameAncestors: []string{"'none'"},
		BaseURI:        []string{"'none'"},
		FormAction:     []string{"'none'"},
	}
}

// BuildCSPHeader builds a Content-Security-Policy header value from config.
func (cfg CSPConfig) BuildCSPHeader() string {
	var directives []string
	add := func(name string, values []string) {
		if len(values) > 0 {
			directives = append(directives, name+" "+strings.Join(values, " "))
		}
	}

	add("default-src", cfg.DefaultSrc)
	add("script-src", cfg.ScriptSrc)
	add("style-src", cfg.StyleSrc)
	add("img-src", cfg.ImgSrc)
	add("connect-src", cfg.ConnectSrc)
	add("frame-ancestors", cfg.FrameAncestors)
	add("base-uri", cfg.BaseURI)
	add("form-action", cfg.FormAction)
	if cfg.UpgradeInsecureRequests {
		directives = append(directives, "upgrade-insecure-requests")
	}

	return strings.Join(directives, "; ")
}

// SecurityHeadersMiddleware adds the standard security headers and the CSP
// built from cfg to every response.
func SecurityHeadersMiddleware(cfg CSPConfig, next http.Handler) http.Handler {
	cspHeader := cfg.BuildCSPHeader()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if cspHeader != "" {
			w.Header().Set("Content-Security-Policy", cspHeader)
		}
		next.ServeHTTP(w, r)
	})
}

// AllowedScoreContentTypes are the request bodies accepted for uploaded scores.
var AllowedScoreContentTypes = []string{
	"application/vnd.recordare.musicxml+xml",
	"application/xml",
	"text/xml",
	"application/octet-stream",
}

// ValidateContentType checks if a Content-Type header is in the allowed list.
// An empty header is accepted; the body is sniffed later.
func ValidateContentType(contentType string, allowed []string) bool {
	if contentType == "" {
		return true
	}
	mediaType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	for _, a := range allowed {
		if strings.EqualFold(mediaType, a) {
			return true
		}
	}
	return false
}

// SanitizeUserInput trims whitespace and removes control characters except
// newline and tab.
func SanitizeUserInput(input string) string {
	input = strings.TrimSpace(input)

	var result strings.Builder
	for _, r := range input {
		if r >= 0x20 && r != 0x7f || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// LimitStringLength truncates a string to a maximum length in bytes.
func LimitStringLength(input string, maxLength int) string {
	if len(input) <= maxLength {
		return input
	}
	return input[:maxLength]
}
