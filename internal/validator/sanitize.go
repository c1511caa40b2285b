// Package validator implements the Response Validator (C4): decode, parse,
// structural check, content screens, token round-trip, and per-field
// sanitization — defense layer 6, the last line of defense if prompt
// injection succeeds anyway.
//
// Grounded on original_source/modules/ai_job_description_analysis/
// response_sanitizer.py (pattern lists and field sets transcribed
// verbatim) and ai_analyzer.py (response parsing / content screens).
package validator

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/merlin2/tieranalysis/internal/models"
)

var (
	sqlInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)union\s+select`),
		regexp.MustCompile(`(?i)drop\s+table`),
		regexp.MustCompile(`(?i)delete\s+from`),
		regexp.MustCompile(`(?i)insert\s+into`),
		regexp.MustCompile(`(?i)update\s+\w+\s+set`),
		regexp.MustCompile(`(?i)exec\s*\(`),
		regexp.MustCompile(`(?i)execute\s+immediate`),
		regexp.MustCompile(`(?i)xp_cmdshell`),
		regexp.MustCompile(`--\s*$`),
		regexp.MustCompile(`(?s)/\*.*\*/`),
	}

	commandInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile("[;&|`$()]"),
		regexp.MustCompile(`\$\(`),
		regexp.MustCompile("`.*`"),
		regexp.MustCompile(`>\s*/`),
	}

	xssPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
		regexp.MustCompile(`(?i)<iframe`),
		regexp.MustCompile(`(?i)<embed`),
		regexp.MustCompile(`(?i)<object`),
	}

	pathTraversalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\.\./`),
		regexp.MustCompile(`\.\.`),
		regexp.MustCompile(`(?i)%2e%2e`),
		regexp.MustCompile(`\.\.\\`),
	}

	suspiciousURLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`https?://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`),
		regexp.MustCompile(`(?i)https?://[a-z0-9-]+\.(?:ngrok|localtunnel|serveo)\.io`),
		regexp.MustCompile(`(?i)https?://[a-z0-9-]+\.(?:duckdns|no-ip)\.org`),
	}

	urlFinder     = regexp.MustCompile(`https?://[^\s]+`)
	urlInStr      = regexp.MustCompile(`(?i)https?://`)
	controlChars  = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f-\x9f]")
)

// urlProhibitedFields must never contain a URL.
var urlProhibitedFields = map[string]bool{
	"skill_name":      true,
	"industry":        true,
	"sub_industry":    true,
	"job_function":    true,
	"seniority_level": true,
	"job_title":       true,
	"company_name":    true,
	"department":      true,
}

// urlAllowedFields may contain a URL, subject to the suspicious-URL check.
var urlAllowedFields = map[string]bool{
	"application_link":  true,
	"application_email": true,
	"company_website":   true,
}

const maxStringLength = 10000

// SanitizeValue recursively sanitizes a decoded JSON value (map, slice,
// string, or primitive), mirroring response_sanitizer.py's dispatch by
// dynamic type rather than isinstance checks.
func SanitizeValue(key string, value any, path string) (any, []models.SanitizationWarning) {
	var warnings []models.SanitizationWarning

	switch v := value.(type) {
	case nil:
		return nil, warnings

	case string:
		sanitized, w := sanitizeString(key, v, path)
		return sanitized, w

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			sanitizedItem, w := SanitizeValue(key, item, fmt.Sprintf("%s[%d]", path, i))
			out[i] = sanitizedItem
			warnings = append(warnings, w...)
		}
		return out, warnings

	case map[string]any:
		out := make(map[string]any, len(v))
		for nestedKey, nestedValue := range v {
			sanitizedValue, w := SanitizeValue(nestedKey, nestedValue, path+"."+nestedKey)
			out[nestedKey] = sanitizedValue
			warnings = append(warnings, w...)
		}
		return out, warnings

	default:
		return value, warnings
	}
}

func sanitizeString(key, value, path string) (string, []models.SanitizationWarning) {
	var warnings []models.SanitizationWarning
	original := value

	if len(value) > maxStringLength {
		value = value[:maxStringLength]
		warnings = append(warnings, warn(path, "truncated", fmt.Sprintf("string truncated from %d to %d chars", len(original), maxStringLength)))
	}

	for _, pat := range sqlInjectionPatterns {
		if pat.MatchString(value) {
			warnings = append(warnings, warn(path, "stripped", "SQL injection pattern detected: "+pat.String()))
			value = pat.ReplaceAllString(value, "[REMOVED]")
		}
	}

	for _, pat := range commandInjectionPatterns {
		if pat.MatchString(value) {
			warnings = append(warnings, warn(path, "stripped", "command injection pattern detected"))
			value = pat.ReplaceAllString(value, "")
		}
	}

	for _, pat := range xssPatterns {
		if pat.MatchString(value) {
			warnings = append(warnings, warn(path, "escaped", "XSS pattern detected"))
			value = html.EscapeString(value)
			break
		}
	}

	for _, pat := range pathTraversalPatterns {
		if pat.MatchString(value) {
			warnings = append(warnings, warn(path, "stripped", "path traversal pattern detected"))
			value = pat.ReplaceAllString(value, "")
		}
	}

	if urlProhibitedFields[key] {
		if urlInStr.MatchString(value) {
			warnings = append(warnings, warn(path, "stripped", "unauthorized URL in prohibited field"))
			value = urlFinder.ReplaceAllString(value, "[URL_REMOVED]")
		}
	} else if urlAllowedFields[key] {
		for _, u := range urlFinder.FindAllString(value, -1) {
			if isSuspiciousURL(u) {
				warnings = append(warnings, warn(path, "stripped", "suspicious URL: "+truncate(u, 50)))
				value = strings.ReplaceAll(value, u, "[SUSPICIOUS_URL_REMOVED]")
			}
		}
	}

	if strings.Contains(value, "\x00") {
		warnings = append(warnings, warn(path, "stripped", "null byte detected"))
		value = strings.ReplaceAll(value, "\x00", "")
	}

	if controlChars.MatchString(value) {
		warnings = append(warnings, warn(path, "stripped", "control characters detected"))
		value = controlChars.ReplaceAllString(value, "")
	}

	return value, warnings
}

func isSuspiciousURL(raw string) bool {
	for _, pat := range suspiciousURLPatterns {
		if pat.MatchString(raw) {
			return true
		}
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return true
	}
	host := parsed.Hostname()
	switch host {
	case "localhost", "127.0.0.1", "0.0.0.0":
		return true
	}
	if strings.HasPrefix(host, "10.") || strings.HasPrefix(host, "172.16.") || strings.HasPrefix(host, "192.168.") {
		return true
	}
	return false
}

func warn(path, action, reason string) models.SanitizationWarning {
	return models.SanitizationWarning{FieldPath: path, Action: action, Reason: reason}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
