package utils

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`(?i)\bhttps?://[^\s<>]+`)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid"}

func ExtractURLs(content string) []string {
	return urlRegex.FindAllString(content, -1)
}

func NormalizeURL(raw string) (string, string, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}

	host := strings.ToLower(parsed.Hostname())
	asciiHost, err := idna.ToASCII(host)
	if err == nil {
		host = asciiHost
	}

	parsed.Host = host
	parsed.Fragment = ""
	parsed.User = nil

	query := parsed.Query()
	for _, key := range trackingParams {
		query.Del(key)
	}
	parsed.RawQuery = normalizeQuery(query)

	return parsed.String(), host, nil
}

func normalizeQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	clean := url.Values{}
	for _, key := range keys {
		clean[key] = values[key]
	}
	return clean.Encode()
}

// DomainMatch reports whether domain, or any parent of it, is on either list.
// The allowlist wins over the blocklist.
func DomainMatch(domain string, allowlist, blocklist map[string]struct{}) (allowed bool, blocked bool) {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	for _, candidate := range domainAncestors(domain) {
		if _, ok := allowlist[candidate]; ok {
			return true, false
		}
	}
	for _, candidate := range domainAncestors(domain) {
		if _, ok := blocklist[candidate]; ok {
			return false, true
		}
	}
	return false, false
}

// FirstBlockedURL returns the first link in content whose domain is blocklisted.
func FirstBlockedURL(content string, allowlist, blocklist map[string]struct{}) (string, string, bool) {
	if len(blocklist) == 0 {
		return "", "", false
	}
	for _, raw := range ExtractURLs(content) {
		normalized, domain, err := NormalizeURL(raw)
		if err != nil {
			continue
		}
		if _, blocked := DomainMatch(domain, allowlist, blocklist); blocked {
			return normalized, domain, true
		}
	}
	return "", "", false
}

func domainAncestors(domain string) []string {
	var out []string
	for domain != "" {
		out = append(out, domain)
		idx := strings.IndexByte(domain, '.')
		if idx < 0 {
			break
		}
		domain = domain[idx+1:]
	}
	return out
}
