package config

import (
	"fmt"
	"net/url"
	"strings"
)

// SiteConfig holds the profile settings for one target host.
type SiteConfig struct {
	// Cookie is sent with every request, e.g. a logged-in session.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty"`

	// BlockingStrings mark actions that must never run, such as logout.
	BlockingStrings []string `yaml:"blockingStrings,omitempty"`

	// IgnorePatterns are URL path globs that are never crawled.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns restrict crawling to matching paths when set.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// Purpose describes the application to the oracle, e.g. "a blog where
	// users write posts and comment on them".
	Purpose string `yaml:"purpose,omitempty"`
}

// File represents the structure of the .crudcrawl profile file.
type File struct {
	// Sites maps host names (with port, if any) to their settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host merged over the
// defaults. Site headers are added to the default headers; every other
// non-empty site field replaces the default.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	if len(siteConfig.BlockingStrings) > 0 {
		result.BlockingStrings = siteConfig.BlockingStrings
	}
	if len(siteConfig.IgnorePatterns) > 0 {
		result.IgnorePatterns = siteConfig.IgnorePatterns
	}
	if len(siteConfig.FollowPatterns) > 0 {
		result.FollowPatterns = siteConfig.FollowPatterns
	}
	if siteConfig.Purpose != "" {
		result.Purpose = siteConfig.Purpose
	}
	return result
}

// HostOf returns the lower-cased host (with port) of target, or target
// itself when it is not a URL.
func HostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return strings.ToLower(target)
	}
	return strings.ToLower(u.Host)
}

// NormalizeTarget turns a start URL given on the command line into an
// absolute URL. A missing scheme defaults to http and an empty path to "/".
func NormalizeTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidTarget
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidTarget, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidTarget, raw)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	return u.String(), nil
}
