package bypass

import (
	"net/http"
	"strings"

	"github.com/FranksOps/firstlink/internal/browser"
)

// Detector examines a rendered page to determine whether bot protection
// served a challenge instead of search results.
type Detector func(p *browser.Page) (detected bool, source string)

// DefaultDetectors returns every known detector: the CDN/bot-manager
// vendors followed by the search engines' own interstitials.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectDuckDuckGo,
		detectGoogle,
	}
}

// Analyze runs the page through detectors in order and reports the first
// source that triggered.
func Analyze(p *browser.Page, detectors []Detector) (source string, detected bool) {
	if p == nil {
		return "", false
	}
	for _, d := range detectors {
		if ok, src := d(p); ok {
			return src, true
		}
	}
	return "", false
}

func containsAny(body string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(body, n) {
			return true
		}
	}
	return false
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(p *browser.Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden && p.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(p.Header("Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if containsAny(p.HTML,
		"cf-browser-verification",
		"cloudflare-nginx",
		"cf-turnstile",
		"Attention Required! | Cloudflare",
	) {
		return true, "Cloudflare"
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(p *browser.Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(p.Header("Server")), "akamai") {
		return true, "Akamai"
	}
	if strings.Contains(p.HTML, "Reference #") && strings.Contains(p.HTML, "Access Denied") {
		return true, "Akamai"
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(p *browser.Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(p.Header("Server")), "datadome") {
		return true, "DataDome"
	}
	if p.Header("X-DataDome") != "" || p.Header("X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if containsAny(p.HTML, "geo.captcha-delivery.com", "datadome") {
		return true, "DataDome"
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(p *browser.Page) (bool, string) {
	if p.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if p.Header("X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if containsAny(p.HTML, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}

// detectDuckDuckGo recognises the anomaly page DuckDuckGo serves with a
// normal 200 status when it suspects automation.
func detectDuckDuckGo(p *browser.Page) (bool, string) {
	if containsAny(p.HTML,
		"anomaly-modal",
		"Unfortunately, bots use DuckDuckGo too",
		"challenge-form",
	) {
		return true, "DuckDuckGo"
	}
	return false, ""
}

// detectGoogle recognises Google's /sorry/ unusual-traffic interstitial.
func detectGoogle(p *browser.Page) (bool, string) {
	if strings.Contains(p.URL, "google.") && strings.Contains(p.URL, "/sorry/") {
		return true, "Google"
	}
	if strings.Contains(p.HTML, "Our systems have detected unusual traffic") {
		return true, "Google"
	}
	return false, ""
}
