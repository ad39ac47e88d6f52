package bypass

import (
	"testing"

	"github.com/FranksOps/firstlink/internal/browser"
)

func TestDetectCloudflare(t *testing.T) {
	p := &browser.Page{
		StatusCode: 200,
		Headers:    map[string][]string{"Server": {"nginx"}},
		HTML:       "OK",
	}
	if detected, _ := detectCloudflare(p); detected {
		t.Errorf("expected not detected")
	}

	p = &browser.Page{
		StatusCode: 403,
		Headers:    map[string][]string{"server": {"cloudflare"}},
		HTML:       "Access Denied",
	}
	if detected, src := detectCloudflare(p); !detected || src != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by header")
	}

	p = &browser.Page{
		StatusCode: 503,
		HTML:       "<html>... cf-turnstile ...</html>",
	}
	if detected, src := detectCloudflare(p); !detected || src != "Cloudflare" {
		t.Errorf("expected Cloudflare detection by body")
	}
}

func TestDetectAkamai(t *testing.T) {
	p := &browser.Page{
		StatusCode: 403,
		Headers:    map[string][]string{"Server": {"AkamaiGHost"}},
	}
	if detected, src := detectAkamai(p); !detected || src != "Akamai" {
		t.Errorf("expected Akamai detection by header")
	}

	p = &browser.Page{
		StatusCode: 403,
		HTML:       "Access Denied... Reference #123.456",
	}
	if detected, src := detectAkamai(p); !detected || src != "Akamai" {
		t.Errorf("expected Akamai detection by body")
	}
}

func TestDetectDataDome(t *testing.T) {
	p := &browser.Page{
		StatusCode: 403,
		Headers:    map[string][]string{"X-DataDome": {"1"}},
	}
	if detected, src := detectDataDome(p); !detected || src != "DataDome" {
		t.Errorf("expected DataDome detection by header")
	}

	p = &browser.Page{
		StatusCode: 403,
		HTML:       "script src='https://geo.captcha-delivery.com/...'",
	}
	if detected, src := detectDataDome(p); !detected || src != "DataDome" {
		t.Errorf("expected DataDome detection by body")
	}
}

func TestDetectPerimeterX(t *testing.T) {
	p := &browser.Page{
		StatusCode: 403,
		Headers:    map[string][]string{"X-Px-Captcha": {"required"}},
	}
	if detected, src := detectPerimeterX(p); !detected || src != "PerimeterX" {
		t.Errorf("expected PerimeterX detection by header")
	}

	p = &browser.Page{
		StatusCode: 403,
		HTML:       "window._pxBlock = true;",
	}
	if detected, src := detectPerimeterX(p); !detected || src != "PerimeterX" {
		t.Errorf("expected PerimeterX detection by body")
	}
}

func TestDetectDuckDuckGo(t *testing.T) {
	p := &browser.Page{
		StatusCode: 200,
		HTML:       `<div class="anomaly-modal__title">Unfortunately, bots use DuckDuckGo too.</div>`,
	}
	if detected, src := detectDuckDuckGo(p); !detected || src != "DuckDuckGo" {
		t.Errorf("expected DuckDuckGo anomaly detection")
	}

	p = &browser.Page{StatusCode: 200, HTML: `<article data-testid="result"></article>`}
	if detected, _ := detectDuckDuckGo(p); detected {
		t.Errorf("expected normal results page to pass")
	}
}

func TestDetectGoogle(t *testing.T) {
	p := &browser.Page{URL: "https://www.google.com/sorry/index?continue=x"}
	if detected, src := detectGoogle(p); !detected || src != "Google" {
		t.Errorf("expected Google sorry page detection")
	}
}

func TestAnalyze(t *testing.T) {
	detectors := DefaultDetectors()

	p := &browser.Page{
		StatusCode: 403,
		Headers:    map[string][]string{"X-DataDome": {"1"}},
	}
	src, detected := Analyze(p, detectors)
	if !detected || src != "DataDome" {
		t.Errorf("expected DataDome detection, got %q %v", src, detected)
	}

	safe := &browser.Page{StatusCode: 200, HTML: "hello"}
	if src, detected := Analyze(safe, detectors); detected || src != "" {
		t.Errorf("expected safe page to pass, got %q", src)
	}

	if _, detected := Analyze(nil, detectors); detected {
		t.Errorf("expected nil page to pass")
	}
}
