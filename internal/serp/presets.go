package serp

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Preset names.
const (
	PresetDuckDuckGo     = "duckduckgo"
	PresetDuckDuckGoHTML = "duckduckgo-html"
	PresetGoogle         = "google"
)

var presets = map[string]EngineConfig{
	PresetDuckDuckGo: {
		Name:           PresetDuckDuckGo,
		SearchURL:      "https://duckduckgo.com/",
		ResultSelector: `article[data-testid="result"] a[data-testid="result-title-a"]`,
		RenderTimeout:  10 * time.Second,
	},
	// The no-JavaScript endpoint, used by the plain HTTP engine.
	PresetDuckDuckGoHTML: {
		Name:           PresetDuckDuckGoHTML,
		SearchURL:      "https://html.duckduckgo.com/html/",
		ResultSelector: ".result__title a.result__a",
		RenderTimeout:  10 * time.Second,
	},
	PresetGoogle: {
		Name:           PresetGoogle,
		SearchURL:      "https://www.google.com/search",
		ResultSelector: "#search a:has(h3)",
		RenderTimeout:  10 * time.Second,
	},
}

// Preset returns a copy of the named engine configuration.
func Preset(name string) (EngineConfig, error) {
	cfg, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return EngineConfig{}, fmt.Errorf("serp: unknown preset %q (known: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return cfg, nil
}

// PresetNames lists the known presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
