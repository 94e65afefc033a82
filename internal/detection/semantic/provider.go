// Package semantic implements the language-model-backed detector and
// its fallback chain. Provider backends are swappable behind a narrow
// capability interface selected by configuration tag; the detector
// never depends on a concrete provider.
package semantic

import (
	"context"
	"fmt"
	"time"
)

// Tier is a named cost/capability level mapped to a concrete backing
// model per provider.
type Tier string

const (
	TierPremium  Tier = "premium"
	TierStandard Tier = "standard"
	TierEconomy  Tier = "economy"
)

// ProviderConfig selects a provider implementation and its invocation
// parameters.
type ProviderConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider" json:"provider"`
	Tier        Tier          `mapstructure:"tier" yaml:"tier" json:"tier"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature" json:"temperature"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key" json:"api_key"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// Verdict is the strict structured output every provider must return.
// The JSON field names are part of the prompt contract and must not
// change.
type Verdict struct {
	IsAnomaly       bool     `json:"isAnomaly"`
	RiskScore       float64  `json:"riskScore"`
	AnomalyType     string   `json:"anomalyType"`
	Description     string   `json:"description"`
	Confidence      float64  `json:"confidence"`
	Explanation     string   `json:"explanation"`
	Recommendations []string `json:"recommendations"`
}

// Provider is the capability interface a language-model backend
// implements. Available is a diagnostics probe only; detection never
// keys off it.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, systemPrompt, userPrompt string, cfg ProviderConfig) (*Verdict, error)
	Models() map[Tier]string
	Available(ctx context.Context) bool
}

// NewProvider selects a provider implementation by configuration tag.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// modelFor resolves a tier to a backing model, defaulting to the
// standard tier for unknown tags.
func modelFor(models map[Tier]string, tier Tier) string {
	if m, ok := models[tier]; ok {
		return m
	}
	return models[TierStandard]
}
