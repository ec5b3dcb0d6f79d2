package credit

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/josh-kwaku/credit-ledger/internal/domain"
)

// PricingTable maps feature codes to credit costs, with optional per-tier
// overrides. It is configuration, not ledger state.
//
//	[features]
//	blog_post = 10
//
//	[tiers.pro]
//	blog_post = 8
type PricingTable struct {
	Features map[string]int64            `toml:"features"`
	Tiers    map[string]map[string]int64 `toml:"tiers"`
}

func DefaultPricing() *PricingTable {
	return &PricingTable{
		Features: map[string]int64{
			"blog_post":    10,
			"social_post":  3,
			"image":        5,
			"video_short":  50,
			"video_long":   120,
			"caption":      1,
			"content_plan": 8,
		},
		Tiers: map[string]map[string]int64{
			"pro": {
				"video_short": 40,
				"video_long":  100,
			},
		},
	}
}

// LoadPricing reads a TOML pricing file. An empty path returns the defaults.
func LoadPricing(path string) (*PricingTable, error) {
	if path == "" {
		return DefaultPricing(), nil
	}

	var p PricingTable
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("LoadPricing: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("LoadPricing: %w", err)
	}
	return &p, nil
}

func ParsePricing(data string) (*PricingTable, error) {
	var p PricingTable
	if _, err := toml.Decode(data, &p); err != nil {
		return nil, fmt.Errorf("ParsePricing: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("ParsePricing: %w", err)
	}
	return &p, nil
}

func (p *PricingTable) Validate() error {
	if len(p.Features) == 0 {
		return fmt.Errorf("no features defined: %w", domain.ErrInvalidRequest)
	}
	for code, cost := range p.Features {
		if cost <= 0 {
			return fmt.Errorf("feature %q: cost must be positive: %w", code, domain.ErrInvalidRequest)
		}
	}
	for tier, overrides := range p.Tiers {
		for code, cost := range overrides {
			if _, ok := p.Features[code]; !ok {
				return fmt.Errorf("tier %q overrides unknown feature %q: %w", tier, code, domain.ErrUnknownFeature)
			}
			if cost <= 0 {
				return fmt.Errorf("tier %q feature %q: cost must be positive: %w", tier, code, domain.ErrInvalidRequest)
			}
		}
	}
	return nil
}

// Resolve returns the cost of feature for tier. Unknown tiers fall back to the
// base price.
func (p *PricingTable) Resolve(feature, tier string) (int64, error) {
	base, ok := p.Features[feature]
	if !ok {
		return 0, fmt.Errorf("Resolve %q: %w", feature, domain.ErrUnknownFeature)
	}
	if cost, ok := p.Tiers[tier][feature]; ok {
		return cost, nil
	}
	return base, nil
}
