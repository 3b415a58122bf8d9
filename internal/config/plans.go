package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
)

// Unlimited marks a plan without a fleet size cap.
const Unlimited = -1

// Plan describes one subscription tier.  The same table drives the fleet
// quota check and the revenue rollup on the operator console.
type Plan struct {
	Tier              string `yaml:"-" json:"tier"`
	DisplayName       string `yaml:"display_name" json:"display_name"`
	MonthlyPriceCents int64  `yaml:"monthly_price_cents" json:"monthly_price_cents"`
	MaxFleetUnits     int    `yaml:"max_fleet_units" json:"max_fleet_units"`
}

// Unbounded reports whether the plan has no fleet cap.
func (p Plan) Unbounded() bool { return p.MaxFleetUnits < 0 }

// Plans is the plan catalog keyed by tier.
type Plans map[string]Plan

type plansFile struct {
	Plans map[string]Plan `yaml:"plans"`
}

// DefaultPlans returns the built-in catalog.
func DefaultPlans() Plans {
	return Plans{
		model.PlanStarter:    {Tier: model.PlanStarter, DisplayName: "Starter", MonthlyPriceCents: 9900, MaxFleetUnits: 3},
		model.PlanPro:        {Tier: model.PlanPro, DisplayName: "Professional", MonthlyPriceCents: 19900, MaxFleetUnits: 10},
		model.PlanEnterprise: {Tier: model.PlanEnterprise, DisplayName: "Enterprise", MonthlyPriceCents: 39900, MaxFleetUnits: Unlimited},
	}
}

// LoadPlans returns the default catalog overlaid with the tiers defined in
// the YAML file at path.  An empty path yields the defaults.
//
//	plans:
//	  pro:
//	    display_name: Professional
//	    monthly_price_cents: 24900
//	    max_fleet_units: 12
func LoadPlans(path string) (Plans, error) {
	plans := DefaultPlans()
	if path == "" {
		return plans, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	var f plansFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}
	for tier, p := range f.Plans {
		tier = strings.ToLower(strings.TrimSpace(tier))
		if tier == "" {
			return nil, fmt.Errorf("plans file: empty tier name")
		}
		if p.MonthlyPriceCents < 0 {
			return nil, fmt.Errorf("plans file: %s: negative price", tier)
		}
		if p.MaxFleetUnits < Unlimited {
			return nil, fmt.Errorf("plans file: %s: max_fleet_units must be >= -1", tier)
		}
		p.Tier = tier
		if p.DisplayName == "" {
			p.DisplayName = tier
		}
		plans[tier] = p
	}
	return plans, nil
}

// Lookup returns the plan for a tier.  Tier names are case-insensitive.
func (ps Plans) Lookup(tier string) (Plan, bool) {
	p, ok := ps[strings.ToLower(strings.TrimSpace(tier))]
	return p, ok
}

// PriceCents returns the monthly price of a tier; unknown tiers cost nothing.
func (ps Plans) PriceCents(tier string) int64 {
	if p, ok := ps.Lookup(tier); ok {
		return p.MonthlyPriceCents
	}
	return 0
}

// Sorted lists the catalog ordered by price, then tier name.
func (ps Plans) Sorted() []Plan {
	out := make([]Plan, 0, len(ps))
	for _, p := range ps {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MonthlyPriceCents != out[j].MonthlyPriceCents {
			return out[i].MonthlyPriceCents < out[j].MonthlyPriceCents
		}
		return out[i].Tier < out[j].Tier
	})
	return out
}
