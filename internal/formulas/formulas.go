// Package formulas registers the built-in financial calculations. Each is
// an ordinary leaf function over named base inputs; derived metrics like
// ebitda and price_to_earnings compose through the graph rather than
// re-deriving their parts.
package formulas

import (
	"fmt"

	"github.com/mboyd/reckon/internal/metric"
	"github.com/mboyd/reckon/internal/registry"
)

type definition struct {
	name      string
	dependsOn []string
	fn        registry.Func
}

// percent scales a ratio to a percentage value.
func percent(v metric.Value) metric.Value {
	return v.Mul(metric.FromInt(100, "")).WithUnit("%")
}

var builtins = []definition{
	{
		name:      "gross_profit",
		dependsOn: []string{"revenue", "cost_of_goods_sold"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return d["revenue"].Sub(d["cost_of_goods_sold"]), nil
		},
	},
	{
		name:      "gross_margin",
		dependsOn: []string{"gross_profit", "revenue"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return percent(d["gross_profit"].Div(d["revenue"])), nil
		},
	},
	{
		name:      "net_margin",
		dependsOn: []string{"net_income", "revenue"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return percent(d["net_income"].Div(d["revenue"])), nil
		},
	},
	{
		name:      "operating_margin",
		dependsOn: []string{"operating_income", "revenue"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return percent(d["operating_income"].Div(d["revenue"])), nil
		},
	},
	{
		name:      "current_ratio",
		dependsOn: []string{"current_assets", "current_liabilities"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return d["current_assets"].Div(d["current_liabilities"]), nil
		},
	},
	{
		name:      "quick_ratio",
		dependsOn: []string{"current_assets", "inventory", "current_liabilities"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return d["current_assets"].Sub(d["inventory"]).Div(d["current_liabilities"]), nil
		},
	},
	{
		name:      "working_capital",
		dependsOn: []string{"current_assets", "current_liabilities"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return d["current_assets"].Sub(d["current_liabilities"]), nil
		},
	},
	{
		name:      "debt_to_equity",
		dependsOn: []string{"total_liabilities", "shareholder_equity"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return d["total_liabilities"].Div(d["shareholder_equity"]), nil
		},
	},
	{
		name:      "return_on_equity",
		dependsOn: []string{"net_income", "shareholder_equity"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return percent(d["net_income"].Div(d["shareholder_equity"])), nil
		},
	},
	{
		name:      "return_on_assets",
		dependsOn: []string{"net_income", "total_assets"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return percent(d["net_income"].Div(d["total_assets"])), nil
		},
	},
	{
		name:      "asset_turnover",
		dependsOn: []string{"revenue", "total_assets"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return d["revenue"].Div(d["total_assets"]), nil
		},
	},
	{
		name:      "ebit",
		dependsOn: []string{"net_income", "interest_expense", "tax_expense"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return d["net_income"].Add(d["interest_expense"]).Add(d["tax_expense"]), nil
		},
	},
	{
		name:      "ebitda",
		dependsOn: []string{"ebit", "depreciation", "amortization"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return d["ebit"].Add(d["depreciation"]).Add(d["amortization"]), nil
		},
	},
	{
		name:      "free_cash_flow",
		dependsOn: []string{"operating_cash_flow", "capital_expenditures"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return d["operating_cash_flow"].Sub(d["capital_expenditures"]), nil
		},
	},
	{
		name:      "earnings_per_share",
		dependsOn: []string{"net_income", "shares_outstanding"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return d["net_income"].Div(d["shares_outstanding"]), nil
		},
	},
	{
		name:      "price_to_earnings",
		dependsOn: []string{"share_price", "earnings_per_share"},
		fn: func(d map[string]metric.Value, _ metric.Policy) (metric.Value, error) {
			return d["share_price"].Div(d["earnings_per_share"]), nil
		},
	},
}

// RegisterBuiltins registers every built-in calculation on reg.
func RegisterBuiltins(reg *registry.Registry) error {
	for _, def := range builtins {
		if err := reg.Register(def.name, def.dependsOn, def.fn); err != nil {
			return fmt.Errorf("register builtin %q: %w", def.name, err)
		}
	}
	return nil
}

// Names returns the built-in calculation names in registration order.
func Names() []string {
	names := make([]string, len(builtins))
	for i, def := range builtins {
		names[i] = def.name
	}
	return names
}
