// Package tier1 harvests structured sources: the NASS Quick Stats API and
// the EWG farm subsidy tables. These feed the market-stat store directly,
// with no extraction heuristics involved.
package tier1
