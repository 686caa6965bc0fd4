package planner

import (
	"cartpilot/internal"
)

const (
	EventHackathon  = "hackathon"
	EventParty      = "party"
	EventSkiing     = "skiing"
	EventOffice     = "office"
	EventConference = "conference"
	EventWedding    = "wedding"
)

var templates = map[string][]internal.Category{
	EventHackathon: {
		{Name: "snacks", DisplayName: "Snacks & Refreshments", Priority: internal.PriorityHigh, BudgetAllocation: 0.25},
		{Name: "badges", DisplayName: "Name Badges", Priority: internal.PriorityHigh, BudgetAllocation: 0.10},
		{Name: "tech_accessories", DisplayName: "Tech Accessories", Priority: internal.PriorityMedium, BudgetAllocation: 0.20},
		{Name: "prizes", DisplayName: "Prizes & Awards", Priority: internal.PriorityMedium, BudgetAllocation: 0.35},
		{Name: "decorations", DisplayName: "Decorations", Priority: internal.PriorityLow, BudgetAllocation: 0.10},
	},
	EventParty: {
		{Name: "snacks", DisplayName: "Snacks & Food", Priority: internal.PriorityHigh, BudgetAllocation: 0.40},
		{Name: "decorations", DisplayName: "Decorations", Priority: internal.PriorityHigh, BudgetAllocation: 0.30},
		{Name: "prizes", DisplayName: "Party Favors", Priority: internal.PriorityMedium, BudgetAllocation: 0.30},
	},
	EventSkiing: {
		{Name: "outerwear", DisplayName: "Jacket & Pants", Priority: internal.PriorityHigh, BudgetAllocation: 0.50},
		{Name: "accessories", DisplayName: "Gloves & Goggles", Priority: internal.PriorityHigh, BudgetAllocation: 0.25},
		{Name: "base_layer", DisplayName: "Base Layers", Priority: internal.PriorityMedium, BudgetAllocation: 0.25},
	},
	EventOffice: {
		{Name: "office_supplies", DisplayName: "Office Supplies", Priority: internal.PriorityHigh, BudgetAllocation: 0.45},
		{Name: "tech_accessories", DisplayName: "Tech Accessories", Priority: internal.PriorityMedium, BudgetAllocation: 0.30},
		{Name: "snacks", DisplayName: "Snacks & Refreshments", Priority: internal.PriorityLow, BudgetAllocation: 0.25},
	},
	EventConference: {
		{Name: "badges", DisplayName: "Badges & Lanyards", Priority: internal.PriorityHigh, BudgetAllocation: 0.15},
		{Name: "snacks", DisplayName: "Catering & Snacks", Priority: internal.PriorityHigh, BudgetAllocation: 0.35},
		{Name: "tech_accessories", DisplayName: "Tech Accessories", Priority: internal.PriorityMedium, BudgetAllocation: 0.20},
		{Name: "office_supplies", DisplayName: "Notebooks & Pens", Priority: internal.PriorityMedium, BudgetAllocation: 0.15},
		{Name: "decorations", DisplayName: "Signage & Decorations", Priority: internal.PriorityLow, BudgetAllocation: 0.15},
	},
	EventWedding: {
		{Name: "decorations", DisplayName: "Decorations", Priority: internal.PriorityHigh, BudgetAllocation: 0.45},
		{Name: "snacks", DisplayName: "Snacks & Treats", Priority: internal.PriorityHigh, BudgetAllocation: 0.30},
		{Name: "prizes", DisplayName: "Guest Favors", Priority: internal.PriorityMedium, BudgetAllocation: 0.25},
	},
}

// EventTypes lists the event types that have a category template.
func EventTypes() []string {
	return []string{EventHackathon, EventParty, EventSkiing, EventOffice, EventConference, EventWedding}
}

func templateFor(eventType string) []internal.Category {
	tpl, ok := templates[eventType]
	if !ok {
		tpl = templates[EventHackathon]
	}
	out := make([]internal.Category, len(tpl))
	copy(out, tpl)
	return out
}

// EstimateQuantity sizes a category for the given head count.
func EstimateQuantity(category string, attendees int) int {
	a := attendees
	switch category {
	case "snacks":
		return ceilDiv(a*3, 2)
	case "badges":
		return ceilDiv(a*11, 10)
	case "tech_accessories":
		return ceilDiv(a, 4)
	case "prizes":
		return min(5, ceilDiv(a, 15))
	case "decorations":
		return ceilDiv(a, 20)
	default:
		return 1
	}
}

// ceilDiv keeps the multipliers exact; 80*1.1 in floating point rounds up to 89.
func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
