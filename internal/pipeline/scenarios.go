package pipeline

import "strings"

type Scenario struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Goal        string `json:"goal"`
	Description string `json:"description"`
}

var scenarios = []Scenario{
	{
		ID:          "hackathon",
		Title:       "Hackathon Host Kit",
		Goal:        "Host a hackathon for 80 people under $600, need snacks, badges, cables, prizes, and decorations",
		Description: "Full procurement for a tech event",
	},
	{
		ID:          "skiing",
		Title:       "Skiing Outfit",
		Goal:        "Complete skiing outfit, warm and waterproof, size M, budget $400, deliver in 5 days",
		Description: "Multi-item fashion optimization",
	},
	{
		ID:          "party",
		Title:       "Super Bowl Party",
		Goal:        "Full outfit for Super Bowl party, team style, budget $150, by Friday",
		Description: "Time-sensitive event shopping",
	},
}

func Scenarios() []Scenario {
	return append([]Scenario{}, scenarios...)
}

func ScenarioByID(id string) (Scenario, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return Scenario{}, false
}
