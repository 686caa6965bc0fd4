package planner

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"cartpilot/internal/util"
)

const (
	DefaultAttendees = 50
	DefaultBudget    = 500.0
	dateLayout       = "2006-01-02"
)

var (
	attendeesRE = regexp.MustCompile(`(?i)(\d{1,3}(?:[\s,]\d{3})+|\d+)\s*(people|person|attendees|guests)`)
	daysRE      = regexp.MustCompile(`(?i)(?:within\s+(\d+)|(\d+)\s*days?\b)`)
)

var mentionKeywords = []struct {
	category string
	words    []string
}{
	{category: "snacks", words: []string{"snack", "food", "drinks", "beverage"}},
	{category: "badges", words: []string{"badge", "lanyard", "name tag"}},
	{category: "tech_accessories", words: []string{"cable", "charger", "tech", "usb"}},
	{category: "prizes", words: []string{"prize", "award", "favor", "swag"}},
	{category: "decorations", words: []string{"decoration", "decor", "banner", "balloon"}},
	{category: "outerwear", words: []string{"jacket", "pants", "waterproof"}},
	{category: "accessories", words: []string{"gloves", "goggles"}},
	{category: "base_layer", words: []string{"base layer", "thermal", "warm"}},
	{category: "office_supplies", words: []string{"pens", "notebook", "stationery"}},
}

// Intent is the structured reading of a free-text goal.
type Intent struct {
	EventType  string     `json:"eventType"`
	Attendees  int        `json:"attendees"`
	Budget     float64    `json:"budget"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	Mentioned  []string   `json:"mentioned,omitempty"`
	Confidence float64    `json:"confidence"`
}

// ParseGoal reads a goal with keyword and pattern heuristics. Anything it
// cannot find falls back to defaults.
func ParseGoal(goal string, now time.Time) Intent {
	lower := strings.ToLower(util.NormalizeSpaces(goal))

	intent := Intent{
		EventType:  DetectEventType(lower),
		Attendees:  DefaultAttendees,
		Budget:     DefaultBudget,
		Confidence: 1,
	}

	var reserved [][2]int
	if m := attendeesRE.FindStringSubmatchIndex(lower); m != nil {
		if n, ok := util.ParseAmount(lower[m[2]:m[3]]); ok && n >= 1 {
			intent.Attendees = int(n)
		}
		reserved = append(reserved, [2]int{m[0], m[1]})
	}

	if strings.Contains(lower, "friday") {
		d := nextWeekday(now, time.Friday)
		intent.Deadline = &d
	} else if m := daysRE.FindStringSubmatchIndex(lower); m != nil {
		token := ""
		if m[2] >= 0 {
			token = lower[m[2]:m[3]]
		} else {
			token = lower[m[4]:m[5]]
		}
		if n, err := strconv.Atoi(token); err == nil {
			d := now.AddDate(0, 0, n)
			intent.Deadline = &d
		}
		reserved = append(reserved, [2]int{m[0], m[1]})
	}

	skip := func(start, end int) bool {
		for _, r := range reserved {
			if start < r[1] && end > r[0] {
				return true
			}
		}
		return false
	}
	if budget, ok := util.CurrencyAmount(lower, skip); ok && budget > 0 {
		intent.Budget = budget
	}

	for _, mk := range mentionKeywords {
		if util.ContainsAny(lower, mk.words...) {
			intent.Mentioned = append(intent.Mentioned, mk.category)
		}
	}
	return intent
}

// DetectEventType maps goal keywords to a template name.
func DetectEventType(lowerGoal string) string {
	switch {
	case util.ContainsAny(lowerGoal, "party", "super bowl"):
		return EventParty
	case util.ContainsAny(lowerGoal, "ski", "outfit"):
		return EventSkiing
	case strings.Contains(lowerGoal, "wedding"):
		return EventWedding
	case util.ContainsAny(lowerGoal, "conference", "summit", "meetup"):
		return EventConference
	case strings.Contains(lowerGoal, "office"):
		return EventOffice
	default:
		return EventHackathon
	}
}

func nextWeekday(now time.Time, day time.Weekday) time.Time {
	diff := (int(day) - int(now.Weekday()) + 7) % 7
	return now.AddDate(0, 0, diff)
}
