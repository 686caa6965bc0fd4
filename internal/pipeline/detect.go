package pipeline

import "strings"

type DetectResult struct {
	IsGoal bool
	Score  float64
	Reason string
}

var detectKeywords = []string{"buy", "order", "purchase", "need", "supplies", "budget", "shopping", "attendees", "people", "event", "party", "hackathon", "outfit"}

// DetectGoalRequest scores whether an inbound message asks for a purchase.
func DetectGoalRequest(subject, text string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)

	score := 0.0
	for _, kw := range detectKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) {
			score += 0.1
		}
	}

	if strings.ContainsAny(subject+text, "$€£") || strings.Contains(text, "usd") {
		score += 0.25
	}
	if countNumbers(text) > 0 {
		score += 0.1
	}

	for _, name := range attachmentNames {
		ln := strings.ToLower(name)
		if strings.HasSuffix(ln, ".xlsx") || strings.HasSuffix(ln, ".pdf") {
			score += 0.25
			break
		}
	}
	if score > 1 {
		score = 1
	}

	isGoal := score >= 0.45
	reason := "rules_negative"
	if isGoal {
		reason = "rules_positive"
	}
	return DetectResult{IsGoal: isGoal, Score: score, Reason: reason}
}

func countNumbers(text string) int {
	count := 0
	for i := 0; i < len(text); i++ {
		if text[i] >= '0' && text[i] <= '9' {
			count++
			for i+1 < len(text) && text[i+1] >= '0' && text[i+1] <= '9' {
				i++
			}
		}
	}
	return count
}
