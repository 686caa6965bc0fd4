package pipeline

import (
	"fmt"
	"os"
	"strings"

	"cartpilot/internal"
)

// GoalFromInput turns a one-off input into a goal. text, email_text and
// email_html take the content itself; xlsx and pdf take a file path.
func GoalFromInput(kind internal.GoalSource, input string) (Goal, error) {
	var (
		text string
		err  error
	)
	switch kind {
	case internal.GoalFromText:
		text = strings.TrimSpace(input)
	case internal.GoalFromEmailText:
		text = goalFromText(input)
	case internal.GoalFromEmailHTML:
		text = goalFromHTML(input)
	case internal.GoalFromXLSX, internal.GoalFromPDF:
		blob, readErr := os.ReadFile(input)
		if readErr != nil {
			return Goal{}, readErr
		}
		if kind == internal.GoalFromXLSX {
			text, err = goalFromXLSX(blob)
		} else {
			text, err = goalFromPDF(blob)
		}
	default:
		return Goal{}, fmt.Errorf("unsupported input type: %s", kind)
	}
	if err != nil {
		return Goal{}, err
	}
	if text == "" {
		return Goal{}, fmt.Errorf("no goal text in %s input", kind)
	}
	return Goal{Text: text, Source: kind}, nil
}
