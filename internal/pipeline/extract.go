package pipeline

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"cartpilot/internal"
	"cartpilot/internal/util"
)

const maxGoalRunes = 2000

var ignorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^--+$`),
	regexp.MustCompile(`^>`),
	regexp.MustCompile(`(?i)^(thanks|thank you|cheers)\b`),
	regexp.MustCompile(`(?i)^(best|kind)?\s*regards`),
	regexp.MustCompile(`(?i)^sent from my`),
	regexp.MustCompile(`(?i)^(tel|phone|e-?mail)[:\s]`),
	regexp.MustCompile(`(?i)^https?://`),
	regexp.MustCompile(`(?i)^on .+ wrote:$`),
}

// Goal is a shopping goal recovered from an inbound document.
type Goal struct {
	Text        string
	Source      internal.GoalSource
	Subject     string
	Attachments []string
}

// GoalFromEmailRaw reads a MIME message. The subject and the body form the
// goal, HTML part first; xlsx and pdf attachments are appended as briefs.
func GoalFromEmailRaw(raw []byte) (Goal, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Goal{}, err
	}

	goal := Goal{Subject: strings.TrimSpace(env.GetHeader("Subject")), Source: internal.GoalFromEmailText}
	parts := []string{}
	if goal.Subject != "" {
		parts = append(parts, goal.Subject)
	}

	var body string
	if env.HTML != "" {
		body = goalFromHTML(env.HTML)
		goal.Source = internal.GoalFromEmailHTML
	}
	if body == "" {
		body = goalFromText(env.Text)
		goal.Source = internal.GoalFromEmailText
	}
	if body != "" {
		parts = append(parts, body)
	}

	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if filename == "" {
			filename = "attachment"
		}
		goal.Attachments = append(goal.Attachments, filename)
		lower := strings.ToLower(filename)

		var brief string
		switch {
		case strings.HasSuffix(lower, ".xlsx"):
			brief, err = goalFromXLSX(att.Content)
			if body == "" {
				goal.Source = internal.GoalFromXLSX
			}
		case strings.HasSuffix(lower, ".pdf"):
			brief, err = goalFromPDF(att.Content)
			if body == "" {
				goal.Source = internal.GoalFromPDF
			}
		default:
			continue
		}
		if err == nil && brief != "" {
			parts = append(parts, brief)
		}
	}

	goal.Text = util.Truncate(strings.Join(parts, "\n"), maxGoalRunes)
	return goal, nil
}

// goalFromText keeps the meaningful lines of a plain body, stopping at the
// signature or quoted reply.
func goalFromText(text string) string {
	out := []string{}
	for _, line := range splitLines(text) {
		if line == "--" || strings.HasPrefix(line, "-- ") {
			break
		}
		if isLikelyNoise(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func goalFromHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, head").Remove()

	lines := []string{}
	doc.Find("p, li, h1, h2, h3, h4, td, th").Each(func(_ int, s *goquery.Selection) {
		if s.Find("p, li, td").Length() > 0 {
			return
		}
		if t := util.NormalizeSpaces(s.Text()); t != "" && !isLikelyNoise(t) {
			lines = append(lines, t)
		}
	})
	if len(lines) == 0 {
		return util.NormalizeSpaces(doc.Text())
	}
	return strings.Join(lines, "\n")
}

// goalFromXLSX reads a brief laid out as label/value rows, e.g.
// "Attendees | 80" or "Budget | $600". Rows that are not pairs are joined as
// free text.
func goalFromXLSX(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	defer f.Close()

	lines := []string{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			cells := normalizeCells(row)
			if len(cells) == 0 {
				continue
			}
			if len(cells) == 2 {
				lines = append(lines, briefPair(cells[0], cells[1]))
				continue
			}
			lines = append(lines, strings.Join(cells, " "))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func briefPair(label, value string) string {
	l := strings.ToLower(label)
	switch {
	case util.ContainsAny(l, "attendee", "people", "guest", "headcount", "participants"):
		return value + " people"
	case strings.Contains(l, "budget"):
		return "budget " + value
	case util.ContainsAny(l, "deadline", "deliver", "due"):
		return "by " + value
	default:
		return label + ": " + value
	}
}

func goalFromPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	lines := []string{}
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range splitLines(text) {
			if !isLikelyNoise(line) {
				lines = append(lines, util.NormalizeSpaces(line))
			}
		}
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("pdf has no text")
	}
	return strings.Join(lines, "\n"), nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isLikelyNoise(line string) bool {
	for _, re := range ignorePatterns {
		if re.MatchString(strings.TrimSpace(line)) {
			return true
		}
	}
	return false
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		if c = util.NormalizeSpaces(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
