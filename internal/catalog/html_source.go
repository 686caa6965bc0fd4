package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"cartpilot/internal"
	"cartpilot/internal/util"
)

var (
	reNumber = regexp.MustCompile(`\d[\d.,\s]*`)
	reInt    = regexp.MustCompile(`\d[\d,]*`)
)

// HTMLSource scrapes a storefront listing page. Product cards are elements
// with class "product" or schema.org Product microdata.
type HTMLSource struct {
	id         string
	pageURL    string
	httpClient *http.Client
}

func NewHTMLSource(id, pageURL string, client *http.Client) *HTMLSource {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if id == "" {
		if u, err := url.Parse(pageURL); err == nil {
			id = strings.TrimPrefix(u.Hostname(), "www.")
			if i := strings.Index(id, "."); i > 0 {
				id = id[:i]
			}
		}
	}
	return &HTMLSource{id: strings.ToLower(id), pageURL: pageURL, httpClient: client}
}

func (s *HTMLSource) ID() string { return s.id }

func (s *HTMLSource) Search(ctx context.Context, categories []string, maxResults int) ([]internal.CandidateItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("storefront %s: status=%d body=%s", s.id, resp.StatusCode, string(body))
	}

	items, err := ParseStorefront(resp.Body, s.id)
	if err != nil {
		return nil, err
	}

	want := map[string]bool{}
	for _, c := range categories {
		want[c] = true
	}
	out := []internal.CandidateItem{}
	for _, it := range items {
		if len(want) > 0 && !want[it.Category] {
			continue
		}
		if !it.InStock {
			continue
		}
		out = append(out, it)
	}
	return limitPerCategory(out, maxResults), nil
}

// ParseStorefront extracts product cards from a listing page.
func ParseStorefront(r io.Reader, source string) ([]internal.CandidateItem, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	out := []internal.CandidateItem{}
	doc.Find(".product, [itemtype$='schema.org/Product']").Each(func(i int, card *goquery.Selection) {
		name := util.NormalizeSpaces(firstText(card, ".product-name", "[itemprop=name]"))
		if name == "" {
			return
		}
		price, ok := parsePrice(firstValue(card, ".price", "[itemprop=price]"))
		if !ok {
			return
		}

		id, _ := card.Attr("data-id")
		if id == "" {
			id = firstValue(card, "[itemprop=sku]")
		}
		if id == "" {
			id = fmt.Sprintf("%s-%d", source, i+1)
		}

		category, _ := card.Attr("data-category")
		if category == "" {
			category = firstValue(card, "[itemprop=category]")
		}

		rating, _ := strconv.ParseFloat(firstValue(card, ".rating", "[itemprop=ratingValue]"), 64)
		reviews := parseInt(firstValue(card, ".reviews", "[itemprop=reviewCount]"))
		days := parseInt(firstValue(card, ".delivery", "[data-days]"))

		stockText := strings.ToLower(firstText(card, ".stock", "[itemprop=availability]"))
		inStock := !strings.Contains(stockText, "out of stock") && !strings.Contains(stockText, "outofstock")

		img, _ := card.Find("img").First().Attr("src")

		out = append(out, internal.CandidateItem{
			ID:           id,
			Name:         name,
			Category:     strings.ToLower(strings.TrimSpace(category)),
			Price:        price,
			Rating:       clampRating(rating),
			ReviewCount:  reviews,
			DeliveryDays: days,
			SourceID:     source,
			InStock:      inStock,
			Image:        img,
			Description:  util.NormalizeSpaces(firstText(card, ".description", "[itemprop=description]")),
		})
	})
	return out, nil
}

func firstText(card *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if node := card.Find(sel).First(); node.Length() > 0 {
			if t := strings.TrimSpace(node.Text()); t != "" {
				return t
			}
		}
	}
	return ""
}

// firstValue prefers data-*/content attributes over text for the first match.
func firstValue(card *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		node := card.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		for _, attr := range []string{"content", "data-rating", "data-days", "data-value"} {
			if v, ok := node.Attr(attr); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		if t := strings.TrimSpace(node.Text()); t != "" {
			return t
		}
	}
	return ""
}

func parsePrice(text string) (float64, bool) {
	token := strings.TrimSpace(reNumber.FindString(text))
	if token == "" {
		return 0, false
	}
	return util.ParseAmount(token)
}

func parseInt(text string) int {
	token := strings.ReplaceAll(reInt.FindString(text), ",", "")
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0
	}
	return n
}
