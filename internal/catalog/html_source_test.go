package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const storefrontPage = `<html><body>
<div class="product" data-id="p1" data-category="snacks">
  <h2 class="product-name">  Trail   Mix </h2>
  <span class="price">$1,299.50</span>
  <span class="rating" data-rating="4.5">4.5 stars</span>
  <span class="reviews">(1,204 reviews)</span>
  <span class="delivery" data-days="2">Arrives in 2 days</span>
  <img src="/img/p1.jpg">
  <p class="description">Salty and sweet</p>
</div>
<div class="product" data-category="snacks">
  <h2 class="product-name">Gone Chips</h2>
  <span class="price">$2.00</span>
  <span class="stock">Out of stock</span>
</div>
<div itemscope itemtype="https://schema.org/Product">
  <span itemprop="name">Trophy</span>
  <meta itemprop="sku" content="T-9">
  <meta itemprop="category" content="Prizes">
  <span itemprop="price" content="18.95">$18.95</span>
</div>
<div class="product"><span class="price">$3</span></div>
</body></html>`

func TestParseStorefront(t *testing.T) {
	items, err := ParseStorefront(strings.NewReader(storefrontPage), "corner")
	require.NoError(t, err)
	require.Len(t, items, 3)

	first := items[0]
	require.Equal(t, "p1", first.ID)
	require.Equal(t, "Trail Mix", first.Name)
	require.Equal(t, 1299.5, first.Price)
	require.Equal(t, 4.5, first.Rating)
	require.Equal(t, 1204, first.ReviewCount)
	require.Equal(t, 2, first.DeliveryDays)
	require.True(t, first.InStock)
	require.Equal(t, "/img/p1.jpg", first.Image)
	require.Equal(t, "corner", first.SourceID)

	require.Equal(t, "corner-2", items[1].ID)
	require.False(t, items[1].InStock)

	require.Equal(t, "T-9", items[2].ID)
	require.Equal(t, "prizes", items[2].Category)
	require.Equal(t, 18.95, items[2].Price)
}

func TestHTMLSourceSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(storefrontPage))
	}))
	defer srv.Close()

	src := NewHTMLSource("Corner", srv.URL, srv.Client())
	require.Equal(t, "corner", src.ID())

	items, err := src.Search(context.Background(), []string{"snacks"}, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "p1", items[0].ID)
}

func TestHTMLSourceStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTMLSource("corner", srv.URL, nil).Search(context.Background(), nil, 5)
	require.ErrorContains(t, err, "status=503")
}

func TestHTMLSourceIDFromHost(t *testing.T) {
	require.Equal(t, "shop", NewHTMLSource("", "https://www.shop.example.com/deals", nil).ID())
}
