package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/books-catalog/models"
)

// fieldRule extracts one Book field from an item selection.
type fieldRule struct {
	field string
	apply func(s *goquery.Selection, base *url.URL, book *models.Book) error
}

type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string {
	return e.field + ": " + e.reason
}

func missing(field string) error {
	return &fieldError{field: field, reason: "missing"}
}

// listingRules apply to each article.product_pod of a listing page.
var listingRules = []fieldRule{
	{field: "title", apply: func(s *goquery.Selection, _ *url.URL, b *models.Book) error {
		link := s.Find("h3 a").First()
		title := strings.TrimSpace(link.AttrOr("title", ""))
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}
		if title == "" {
			return missing("title")
		}
		b.Title = title
		return nil
	}},
	{field: "url", apply: func(s *goquery.Selection, base *url.URL, b *models.Book) error {
		href := strings.TrimSpace(s.Find("h3 a").First().AttrOr("href", ""))
		if href == "" {
			return missing("url")
		}
		abs, err := resolve(base, href)
		if err != nil {
			return &fieldError{field: "url", reason: err.Error()}
		}
		b.URL = abs
		return nil
	}},
	{field: "price", apply: priceRule("p.price_color", ".price_color")},
	{field: "rating", apply: ratingRule("p.star-rating")},
	{field: "availability", apply: availabilityRule("p.availability", ".availability")},
}

// detailRules apply to a whole product detail page.
var detailRules = []fieldRule{
	{field: "title", apply: func(s *goquery.Selection, _ *url.URL, b *models.Book) error {
		title := strings.TrimSpace(firstMatch(s, "div.product_main h1", "h1").Text())
		if title == "" {
			return missing("title")
		}
		b.Title = title
		return nil
	}},
	{field: "price", apply: priceRule("div.product_main .price_color", ".price_color")},
	{field: "rating", apply: ratingRule("div.product_main p.star-rating", "p.star-rating")},
	{field: "availability", apply: availabilityRule("p.instock.availability", ".availability")},
	{field: "category", apply: func(s *goquery.Selection, _ *url.URL, b *models.Book) error {
		crumbs := s.Find("ul.breadcrumb li")
		if crumbs.Length() < 3 {
			return missing("category")
		}
		category := strings.TrimSpace(crumbs.Eq(2).Text())
		if category == "" {
			return missing("category")
		}
		b.Category = category
		return nil
	}},
}

func applyRules(rules []fieldRule, s *goquery.Selection, base *url.URL) (models.Book, error) {
	var book models.Book
	for _, rule := range rules {
		if err := rule.apply(s, base, &book); err != nil {
			if _, ok := err.(*fieldError); ok {
				return models.Book{}, err
			}
			return models.Book{}, &fieldError{field: rule.field, reason: err.Error()}
		}
	}
	return book, nil
}

func priceRule(selectors ...string) func(*goquery.Selection, *url.URL, *models.Book) error {
	return func(s *goquery.Selection, _ *url.URL, b *models.Book) error {
		node := firstMatch(s, selectors...)
		if node.Length() == 0 {
			return missing("price")
		}
		price, err := PriceFromText(node.Text())
		if err != nil {
			return &fieldError{field: "price", reason: err.Error()}
		}
		b.Price = price
		return nil
	}
}

func ratingRule(selectors ...string) func(*goquery.Selection, *url.URL, *models.Book) error {
	return func(s *goquery.Selection, _ *url.URL, b *models.Book) error {
		node := firstMatch(s, selectors...)
		if node.Length() == 0 {
			return missing("rating")
		}
		rating, ok := RatingFromClass(node.AttrOr("class", ""))
		if !ok {
			return &fieldError{field: "rating", reason: "unrecognised rating class " + node.AttrOr("class", "")}
		}
		b.Rating = rating
		return nil
	}
}

func availabilityRule(selectors ...string) func(*goquery.Selection, *url.URL, *models.Book) error {
	return func(s *goquery.Selection, _ *url.URL, b *models.Book) error {
		node := firstMatch(s, selectors...)
		if node.Length() == 0 {
			return missing("availability")
		}
		inStock, ok := AvailabilityFromText(node.Text())
		if !ok {
			return &fieldError{field: "availability", reason: "no stock signal in " + strings.TrimSpace(node.Text())}
		}
		b.Availability = inStock
		return nil
	}
}

func firstMatch(s *goquery.Selection, selectors ...string) *goquery.Selection {
	for _, selector := range selectors {
		if node := s.Find(selector).First(); node.Length() > 0 {
			return node
		}
	}
	return s.Find(selectors[len(selectors)-1]).First()
}
