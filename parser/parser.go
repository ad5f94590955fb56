// Package parser turns catalog HTML into books and pagination metadata.
// Every function here is pure: same input, same output, no I/O.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/books-catalog/models"
)

// ParseError reports a page whose content is missing an expected field.
type ParseError struct {
	URL    string
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: field %q: %s", e.URL, e.Field, e.Reason)
}

// PageInfo is the pagination metadata found on a listing page.
type PageInfo struct {
	NextURL string // empty on the last page
	Current int    // zero when the pager is absent
	Total   int
	Heading string
}

// HasNext reports whether the pager links to a further page.
func (p PageInfo) HasNext() bool {
	return p.NextURL != ""
}

// Page is the parsed content of one listing page.
type Page struct {
	Books []models.Book
	Info  PageInfo
}

// Category is one entry of the sidebar category index.
type Category struct {
	Name string
	URL  string
}

var pagerPattern = regexp.MustCompile(`(?i)page\s+(\d+)\s+of\s+(\d+)`)

var ratingWords = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

// ParseCatalogPage parses a catalogue or category listing. Books keep page
// order. When category is empty, the page heading labels the books.
func ParseCatalogPage(body []byte, pageURL, category string) (*Page, error) {
	doc, base, err := load(body, pageURL)
	if err != nil {
		return nil, err
	}

	info := parsePageInfo(doc, base)
	label := strings.TrimSpace(category)
	if label == "" {
		label = info.Heading
	}

	articles := doc.Find("article.product_pod")
	books := make([]models.Book, 0, articles.Length())
	var parseErr error
	articles.EachWithBreak(func(i int, s *goquery.Selection) bool {
		book, err := applyRules(listingRules, s, base)
		if err != nil {
			parseErr = newParseError(pageURL, err, i)
			return false
		}
		if label == "" {
			parseErr = &ParseError{URL: pageURL, Field: "category", Reason: "no category label or page heading"}
			return false
		}
		book.Category = label
		books = append(books, book)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return &Page{Books: books, Info: info}, nil
}

// ParsePageInfo extracts only the pagination metadata of a listing.
func ParsePageInfo(body []byte, pageURL string) (PageInfo, error) {
	doc, base, err := load(body, pageURL)
	if err != nil {
		return PageInfo{}, err
	}
	return parsePageInfo(doc, base), nil
}

// ParseCategories returns the sidebar categories in page order.
func ParseCategories(body []byte, baseURL string) ([]Category, error) {
	doc, base, err := load(body, baseURL)
	if err != nil {
		return nil, err
	}

	var categories []Category
	doc.Find("div.side_categories ul li ul li a").Each(func(_ int, s *goquery.Selection) {
		name := strings.Join(strings.Fields(s.Text()), " ")
		href, ok := s.Attr("href")
		if name == "" || !ok {
			return
		}
		abs, err := resolve(base, href)
		if err != nil {
			return
		}
		categories = append(categories, Category{Name: name, URL: abs})
	})
	return categories, nil
}

// ParseBookDetail parses a single product page.
func ParseBookDetail(body []byte, pageURL string) (models.Book, error) {
	doc, _, err := load(body, pageURL)
	if err != nil {
		return models.Book{}, err
	}

	book, err := applyRules(detailRules, doc.Selection, nil)
	if err != nil {
		return models.Book{}, newParseError(pageURL, err, -1)
	}
	book.URL = pageURL
	return book, nil
}

// PriceFromText strips a leading currency symbol and parses the amount.
func PriceFromText(text string) (float64, error) {
	cleaned := NormalizePrice(text)
	if cleaned == "" {
		return 0, fmt.Errorf("empty price")
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse price from %q", text)
	}
	if value < 0 {
		return 0, fmt.Errorf("negative price %q", text)
	}
	return value, nil
}

// NormalizePrice removes the currency symbol and surrounding whitespace.
func NormalizePrice(price string) string {
	price = strings.TrimSpace(price)
	for _, symbol := range []string{"Â£", "£", "$", "€"} {
		if strings.HasPrefix(price, symbol) {
			price = strings.TrimPrefix(price, symbol)
			break
		}
	}
	return strings.TrimSpace(price)
}

// RatingFromClass maps a "star-rating Three" class list to 1..5.
func RatingFromClass(class string) (int, bool) {
	for _, token := range strings.Fields(class) {
		if value, ok := ratingWords[token]; ok {
			return value, true
		}
	}
	return 0, false
}

// AvailabilityFromText reads the stock signal. The second result is false
// when the text carries no recognisable signal.
func AvailabilityFromText(text string) (bool, bool) {
	lower := strings.ToLower(strings.Join(strings.Fields(text), " "))
	switch {
	case strings.Contains(lower, "out of stock"), strings.Contains(lower, "unavailable"):
		return false, true
	case strings.Contains(lower, "in stock"), strings.Contains(lower, "available"):
		return true, true
	default:
		return false, false
	}
}

// ValidateBook ensures a record satisfies the field constraints.
func ValidateBook(b models.Book) error {
	if strings.TrimSpace(b.Title) == "" {
		return fmt.Errorf("book missing title")
	}
	if b.Price < 0 {
		return fmt.Errorf("book %q has negative price", b.Title)
	}
	if b.Rating < 1 || b.Rating > 5 {
		return fmt.Errorf("book %q rating %d out of range", b.Title, b.Rating)
	}
	if strings.TrimSpace(b.Category) == "" {
		return fmt.Errorf("book %q missing category", b.Title)
	}
	parsed, err := url.Parse(b.URL)
	if err != nil || !parsed.IsAbs() {
		return fmt.Errorf("book %q url %q is not absolute", b.Title, b.URL)
	}
	return nil
}

func load(body []byte, pageURL string) (*goquery.Document, *url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, &ParseError{URL: pageURL, Field: "url", Reason: err.Error()}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, &ParseError{URL: pageURL, Field: "document", Reason: err.Error()}
	}
	return doc, base, nil
}

func parsePageInfo(doc *goquery.Document, base *url.URL) PageInfo {
	var info PageInfo
	info.Heading = strings.TrimSpace(doc.Find("div.page-header h1").First().Text())

	if href, ok := doc.Find("li.next a").First().Attr("href"); ok && strings.TrimSpace(href) != "" {
		if abs, err := resolve(base, strings.TrimSpace(href)); err == nil {
			info.NextURL = abs
		}
	}

	if m := pagerPattern.FindStringSubmatch(doc.Find("li.current").First().Text()); m != nil {
		info.Current, _ = strconv.Atoi(m[1])
		info.Total, _ = strconv.Atoi(m[2])
	}
	return info
}

func resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if base == nil {
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}

func newParseError(pageURL string, err error, item int) error {
	var fe *fieldError
	if !errors.As(err, &fe) {
		return &ParseError{URL: pageURL, Field: "unknown", Reason: err.Error()}
	}
	reason := fe.reason
	if item >= 0 {
		reason = fmt.Sprintf("item %d: %s", item+1, reason)
	}
	return &ParseError{URL: pageURL, Field: fe.field, Reason: reason}
}
