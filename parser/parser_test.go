package parser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/aluiziolira/books-catalog/models"
)

const baseURL = "https://books.toscrape.com/"

const catalogPageHTML = `
<html>
<body>
<div class="side_categories">
  <ul><li><a href="catalogue/category/books_1/index.html">Books</a>
    <ul>
      <li><a href="catalogue/category/books/travel_2/index.html">
        Travel
      </a></li>
      <li><a href="catalogue/category/books/science_22/index.html">Science</a></li>
      <li><a href="catalogue/category/books/science-fiction_16/index.html">Science Fiction</a></li>
    </ul>
  </li></ul>
</div>
<div class="page-header action"><h1>All products</h1></div>
<section>
  <ol class="row">
    <li>
      <article class="product_pod">
        <p class="star-rating Three"></p>
        <h3><a href="catalogue/a-light-in-the-attic_1000/index.html"
               title="A Light in the Attic">A Light in the ...</a></h3>
        <div class="product_price">
          <p class="price_color">£51.77</p>
          <p class="instock availability"><i class="icon-ok"></i> In stock</p>
        </div>
      </article>
    </li>
    <li>
      <article class="product_pod">
        <p class="star-rating One"></p>
        <h3><a href="catalogue/tipping-the-velvet_999/index.html"
               title="Tipping the Velvet">Tipping the ...</a></h3>
        <div class="product_price">
          <p class="price_color">Â£53.74</p>
          <p class="instock availability"><i class="icon-ok"></i> In stock</p>
        </div>
      </article>
    </li>
  </ol>
  <ul class="pager">
    <li class="current">Page 1 of 50</li>
    <li class="next"><a href="page-2.html">next</a></li>
  </ul>
</section>
</body>
</html>
`

const lastPageHTML = `
<html><body>
<div class="page-header action"><h1>All products</h1></div>
<section>
  <ol class="row">
    <li>
      <article class="product_pod">
        <p class="star-rating Five"></p>
        <h3><a href="last-book_1/index.html" title="Last Book">Last ...</a></h3>
        <div class="product_price">
          <p class="price_color">£10.00</p>
          <p class="instock availability"> In stock </p>
        </div>
      </article>
    </li>
  </ol>
  <ul class="pager">
    <li class="previous"><a href="page-49.html">previous</a></li>
    <li class="current">Page 50 of 50</li>
  </ul>
</section>
</body></html>
`

const outOfStockHTML = `
<html><body>
<section>
  <ol class="row">
    <li>
      <article class="product_pod">
        <p class="star-rating Two"></p>
        <h3><a href="catalogue/sold-out_1/index.html" title="Sold Out Book">Sold ...</a></h3>
        <div class="product_price">
          <p class="price_color">£25.00</p>
          <p class="availability">Out of stock</p>
        </div>
      </article>
    </li>
  </ol>
</section>
</body></html>
`

const bookDetailHTML = `
<html><body>
<ul class="breadcrumb">
  <li><a href="../../../index.html">Home</a></li>
  <li><a href="../../../catalogue/category/books_1/index.html">Books</a></li>
  <li><a href="../../../catalogue/category/books/science_22/index.html">Science</a></li>
  <li class="active">The Grand Design</li>
</ul>
<div class="product_main">
  <h1>The Grand Design</h1>
  <p class="price_color">£13.76</p>
  <p class="instock availability">
    <i class="icon-ok"></i> In stock (22 available)
  </p>
  <p class="star-rating Four"></p>
</div>
</body></html>
`

func TestParseCatalogPage(t *testing.T) {
	page, err := ParseCatalogPage([]byte(catalogPageHTML), baseURL, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(page.Books) != 2 {
		t.Fatalf("books = %d, want 2", len(page.Books))
	}

	want := models.Book{
		Title:        "A Light in the Attic",
		Price:        51.77,
		Rating:       3,
		Availability: true,
		Category:     "All products",
		URL:          "https://books.toscrape.com/catalogue/a-light-in-the-attic_1000/index.html",
	}
	if page.Books[0] != want {
		t.Fatalf("first book = %+v, want %+v", page.Books[0], want)
	}
	if page.Books[1].Title != "Tipping the Velvet" || page.Books[1].Price != 53.74 || page.Books[1].Rating != 1 {
		t.Fatalf("second book = %+v", page.Books[1])
	}

	if page.Info.NextURL != "https://books.toscrape.com/page-2.html" {
		t.Fatalf("next url = %q", page.Info.NextURL)
	}
	if page.Info.Current != 1 || page.Info.Total != 50 {
		t.Fatalf("pager = %d of %d, want 1 of 50", page.Info.Current, page.Info.Total)
	}
}

func TestParseCatalogPageUsesGivenCategory(t *testing.T) {
	page, err := ParseCatalogPage([]byte(catalogPageHTML), baseURL, "Poetry")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, book := range page.Books {
		if book.Category != "Poetry" {
			t.Fatalf("category = %q, want Poetry", book.Category)
		}
	}
}

func TestParseCatalogPageLastPage(t *testing.T) {
	pageURL := "https://books.toscrape.com/catalogue/page-50.html"
	page, err := ParseCatalogPage([]byte(lastPageHTML), pageURL, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if page.Info.HasNext() {
		t.Fatalf("last page should have no next link, got %q", page.Info.NextURL)
	}
	if page.Info.Current != 50 || page.Info.Total != 50 {
		t.Fatalf("pager = %d of %d, want 50 of 50", page.Info.Current, page.Info.Total)
	}
	if got := page.Books[0].URL; got != "https://books.toscrape.com/catalogue/last-book_1/index.html" {
		t.Fatalf("url resolved against page = %q", got)
	}
}

func TestParseCatalogPageOutOfStock(t *testing.T) {
	page, err := ParseCatalogPage([]byte(outOfStockHTML), baseURL, "Fiction")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if page.Books[0].Availability {
		t.Fatalf("out of stock book reported as available")
	}
}

func TestParseCatalogPageEmpty(t *testing.T) {
	page, err := ParseCatalogPage([]byte("<html><body><section></section></body></html>"), baseURL, "")
	if err != nil {
		t.Fatalf("empty page should parse, got %v", err)
	}
	if page.Books == nil || len(page.Books) != 0 {
		t.Fatalf("books = %v, want empty non-nil slice", page.Books)
	}
	if page.Info.HasNext() {
		t.Fatalf("empty page should have no next link")
	}
}

func TestParseCatalogPageCountMatchesItems(t *testing.T) {
	for _, n := range []int{1, 4, 20} {
		t.Run(fmt.Sprintf("items_%d", n), func(t *testing.T) {
			page, err := ParseCatalogPage([]byte(listing(n)), baseURL, "Travel")
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if len(page.Books) != n {
				t.Fatalf("books = %d, want %d", len(page.Books), n)
			}
			for i, book := range page.Books {
				if want := fmt.Sprintf("Book %d", i+1); book.Title != want {
					t.Fatalf("book %d title = %q, want %q (page order)", i, book.Title, want)
				}
			}
		})
	}
}

func TestParseCatalogPageMissingField(t *testing.T) {
	item := func(rating, price, availability string) string {
		return `<html><body><article class="product_pod">` + rating +
			`<h3><a href="b/index.html" title="Broken">Broken</a></h3>` + price + availability +
			`</article></body></html>`
	}
	const (
		rating       = `<p class="star-rating Two"></p>`
		price        = `<p class="price_color">£12.00</p>`
		availability = `<p class="instock availability">In stock</p>`
	)

	tests := []struct {
		name  string
		html  string
		field string
	}{
		{name: "no price", html: item(rating, "", availability), field: "price"},
		{name: "bad price", html: item(rating, `<p class="price_color">£abc</p>`, availability), field: "price"},
		{name: "no rating", html: item("", price, availability), field: "rating"},
		{name: "unknown rating", html: item(`<p class="star-rating Zero"></p>`, price, availability), field: "rating"},
		{name: "no availability", html: item(rating, price, ""), field: "availability"},
		{name: "no title", html: `<html><body><article class="product_pod"><h3></h3></article></body></html>`, field: "title"},
		{name: "no category", html: item(rating, price, availability), field: "category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalogPage([]byte(tt.html), baseURL, "")
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %v", err)
			}
			if parseErr.Field != tt.field {
				t.Fatalf("field = %q, want %q (%v)", parseErr.Field, tt.field, parseErr)
			}
			if parseErr.URL != baseURL {
				t.Fatalf("url = %q, want %q", parseErr.URL, baseURL)
			}
		})
	}
}

func TestParseCategories(t *testing.T) {
	categories, err := ParseCategories([]byte(catalogPageHTML), baseURL)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []Category{
		{Name: "Travel", URL: "https://books.toscrape.com/catalogue/category/books/travel_2/index.html"},
		{Name: "Science", URL: "https://books.toscrape.com/catalogue/category/books/science_22/index.html"},
		{Name: "Science Fiction", URL: "https://books.toscrape.com/catalogue/category/books/science-fiction_16/index.html"},
	}
	if len(categories) != len(want) {
		t.Fatalf("categories = %v, want %v", categories, want)
	}
	for i := range want {
		if categories[i] != want[i] {
			t.Fatalf("category[%d] = %+v, want %+v", i, categories[i], want[i])
		}
	}
}

func TestParseBookDetail(t *testing.T) {
	url := "https://books.toscrape.com/catalogue/the-grand-design_405/index.html"
	book, err := ParseBookDetail([]byte(bookDetailHTML), url)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := models.Book{
		Title:        "The Grand Design",
		Price:        13.76,
		Rating:       4,
		Availability: true,
		Category:     "Science",
		URL:          url,
	}
	if book != want {
		t.Fatalf("book = %+v, want %+v", book, want)
	}
}

func TestParseBookDetailMissingTitle(t *testing.T) {
	_, err := ParseBookDetail([]byte("<html><body><p>nothing</p></body></html>"), baseURL)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Field != "title" {
		t.Fatalf("expected title ParseError, got %v", err)
	}
}

func TestPriceFromText(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{input: "£51.77", want: 51.77},
		{input: "  £10.50  ", want: 10.50},
		{input: "Â£0.00", want: 0},
		{input: "$7", want: 7},
		{input: "25.99", want: 25.99},
		{input: "", wantErr: true},
		{input: "£", wantErr: true},
		{input: "£-3.00", wantErr: true},
		{input: "free", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := PriceFromText(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("PriceFromText(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("PriceFromText(%q) = %v, %v, want %v", tt.input, got, err, tt.want)
			}
		})
	}
}

func TestRatingFromClass(t *testing.T) {
	tests := []struct {
		input string
		want  int
		ok    bool
	}{
		{input: "star-rating One", want: 1, ok: true},
		{input: "star-rating Two", want: 2, ok: true},
		{input: "star-rating Three", want: 3, ok: true},
		{input: "star-rating Four", want: 4, ok: true},
		{input: "star-rating Five", want: 5, ok: true},
		{input: "star-rating Zero"},
		{input: "star-rating three"},
		{input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := RatingFromClass(tt.input)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("RatingFromClass(%q) = %d, %v, want %d, %v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestAvailabilityFromText(t *testing.T) {
	tests := []struct {
		input   string
		inStock bool
		ok      bool
	}{
		{input: "  In stock (22 available)  ", inStock: true, ok: true},
		{input: "In stock", inStock: true, ok: true},
		{input: "Out of stock", inStock: false, ok: true},
		{input: "OUT OF\n STOCK", inStock: false, ok: true},
		{input: "3 available", inStock: true, ok: true},
		{input: "Currently unavailable", inStock: false, ok: true},
		{input: "", ok: false},
		{input: "Coming soon", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			inStock, ok := AvailabilityFromText(tt.input)
			if inStock != tt.inStock || ok != tt.ok {
				t.Fatalf("AvailabilityFromText(%q) = %v, %v, want %v, %v", tt.input, inStock, ok, tt.inStock, tt.ok)
			}
		})
	}
}

func TestValidateBook(t *testing.T) {
	valid := models.Book{
		Title:        "Test Book",
		Price:        10,
		Rating:       5,
		Availability: true,
		Category:     "Travel",
		URL:          "http://example.com/book",
	}

	tests := []struct {
		name    string
		mutate  func(*models.Book)
		wantErr bool
	}{
		{name: "valid book", mutate: func(*models.Book) {}},
		{name: "missing title", mutate: func(b *models.Book) { b.Title = "" }, wantErr: true},
		{name: "negative price", mutate: func(b *models.Book) { b.Price = -1 }, wantErr: true},
		{name: "rating too low", mutate: func(b *models.Book) { b.Rating = 0 }, wantErr: true},
		{name: "rating too high", mutate: func(b *models.Book) { b.Rating = 6 }, wantErr: true},
		{name: "missing category", mutate: func(b *models.Book) { b.Category = " " }, wantErr: true},
		{name: "relative url", mutate: func(b *models.Book) { b.URL = "book/1" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := valid
			tt.mutate(&book)
			err := ValidateBook(book)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateBook() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func listing(n int) string {
	var builder strings.Builder
	builder.WriteString("<html><body><section>")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&builder, `<article class="product_pod"><p class="star-rating Four"></p>`)
		fmt.Fprintf(&builder, `<h3><a href="catalogue/book-%d/index.html" title="Book %d">Book %d</a></h3>`, i, i, i)
		fmt.Fprintf(&builder, `<p class="price_color">£%d.50</p><p class="instock availability">In stock</p></article>`, i)
	}
	builder.WriteString("</section></body></html>")
	return builder.String()
}
