package catalog

import (
	"github.com/aluiziolira/books-catalog/models"
	"github.com/aluiziolira/books-catalog/parser"
)

type stopReason string

const (
	stopContinue          stopReason = "continue"
	stopPageLimit         stopReason = "page_limit"
	stopLastPage          stopReason = "last_page"
	stopCategoryExhausted stopReason = "category_exhausted"
	stopFailed            stopReason = "failed"
)

// crawlState is owned by a single Run and discarded when it returns.
type crawlState struct {
	pageIndex int
	maxPages  int // zero means follow the pager to the end
	category  string
	nextURL   string
	books     []models.Book
	stop      stopReason
}

func newCrawlState(firstURL string, maxPages int, category string) *crawlState {
	return &crawlState{
		maxPages: maxPages,
		category: category,
		nextURL:  firstURL,
		books:    make([]models.Book, 0),
		stop:     stopContinue,
	}
}

// advance computes the stop condition after a page was accumulated.
func (s *crawlState) advance(info parser.PageInfo) {
	switch {
	case s.maxPages > 0 && s.pageIndex >= s.maxPages:
		s.stop = stopPageLimit
	case !info.HasNext() && s.category != "":
		s.stop = stopCategoryExhausted
	case !info.HasNext():
		s.stop = stopLastPage
	default:
		s.nextURL = info.NextURL
	}
}
