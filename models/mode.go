package models

import "fmt"

// Mode selects how a run traverses the catalog. Only Pages, All and
// Category implement it.
type Mode interface {
	fmt.Stringer
	mode()
}

// Pages scrapes the first N catalog pages.
type Pages struct {
	N int
}

// All scrapes every catalog page until the pager has no next link.
type All struct{}

// Category scrapes every page of one named category.
type Category struct {
	Name string
}

func (Pages) mode()    {}
func (All) mode()      {}
func (Category) mode() {}

func (p Pages) String() string    { return fmt.Sprintf("pages(%d)", p.N) }
func (All) String() string        { return "all" }
func (c Category) String() string { return fmt.Sprintf("category(%s)", c.Name) }
