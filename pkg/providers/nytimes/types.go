package nytimes

import (
	"time"

	"github.com/canonbooks/canon/pkg/aggregate"
)

type listResponse struct {
	Status  string `json:"status"`
	Results struct {
		ListName        string     `json:"list_name"`
		ListNameEncoded string     `json:"list_name_encoded"`
		PublishedDate   string     `json:"published_date"`
		Books           []*rawBook `json:"books"`
	} `json:"results"`
}

type rawBook struct {
	Rank          int    `json:"rank"`
	WeeksOnList   int    `json:"weeks_on_list"`
	PrimaryISBN13 string `json:"primary_isbn13"`
	PrimaryISBN10 string `json:"primary_isbn10"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	Description   string `json:"description"`
	Publisher     string `json:"publisher"`
	BookImage     string `json:"book_image"`
	AmazonURL     string `json:"amazon_product_url"`
}

// List is one dated edition of a bestseller list.
type List struct {
	Name          string
	Code          string
	PublishedDate time.Time
	Entries       []*Entry
}

// Entry is a ranked book on a list. Aggregate is nil when the entry has
// nothing to store it by.
type Entry struct {
	Rank        int
	WeeksOnList int
	Aggregate   *aggregate.Aggregate
}

func (r *listResponse) toList(code string) *List {
	list := &List{
		Name: r.Results.ListName,
		Code: r.Results.ListNameEncoded,
	}
	if list.Code == "" {
		list.Code = code
	}
	if t, err := time.Parse("2006-01-02", r.Results.PublishedDate); err == nil {
		list.PublishedDate = t
	}
	for _, b := range r.Results.Books {
		list.Entries = append(list.Entries, &Entry{
			Rank:        b.Rank,
			WeeksOnList: b.WeeksOnList,
			Aggregate:   MapEntry(b),
		})
	}
	return list
}
