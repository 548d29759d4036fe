package openlibrary

import (
	"strings"

	"github.com/segmentio/encoding/json"
)

const searchFields = "key,title,subtitle,author_name,isbn,publisher,first_publish_year,number_of_pages_median,language,subject,cover_i,cover_edition_key,edition_key"

type searchResponse struct {
	NumFound int    `json:"numFound"`
	Docs     []*Doc `json:"docs"`
}

// Doc is a work level search result.
type Doc struct {
	Key                 string   `json:"key"`
	Title               string   `json:"title"`
	Subtitle            string   `json:"subtitle"`
	AuthorName          []string `json:"author_name"`
	ISBN                []string `json:"isbn"`
	Publisher           []string `json:"publisher"`
	FirstPublishYear    int      `json:"first_publish_year"`
	NumberOfPagesMedian int      `json:"number_of_pages_median"`
	Language            []string `json:"language"`
	Subject             []string `json:"subject"`
	CoverID             int      `json:"cover_i"`
	CoverEditionKey     string   `json:"cover_edition_key"`
	EditionKey          []string `json:"edition_key"`
}

type keyRef struct {
	Key string `json:"key"`
}

// Edition is a single published edition.
type Edition struct {
	Key                string      `json:"key"`
	Title              string      `json:"title"`
	Subtitle           string      `json:"subtitle"`
	Publishers         []string    `json:"publishers"`
	PublishDate        string      `json:"publish_date"`
	NumberOfPages      int         `json:"number_of_pages"`
	ISBN10             []string    `json:"isbn_10"`
	ISBN13             []string    `json:"isbn_13"`
	Authors            []keyRef    `json:"authors"`
	Works              []keyRef    `json:"works"`
	Covers             []int       `json:"covers"`
	Languages          []keyRef    `json:"languages"`
	Subjects           []string    `json:"subjects"`
	PhysicalDimensions string      `json:"physical_dimensions"`
	Description        description `json:"description"`

	// AuthorNames is filled in by the client from the author records.
	AuthorNames []string `json:"-"`
}

type authorRecord struct {
	Name string `json:"name"`
}

// description is either a plain string or a {"type", "value"} object.
type description string

func (d *description) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*d = description(s)
		return nil
	}
	var obj struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*d = description(obj.Value)
	return nil
}

// keyID returns the last path element of a key such as "/works/OL45883W".
func keyID(key string) string {
	return key[strings.LastIndexByte(key, '/')+1:]
}
