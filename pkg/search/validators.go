package search

import "github.com/canonbooks/canon/pkg/models"

type SearchQuery struct {
	Query string `query:"q" json:"q" validate:"required,min=1,max=100"`
	Limit int    `query:"limit" json:"limit,omitempty" default:"10" validate:"min=1,max=40"`
}

type SearchResponse struct {
	QueryHash string         `json:"query_hash"`
	Results   []*models.Book `json:"results"`
	Total     int            `json:"total"`
}
