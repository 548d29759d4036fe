package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Dimensions struct {
	bun.BaseModel `bun:"table:book_dimensions,alias:bd"`

	BookID      string    `bun:",pk" json:"-"`
	UpdatedAt   time.Time `json:"updated_at"`
	Height      *string   `json:"height,omitempty"`
	Width       *string   `json:"width,omitempty"`
	Thickness   *string   `json:"thickness,omitempty"`
	HeightCM    *float64  `bun:"height_cm" json:"height_cm,omitempty"`
	WidthCM     *float64  `bun:"width_cm" json:"width_cm,omitempty"`
	ThicknessCM *float64  `bun:"thickness_cm" json:"thickness_cm,omitempty"`
}
