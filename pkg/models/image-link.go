package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Image size names as used by providers' image-link maps.
const (
	ImageSizeSmallThumbnail = "smallThumbnail"
	ImageSizeThumbnail      = "thumbnail"
	ImageSizeSmall          = "small"
	ImageSizeMedium         = "medium"
	ImageSizeLarge          = "large"
	ImageSizeExtraLarge     = "extraLarge"
)

type ImageLink struct {
	bun.BaseModel `bun:"table:book_image_links,alias:bil"`

	ID               string    `bun:",pk" json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	BookID           string    `bun:",notnull" json:"book_id"`
	Size             string    `bun:",notnull" json:"size"`
	URL              string    `bun:"url,notnull" json:"url"`
	Source           string    `bun:",notnull" json:"source"`
	Width            *int      `json:"width,omitempty"`
	Height           *int      `json:"height,omitempty"`
	IsHighResolution bool      `bun:",notnull" json:"is_high_resolution"`
	// StoragePath is set once the cover pipeline has a durable CDN copy.
	StoragePath *string `json:"storage_path,omitempty"`
}
