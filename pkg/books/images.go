package books

import (
	"github.com/canonbooks/canon/pkg/models"
)

// estimatedDimensions are typical pixel sizes for each provider size name,
// used when the actual dimensions of an image aren't known.
var estimatedDimensions = map[string][2]int{
	models.ImageSizeSmallThumbnail: {80, 128},
	models.ImageSizeThumbnail:      {128, 192},
	models.ImageSizeSmall:          {300, 480},
	models.ImageSizeMedium:         {575, 920},
	models.ImageSizeLarge:          {800, 1280},
	models.ImageSizeExtraLarge:     {1280, 2048},
}

// isHighResolutionSize reports whether providers serve the size at print
// resolution.
func isHighResolutionSize(size string) bool {
	return size == models.ImageSizeLarge || size == models.ImageSizeExtraLarge
}

// imageQuality scores an image link: its pixel area, doubled for high
// resolution images and tripled when a durable copy is stored.
func imageQuality(img *models.ImageLink) int64 {
	var area int64
	if img.Width != nil && img.Height != nil && *img.Width > 0 && *img.Height > 0 {
		area = int64(*img.Width) * int64(*img.Height)
	} else if dims, ok := estimatedDimensions[img.Size]; ok {
		area = int64(dims[0]) * int64(dims[1])
	} else {
		area = 1
	}

	score := area
	if img.IsHighResolution {
		score *= 2
	}
	if img.StoragePath != nil && *img.StoragePath != "" {
		score *= 3
	}
	return score
}

// bestImage returns the highest quality image link, preferring the durable
// copy's path over the provider URL.
func bestImage(images []*models.ImageLink) *string {
	var best *models.ImageLink
	for _, img := range images {
		if best == nil || imageQuality(img) > imageQuality(best) {
			best = img
		}
	}
	if best == nil {
		return nil
	}
	if best.StoragePath != nil && *best.StoragePath != "" {
		return best.StoragePath
	}
	u := best.URL
	return &u
}
