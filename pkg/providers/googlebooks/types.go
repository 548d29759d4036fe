package googlebooks

type volumesResponse struct {
	TotalItems int       `json:"totalItems"`
	Items      []*Volume `json:"items"`
}

type Volume struct {
	ID         string     `json:"id"`
	VolumeInfo VolumeInfo `json:"volumeInfo"`
	SaleInfo   SaleInfo   `json:"saleInfo"`
	AccessInfo AccessInfo `json:"accessInfo"`
}

type VolumeInfo struct {
	Title               string               `json:"title"`
	Subtitle            string               `json:"subtitle"`
	Authors             []string             `json:"authors"`
	Publisher           string               `json:"publisher"`
	PublishedDate       string               `json:"publishedDate"`
	Description         string               `json:"description"`
	IndustryIdentifiers []IndustryIdentifier `json:"industryIdentifiers"`
	PageCount           int                  `json:"pageCount"`
	PrintedPageCount    int                  `json:"printedPageCount"`
	Dimensions          struct {
		Height    string `json:"height"`
		Width     string `json:"width"`
		Thickness string `json:"thickness"`
	} `json:"dimensions"`
	Categories          []string          `json:"categories"`
	AverageRating       *float64          `json:"averageRating"`
	RatingsCount        *int              `json:"ratingsCount"`
	ImageLinks          map[string]string `json:"imageLinks"`
	Language            string            `json:"language"`
	PreviewLink         string            `json:"previewLink"`
	InfoLink            string            `json:"infoLink"`
	CanonicalVolumeLink string            `json:"canonicalVolumeLink"`
}

type IndustryIdentifier struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type Price struct {
	Amount       *float64 `json:"amount"`
	CurrencyCode string   `json:"currencyCode"`
}

type SaleInfo struct {
	Saleability string `json:"saleability"`
	IsEbook     *bool  `json:"isEbook"`
	ListPrice   *Price `json:"listPrice"`
	RetailPrice *Price `json:"retailPrice"`
}

type Availability struct {
	IsAvailable *bool `json:"isAvailable"`
}

type AccessInfo struct {
	Viewability   string        `json:"viewability"`
	Embeddable    *bool         `json:"embeddable"`
	PublicDomain  *bool         `json:"publicDomain"`
	EPUB          *Availability `json:"epub"`
	PDF           *Availability `json:"pdf"`
	WebReaderLink string        `json:"webReaderLink"`
}
