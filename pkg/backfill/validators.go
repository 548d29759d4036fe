package backfill

type EnqueuePayload struct {
	Source   string `json:"source" validate:"required,oneof=GOOGLE_BOOKS OPEN_LIBRARY"`
	SourceID string `json:"source_id" validate:"required,max=64"`
	Priority int    `json:"priority" default:"5" validate:"min=1,max=10"`
}
