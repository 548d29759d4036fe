package clusters

type ListClustersQuery struct {
	BookID *string `query:"book_id" json:"book_id,omitempty" validate:"omitempty,max=64"`
	Method *string `query:"method" json:"method,omitempty" validate:"omitempty,oneof=isbn_prefix canonical_id"`
}
