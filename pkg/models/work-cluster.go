package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ClusterMethodISBNPrefix  = "isbn_prefix"
	ClusterMethodCanonicalID = "canonical_id"
)

// WorkCluster groups books that are editions of the same work.
type WorkCluster struct {
	bun.BaseModel `bun:"table:work_clusters,alias:wc"`

	ID         string               `bun:",pk" json:"id"`
	CreatedAt  time.Time            `json:"created_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
	Method     string               `bun:",notnull" json:"method"`
	ClusterKey string               `bun:",notnull" json:"cluster_key"`
	Members    []*WorkClusterMember `bun:"rel:has-many,join:id=cluster_id" json:"members,omitempty"`
}

type WorkClusterMember struct {
	bun.BaseModel `bun:"table:work_cluster_members,alias:wcm"`

	ClusterID string    `bun:",pk" json:"cluster_id"`
	BookID    string    `bun:",pk" json:"book_id"`
	IsPrimary bool      `bun:",notnull" json:"is_primary"`
	JoinedAt  time.Time `json:"joined_at"`
	Book      *Book     `bun:"rel:belongs-to,join:book_id=id" json:"book,omitempty"`
}
