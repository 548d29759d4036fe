// Package clusters groups books that are editions of the same work, either
// by a shared ISBN prefix or by a shared provider canonical id.
package clusters

import (
	"context"
	"database/sql"
	"time"

	"github.com/canonbooks/canon/pkg/database"
	"github.com/canonbooks/canon/pkg/errcodes"
	"github.com/canonbooks/canon/pkg/identifiers"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

type ListClustersOptions struct {
	BookID *string
	Method *string
}

type Service struct {
	db     *bun.DB
	locker *database.Locker
	now    func() time.Time
}

func NewService(db *bun.DB, locker *database.Locker) *Service {
	return &Service{db: db, locker: locker, now: time.Now}
}

// ClusterBook runs every clustering method for a book. Each method is
// independent, so one failing doesn't stop the other.
func (svc *Service) ClusterBook(ctx context.Context, book *models.Book) error {
	log := logger.FromContext(ctx)
	var firstErr error

	if book.ISBN13 != nil {
		if _, err := svc.ClusterByISBNPrefix(ctx, *book.ISBN13); err != nil {
			log.Warn("isbn prefix clustering failed", logger.Data{"book_id": book.ID, "error": err.Error()})
			firstErr = err
		}
	}

	var canonicalIDs []string
	err := svc.db.NewSelect().
		Model((*models.ExternalIdentifier)(nil)).
		Column("canonical_external_id").
		Where("book_id = ?", book.ID).
		Where("canonical_external_id IS NOT NULL").
		Scan(ctx, &canonicalIDs)
	if err != nil {
		return errors.WithStack(err)
	}
	for _, id := range canonicalIDs {
		if _, err := svc.ClusterByCanonicalID(ctx, id); err != nil {
			log.Warn("canonical id clustering failed", logger.Data{"book_id": book.ID, "canonical_id": id, "error": err.Error()})
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// ClusterByISBNPrefix clusters every book whose ISBN-13 shares the edition
// prefix of isbn13. It returns nil when fewer than two books share it.
func (svc *Service) ClusterByISBNPrefix(ctx context.Context, isbn13 string) (*models.WorkCluster, error) {
	prefix := identifiers.EditionPrefix(isbn13, "")
	if prefix == "" {
		return nil, nil
	}

	var bookIDs []string
	err := svc.db.NewSelect().
		Model((*models.Book)(nil)).
		Column("b.id").
		Where("b.isbn13 LIKE ?", prefix+"%").
		Order("b.created_at ASC", "b.id ASC").
		Scan(ctx, &bookIDs)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return svc.cluster(ctx, models.ClusterMethodISBNPrefix, prefix, bookIDs)
}

// ClusterByCanonicalID clusters every book with an external record pointing
// at the same provider canonical id.
func (svc *Service) ClusterByCanonicalID(ctx context.Context, canonicalID string) (*models.WorkCluster, error) {
	if canonicalID == "" {
		return nil, nil
	}

	var bookIDs []string
	err := svc.db.NewSelect().
		Model((*models.Book)(nil)).
		Column("b.id").
		Where("b.id IN (?)", svc.db.NewSelect().
			Model((*models.ExternalIdentifier)(nil)).
			Column("book_id").
			Where("canonical_external_id = ?", canonicalID)).
		Order("b.created_at ASC", "b.id ASC").
		Scan(ctx, &bookIDs)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return svc.cluster(ctx, models.ClusterMethodCanonicalID, canonicalID, bookIDs)
}

// cluster makes sure a cluster exists for (method, key) containing every book
// in bookIDs, which must be ordered oldest first. An existing primary is
// kept; otherwise the oldest book becomes primary.
func (svc *Service) cluster(ctx context.Context, method, key string, bookIDs []string) (*models.WorkCluster, error) {
	if len(bookIDs) < 2 {
		return nil, nil
	}

	cluster := &models.WorkCluster{}
	lockKey := database.LockKey("cluster:" + method + ":" + key)
	err := svc.locker.RunInTx(ctx, lockKey, func(ctx context.Context, tx bun.Tx) error {
		now := svc.now()

		err := tx.NewSelect().
			Model(cluster).
			Where("wc.method = ?", method).
			Where("wc.cluster_key = ?", key).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			id, err := uuid.NewV7()
			if err != nil {
				return errors.WithStack(err)
			}
			cluster = &models.WorkCluster{
				ID:         id.String(),
				CreatedAt:  now,
				UpdatedAt:  now,
				Method:     method,
				ClusterKey: key,
			}
			if _, err := tx.NewInsert().Model(cluster).Exec(ctx); err != nil {
				return errors.WithStack(err)
			}
		} else if err != nil {
			return errors.WithStack(err)
		}

		var members []*models.WorkClusterMember
		err = tx.NewSelect().
			Model(&members).
			Where("wcm.cluster_id = ?", cluster.ID).
			Scan(ctx)
		if err != nil {
			return errors.WithStack(err)
		}

		existing := make(map[string]*models.WorkClusterMember, len(members))
		hasPrimary := false
		for _, m := range members {
			existing[m.BookID] = m
			hasPrimary = hasPrimary || m.IsPrimary
		}

		for i, bookID := range bookIDs {
			makePrimary := !hasPrimary && i == 0
			if m, ok := existing[bookID]; ok {
				if makePrimary {
					m.IsPrimary = true
					_, err := tx.NewUpdate().Model(m).Column("is_primary").WherePK().Exec(ctx)
					if err != nil {
						return errors.WithStack(err)
					}
				}
				continue
			}
			m := &models.WorkClusterMember{
				ClusterID: cluster.ID,
				BookID:    bookID,
				IsPrimary: makePrimary,
				JoinedAt:  now,
			}
			if _, err := tx.NewInsert().Model(m).Exec(ctx); err != nil {
				return errors.WithStack(err)
			}
		}

		cluster.UpdatedAt = now
		_, err = tx.NewUpdate().Model(cluster).Column("updated_at").WherePK().Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return svc.RetrieveCluster(ctx, cluster.ID)
}

func (svc *Service) RetrieveCluster(ctx context.Context, id string) (*models.WorkCluster, error) {
	cluster := &models.WorkCluster{}
	err := svc.db.NewSelect().
		Model(cluster).
		Relation("Members", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("wcm.is_primary DESC", "wcm.joined_at ASC")
		}).
		Relation("Members.Book").
		Where("wc.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Cluster")
		}
		return nil, errors.WithStack(err)
	}
	return cluster, nil
}

func (svc *Service) ListClusters(ctx context.Context, opts ListClustersOptions) ([]*models.WorkCluster, error) {
	clusters := []*models.WorkCluster{}
	q := svc.db.NewSelect().
		Model(&clusters).
		Relation("Members", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("wcm.is_primary DESC", "wcm.joined_at ASC")
		}).
		Order("wc.created_at ASC")
	if opts.BookID != nil {
		q = q.Where("wc.id IN (?)", svc.db.NewSelect().
			Model((*models.WorkClusterMember)(nil)).
			Column("cluster_id").
			Where("book_id = ?", *opts.BookID))
	}
	if opts.Method != nil {
		q = q.Where("wc.method = ?", *opts.Method)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return clusters, nil
}

// PrimaryFor maps each given book that is a non-primary cluster member to its
// cluster's primary. Books outside any cluster, or primaries themselves, are
// absent from the result. Canonical id clusters take precedence over ISBN
// prefix clusters.
func (svc *Service) PrimaryFor(ctx context.Context, bookIDs []string) (map[string]string, error) {
	out := map[string]string{}
	if len(bookIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		BookID    string `bun:"book_id"`
		PrimaryID string `bun:"primary_id"`
	}
	err := svc.db.NewSelect().
		TableExpr("work_cluster_members AS m").
		ColumnExpr("m.book_id, p.book_id AS primary_id").
		Join("JOIN work_clusters AS wc ON wc.id = m.cluster_id").
		Join("JOIN work_cluster_members AS p ON p.cluster_id = m.cluster_id AND p.is_primary = ?", true).
		Where("m.book_id IN (?)", bun.In(bookIDs)).
		Where("m.is_primary = ?", false).
		OrderExpr("CASE WHEN wc.method = ? THEN 0 ELSE 1 END", models.ClusterMethodCanonicalID).
		Scan(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	for _, r := range rows {
		if _, ok := out[r.BookID]; !ok {
			out[r.BookID] = r.PrimaryID
		}
	}
	return out, nil
}
