// Package bestsellers ingests published bestseller lists into the store.
package bestsellers

import (
	"context"
	"time"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/backfill"
	"github.com/canonbooks/canon/pkg/books"
	"github.com/canonbooks/canon/pkg/database"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/canonbooks/canon/pkg/providers/nytimes"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
)

type ListFetcher interface {
	CurrentList(ctx context.Context, list string) (*nytimes.List, error)
}

type Upserter interface {
	Upsert(ctx context.Context, agg aggregate.Aggregate) (*books.UpsertResult, error)
}

type BackfillSeeder interface {
	EnqueueBook(book *models.Book, priority int) bool
}

// IngestReport summarizes one list ingest.
type IngestReport struct {
	List          string `json:"list"`
	PublishedDate string `json:"published_date"`
	Processed     int    `json:"processed"`
	Failed        int    `json:"failed"`
	Seeded        int    `json:"seeded"`
}

type Service struct {
	db          *bun.DB
	fetcher     ListFetcher
	upserter    Upserter
	bookService *books.Service
	backfill    BackfillSeeder
}

func NewService(db *bun.DB, fetcher ListFetcher, upserter Upserter, backfill BackfillSeeder) *Service {
	return &Service{
		db:          db,
		fetcher:     fetcher,
		upserter:    upserter,
		bookService: books.NewService(db),
		backfill:    backfill,
	}
}

// rankPriority puts the top of a list ahead of the tail in the backfill queue.
func rankPriority(rank int) int {
	p := 3 + (rank-1)/5
	if p < backfill.MinPriority {
		return backfill.MinPriority
	}
	if p > backfill.MaxPriority {
		return backfill.MaxPriority
	}
	return p
}

// IngestList fetches the current edition of a list and stores every entry.
// An unavailable store aborts the run; any other failure only fails the entry.
func (svc *Service) IngestList(ctx context.Context, list string) (*IngestReport, error) {
	log := logger.FromContext(ctx)

	current, err := svc.fetcher.CurrentList(ctx, list)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching list %s", list)
	}

	report := &IngestReport{List: current.Code}
	if !current.PublishedDate.IsZero() {
		report.PublishedDate = current.PublishedDate.Format(time.DateOnly)
	}

	for _, entry := range current.Entries {
		if entry.Aggregate == nil {
			report.Failed++
			continue
		}

		result, err := svc.upserter.Upsert(ctx, *entry.Aggregate)
		if err != nil {
			if database.IsSystemicFailure(err) {
				return report, errors.Wrap(err, "store unavailable, aborting list ingest")
			}
			log.Warn("bestseller entry failed", logger.Data{
				"list":   current.Code,
				"rank":   entry.Rank,
				"title":  entry.Aggregate.Title,
				"isbn13": entry.Aggregate.ISBN13,
				"error":  err.Error(),
			})
			report.Failed++
			continue
		}

		if err := svc.recordEntry(ctx, report, entry, result.BookID); err != nil {
			if database.IsSystemicFailure(err) {
				return report, errors.Wrap(err, "store unavailable, aborting list ingest")
			}
			log.Warn("recording bestseller entry failed", logger.Data{"book_id": result.BookID, "error": err.Error()})
			report.Failed++
			continue
		}
		report.Processed++

		if svc.backfill != nil {
			book, err := svc.bookService.RetrieveBook(ctx, books.RetrieveBookOptions{ID: &result.BookID})
			if err != nil {
				log.Warn("loading ingested book failed", logger.Data{"book_id": result.BookID, "error": err.Error()})
				continue
			}
			if svc.backfill.EnqueueBook(book, rankPriority(entry.Rank)) {
				report.Seeded++
			}
		}
	}

	log.Info("ingested bestseller list", logger.Data{
		"list":           report.List,
		"published_date": report.PublishedDate,
		"processed":      report.Processed,
		"failed":         report.Failed,
		"seeded":         report.Seeded,
	})
	return report, nil
}

func (svc *Service) recordEntry(ctx context.Context, report *IngestReport, entry *nytimes.Entry, bookID string) error {
	row := &models.BestsellerEntry{
		ListCode:      report.List,
		PublishedDate: report.PublishedDate,
		BookID:        bookID,
		CreatedAt:     time.Now(),
		Rank:          entry.Rank,
		WeeksOnList:   entry.WeeksOnList,
	}
	_, err := svc.db.NewInsert().
		Model(row).
		On("CONFLICT (list_code, published_date, book_id) DO UPDATE").
		Set("rank = EXCLUDED.rank").
		Set("weeks_on_list = EXCLUDED.weeks_on_list").
		Exec(ctx)
	return errors.WithStack(err)
}

// ListEntries returns the stored entries of one list edition in rank order.
func (svc *Service) ListEntries(ctx context.Context, listCode, publishedDate string) ([]*models.BestsellerEntry, error) {
	entries := []*models.BestsellerEntry{}
	err := svc.db.NewSelect().
		Model(&entries).
		Relation("Book").
		Where("ble.list_code = ?", listCode).
		Where("ble.published_date = ?", publishedDate).
		Order("ble.rank ASC").
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return entries, nil
}
