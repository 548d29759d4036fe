package books

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/canonbooks/canon/pkg/aggregate"
	"github.com/canonbooks/canon/pkg/database"
	"github.com/canonbooks/canon/pkg/events"
	"github.com/canonbooks/canon/pkg/migrations"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	// Every connection to :memory: is a separate database.
	return openTestDB(t, ":memory:", 1)
}

// newFileTestDB opens a file-backed database that allows several connections,
// so concurrent transactions really run side by side.
func newFileTestDB(t *testing.T, conns int) *bun.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "canon.db")
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_busy_timeout=5000"
	return openTestDB(t, dsn, conns)
}

func openTestDB(t *testing.T, dsn string, conns int) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(conns)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.BookChanged
}

func (s *recordingSink) BookChanged(_ context.Context, evt events.BookChanged) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

type recordingClusterer struct {
	mu    sync.Mutex
	books []string
}

func (c *recordingClusterer) ClusterBook(_ context.Context, book *models.Book) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books = append(c.books, book.ID)
	return nil
}

type testEngine struct {
	db        *bun.DB
	engine    *UpsertEngine
	sink      *recordingSink
	clusterer *recordingClusterer
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()
	return newTestEngineOn(newTestDB(t))
}

func newTestEngineOn(db *bun.DB) *testEngine {
	sink := &recordingSink{}
	clusterer := &recordingClusterer{}
	return &testEngine{
		db:        db,
		engine:    NewUpsertEngine(db, database.NewLocker(db), clusterer, sink),
		sink:      sink,
		clusterer: clusterer,
	}
}

func testContext() context.Context {
	return logger.New().WithContext(context.Background())
}

func deathlyHallows() aggregate.Aggregate {
	return aggregate.Aggregate{
		Title:     "Harry Potter and the Deathly Hallows",
		ISBN13:    "978-0-545-01022-1",
		Publisher: "Scholastic",
		PageCount: 759,
		Authors:   []string{"J. K. Rowling"},
		External: aggregate.ExternalIdentifiers{
			Source:     models.SourceGoogleBooks,
			ExternalID: "GZAoAQAAIAAJ",
			ImageLinks: map[string]string{
				models.ImageSizeThumbnail: "http://books.google.com/thumb?id=GZAoAQAAIAAJ",
			},
		},
	}
}

func countRows(t *testing.T, db *bun.DB, model interface{}) int {
	t.Helper()
	n, err := db.NewSelect().Model(model).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestUpsert_CreatesBook(t *testing.T) {
	te := newTestEngine(t)
	ctx := testContext()

	result, err := te.engine.Upsert(ctx, deathlyHallows())
	require.NoError(t, err)
	assert.True(t, result.IsNew)
	assert.Equal(t, MatchNone, result.Match)
	assert.Equal(t, "harry-potter-and-the-deathly-hallows-j-k-rowling", result.Slug)

	book, err := NewService(te.db).RetrieveBook(ctx, RetrieveBookOptions{ID: &result.BookID})
	require.NoError(t, err)
	require.NotNil(t, book.ISBN13)
	assert.Equal(t, "9780545010221", *book.ISBN13)
	require.NotNil(t, book.ISBN10)
	assert.Equal(t, "0545010225", *book.ISBN10, "isbn-10 is derived from a 978 isbn-13")
	assert.Equal(t, []string{"J. K. Rowling"}, book.AuthorNames())
	require.Len(t, book.ExternalIDs, 1)
	assert.Equal(t, "GZAoAQAAIAAJ", book.ExternalIDs[0].ExternalID)
	require.Len(t, book.ImageLinks, 1)
	assert.Equal(t, "https://books.google.com/thumb?id=GZAoAQAAIAAJ", book.ImageLinks[0].URL)

	assert.Equal(t, []string{result.BookID}, te.clusterer.books)
	require.Len(t, te.sink.events, 1)
	assert.True(t, te.sink.events[0].IsNew)
	require.NotNil(t, te.sink.events[0].CanonicalImageURL)
}

func TestUpsert_IsIdempotent(t *testing.T) {
	te := newTestEngine(t)
	ctx := testContext()

	first, err := te.engine.Upsert(ctx, deathlyHallows())
	require.NoError(t, err)
	second, err := te.engine.Upsert(ctx, deathlyHallows())
	require.NoError(t, err)

	assert.Equal(t, first.BookID, second.BookID)
	assert.Equal(t, first.Slug, second.Slug)
	assert.False(t, second.IsNew)
	assert.Equal(t, MatchExternalID, second.Match)

	assert.Equal(t, 1, countRows(t, te.db, (*models.Book)(nil)))
	assert.Equal(t, 1, countRows(t, te.db, (*models.ExternalIdentifier)(nil)))
	assert.Equal(t, 1, countRows(t, te.db, (*models.BookAuthor)(nil)))
	assert.Equal(t, 1, countRows(t, te.db, (*models.ImageLink)(nil)))
	// Clustering only runs for new books.
	assert.Len(t, te.clusterer.books, 1)
	assert.Len(t, te.sink.events, 2)
}

func TestUpsert_ISBNFormattingResolvesToSameBook(t *testing.T) {
	te := newTestEngine(t)
	ctx := testContext()

	first, err := te.engine.Upsert(ctx, aggregate.Aggregate{
		Title:  "Harry Potter and the Deathly Hallows",
		ISBN13: "978-0-545-01022-1",
	})
	require.NoError(t, err)

	second, err := te.engine.Upsert(ctx, aggregate.Aggregate{
		Title:  "Harry Potter and the Deathly Hallows",
		ISBN10: "0-545-01022-5",
		External: aggregate.ExternalIdentifiers{
			Source:     models.SourceOpenLibrary,
			ExternalID: "OL9999999M",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, first.BookID, second.BookID)
	assert.Equal(t, MatchISBN13, second.Match, "isbn-10 payloads are converted before lookup")
	assert.Equal(t, 1, countRows(t, te.db, (*models.Book)(nil)))
}

func TestUpsert_DoesNotDowngradeFields(t *testing.T) {
	te := newTestEngine(t)
	ctx := testContext()

	first, err := te.engine.Upsert(ctx, deathlyHallows())
	require.NoError(t, err)

	sparse := deathlyHallows()
	sparse.Publisher = ""
	sparse.PageCount = 0
	sparse.Authors = nil
	sparse.Description = "A short description."
	_, err = te.engine.Upsert(ctx, sparse)
	require.NoError(t, err)

	book, err := NewService(te.db).RetrieveBook(ctx, RetrieveBookOptions{ID: &first.BookID})
	require.NoError(t, err)
	require.NotNil(t, book.Publisher)
	assert.Equal(t, "Scholastic", *book.Publisher)
	require.NotNil(t, book.PageCount)
	assert.Equal(t, 759, *book.PageCount)
	assert.Equal(t, []string{"J. K. Rowling"}, book.AuthorNames())
	require.NotNil(t, book.Description)
	assert.Equal(t, "A short description.", *book.Description)
}

func TestUpsert_BlankTitleIsRejected(t *testing.T) {
	te := newTestEngine(t)

	agg := deathlyHallows()
	agg.Title = "   "
	_, err := te.engine.Upsert(testContext(), agg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, countRows(t, te.db, (*models.Book)(nil)))
	assert.Empty(t, te.sink.events)
}

func TestUpsert_ConcurrentWritesForSameISBNCreateOneBook(t *testing.T) {
	const writers = 10
	// One connection per writer so the transactions run side by side.
	te := newTestEngineOn(newFileTestDB(t, writers))
	ctx := testContext()

	results := make([]*UpsertResult, writers)
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agg := aggregate.Aggregate{
				Title:  "Harry Potter and the Deathly Hallows",
				ISBN13: "9780545010221",
			}
			// Alternate formatting so the lock key normalization is exercised.
			if i%2 == 1 {
				agg.ISBN13 = ""
				agg.ISBN10 = "0545010225"
			}
			results[i], errs[i] = te.engine.Upsert(ctx, agg)
		}(i)
	}
	wg.Wait()

	newCount := 0
	for i := 0; i < writers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].BookID, results[i].BookID)
		if results[i].IsNew {
			newCount++
		}
	}
	assert.Equal(t, 1, newCount)
	assert.Equal(t, 1, countRows(t, te.db, (*models.Book)(nil)))
}

func TestUpsert_SlugIsStableAndSuffixedOnCollision(t *testing.T) {
	te := newTestEngine(t)
	ctx := testContext()

	first, err := te.engine.Upsert(ctx, aggregate.Aggregate{
		Title:   "Emma",
		Authors: []string{"Jane Austen"},
		ISBN13:  "9780141439587",
	})
	require.NoError(t, err)
	assert.Equal(t, "emma-jane-austen", first.Slug)

	second, err := te.engine.Upsert(ctx, aggregate.Aggregate{
		Title:   "Emma",
		Authors: []string{"Jane Austen"},
		ISBN13:  "9781503290563",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.BookID, second.BookID)
	assert.Equal(t, "emma-jane-austen-2", second.Slug)

	again, err := te.engine.Upsert(ctx, aggregate.Aggregate{
		Title:    "Emma",
		Subtitle: "Penguin Classics",
		Authors:  []string{"Jane Austen", "Fiona Stafford"},
		ISBN13:   "9780141439587",
	})
	require.NoError(t, err)
	assert.Equal(t, first.BookID, again.BookID)
	assert.Equal(t, "emma-jane-austen", again.Slug)
}

func TestUpsert_ISBNOwnedByAnotherBookIsAConflict(t *testing.T) {
	te := newTestEngine(t)
	ctx := testContext()

	owner, err := te.engine.Upsert(ctx, deathlyHallows())
	require.NoError(t, err)

	other, err := te.engine.Upsert(ctx, aggregate.Aggregate{
		Title: "Harry Potter and the Deathly Hallows (Large Print)",
		External: aggregate.ExternalIdentifiers{
			Source:     models.SourceOpenLibrary,
			ExternalID: "OL1234M",
		},
	})
	require.NoError(t, err)
	require.NotEqual(t, owner.BookID, other.BookID)

	// The external id resolves first, then the ISBN can't be moved over.
	result, err := te.engine.Upsert(ctx, aggregate.Aggregate{
		Title:  "Harry Potter and the Deathly Hallows (Large Print)",
		ISBN13: "9780545010221",
		External: aggregate.ExternalIdentifiers{
			Source:     models.SourceOpenLibrary,
			ExternalID: "OL1234M",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, other.BookID, result.BookID)
	assert.Equal(t, MatchExternalID, result.Match)
	assert.True(t, result.IdentityConflict)

	book, err := NewService(te.db).RetrieveBook(ctx, RetrieveBookOptions{ID: &other.BookID})
	require.NoError(t, err)
	assert.Nil(t, book.ISBN13)
}

func TestUpsert_ResolvesThroughEditionCluster(t *testing.T) {
	te := newTestEngine(t)
	ctx := testContext()

	base, err := te.engine.Upsert(ctx, aggregate.Aggregate{
		Title:  "Harry Potter and the Deathly Hallows",
		ISBN13: "9780545010221",
		External: aggregate.ExternalIdentifiers{
			Source:     models.SourceOpenLibrary,
			ExternalID: "OL1M",
		},
	})
	require.NoError(t, err)

	now := time.Now()
	cluster := &models.WorkCluster{
		ID:         "cluster-1",
		CreatedAt:  now,
		UpdatedAt:  now,
		Method:     models.ClusterMethodISBNPrefix,
		ClusterKey: "97805450102",
	}
	_, err = te.db.NewInsert().Model(cluster).Exec(ctx)
	require.NoError(t, err)
	_, err = te.db.NewInsert().Model(&models.WorkClusterMember{
		ClusterID: cluster.ID,
		BookID:    base.BookID,
		IsPrimary: true,
		JoinedAt:  now,
	}).Exec(ctx)
	require.NoError(t, err)

	viaCluster, err := te.engine.Upsert(ctx, aggregate.Aggregate{
		Title:  "Harry Potter and the Deathly Hallows",
		ISBN13: "9780545010238",
		External: aggregate.ExternalIdentifiers{
			Source:     models.SourceGoogleBooks,
			ExternalID: "vol-1",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, base.BookID, viaCluster.BookID)
	assert.Equal(t, MatchCluster, viaCluster.Match)

	// The member now carries a Google record, so another Google edition in
	// the same cluster is a separate book.
	distinct, err := te.engine.Upsert(ctx, aggregate.Aggregate{
		Title:  "Harry Potter and the Deathly Hallows",
		ISBN13: "9780545010245",
		External: aggregate.ExternalIdentifiers{
			Source:     models.SourceGoogleBooks,
			ExternalID: "vol-2",
		},
	})
	require.NoError(t, err)
	assert.True(t, distinct.IsNew)
	assert.Equal(t, MatchNone, distinct.Match)
}

func TestUpsert_ReplacesImageOnlyWhenStrictlyBetter(t *testing.T) {
	te := newTestEngine(t)
	ctx := testContext()

	first, err := te.engine.Upsert(ctx, deathlyHallows())
	require.NoError(t, err)

	same := deathlyHallows()
	same.External.ImageLinks = map[string]string{
		models.ImageSizeThumbnail: "https://covers.example.com/other.jpg",
	}
	_, err = te.engine.Upsert(ctx, same)
	require.NoError(t, err)

	var img models.ImageLink
	err = te.db.NewSelect().Model(&img).Where("book_id = ?", first.BookID).Where("size = ?", models.ImageSizeThumbnail).Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://books.google.com/thumb?id=GZAoAQAAIAAJ", img.URL, "an equal score keeps the stored image")

	// A measured tiny image loses to the estimate for the size.
	w, h := 10, 10
	img.Width, img.Height = &w, &h
	_, err = te.db.NewUpdate().Model(&img).Column("width", "height").WherePK().Exec(ctx)
	require.NoError(t, err)

	_, err = te.engine.Upsert(ctx, same)
	require.NoError(t, err)
	err = te.db.NewSelect().Model(&img).WherePK().Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://covers.example.com/other.jpg", img.URL)
	assert.Nil(t, img.Width)
}

func TestUpsert_WritesCategoriesAndDimensions(t *testing.T) {
	te := newTestEngine(t)
	ctx := testContext()

	agg := deathlyHallows()
	agg.Categories = []string{"Juvenile Fiction", "Fantasy"}
	agg.Dimensions = aggregate.Dimensions{Height: "24.00 cm", Width: "6 in"}
	result, err := te.engine.Upsert(ctx, agg)
	require.NoError(t, err)

	agg.Categories = []string{"fantasy", "Magic"}
	_, err = te.engine.Upsert(ctx, agg)
	require.NoError(t, err)

	book, err := NewService(te.db).RetrieveBook(ctx, RetrieveBookOptions{ID: &result.BookID})
	require.NoError(t, err)
	assert.Len(t, book.Categories, 3)
	require.NotNil(t, book.Dimensions)
	require.NotNil(t, book.Dimensions.HeightCM)
	assert.InDelta(t, 24.0, *book.Dimensions.HeightCM, 0.001)
	require.NotNil(t, book.Dimensions.WidthCM)
	assert.InDelta(t, 15.24, *book.Dimensions.WidthCM, 0.001)
	assert.Nil(t, book.Dimensions.ThicknessCM)
}
