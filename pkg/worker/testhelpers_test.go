package worker

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/canonbooks/canon/pkg/bestsellers"
	"github.com/canonbooks/canon/pkg/config"
	"github.com/canonbooks/canon/pkg/jobs"
	"github.com/canonbooks/canon/pkg/migrations"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/robinjoseph08/golib/logger"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type fakeIngester struct {
	mu     sync.Mutex
	lists  []string
	report *bestsellers.IngestReport
	err    error
}

func (f *fakeIngester) IngestList(_ context.Context, list string) (*bestsellers.IngestReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists = append(f.lists, list)
	return f.report, f.err
}

// testContext holds all the dependencies needed for testing the worker.
type testContext struct {
	t          *testing.T
	ctx        context.Context
	db         *bun.DB
	worker     *Worker
	jobService *jobs.Service
	ingester   *fakeIngester
}

// newTestContext creates a worker backed by an in-memory SQLite database and
// a fake ingester.
func newTestContext(t *testing.T) *testContext {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	cfg := config.NewForTest()
	cfg.WorkerProcesses = 1
	cfg.BestsellerLists = "hardcover-fiction, hardcover-nonfiction"

	ingester := &fakeIngester{}
	w := New(cfg, db, ingester)

	return &testContext{
		t:          t,
		ctx:        logger.New().WithContext(context.Background()),
		db:         db,
		worker:     w,
		jobService: w.jobService,
		ingester:   ingester,
	}
}

func (tc *testContext) createIngestJob(list, status string) *models.Job {
	tc.t.Helper()

	job := &models.Job{
		Type:       models.JobTypeBestsellerIngest,
		Status:     status,
		DataParsed: &models.JobBestsellerIngestData{List: list},
	}
	require.NoError(tc.t, tc.jobService.CreateJob(tc.ctx, job))
	return job
}

func (tc *testContext) reload(job *models.Job) *models.Job {
	tc.t.Helper()

	got, err := tc.jobService.RetrieveJob(tc.ctx, jobs.RetrieveJobOptions{ID: &job.ID})
	require.NoError(tc.t, err)
	return got
}
