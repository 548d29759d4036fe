package jobs

import (
	"context"
	"database/sql"
	"testing"

	"github.com/canonbooks/canon/pkg/errcodes"
	"github.com/canonbooks/canon/pkg/migrations"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
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

	return db
}

func ingestJob(list, status string) *models.Job {
	return &models.Job{
		Type:       models.JobTypeBestsellerIngest,
		Status:     status,
		DataParsed: &models.JobBestsellerIngestData{List: list},
	}
}

func TestHasActiveJobByType_NoJobs(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	hasActive, err := svc.HasActiveJobByType(ctx, models.JobTypeBestsellerIngest)
	require.NoError(t, err)
	assert.False(t, hasActive)
}

func TestHasActiveJobByType_PendingJob(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	err := svc.CreateJob(ctx, ingestJob("hardcover-fiction", models.JobStatusPending))
	require.NoError(t, err)

	hasActive, err := svc.HasActiveJobByType(ctx, models.JobTypeBestsellerIngest)
	require.NoError(t, err)
	assert.True(t, hasActive)
}

func TestHasActiveJobByType_InProgressJob(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	err := svc.CreateJob(ctx, ingestJob("hardcover-fiction", models.JobStatusInProgress))
	require.NoError(t, err)

	hasActive, err := svc.HasActiveJobByType(ctx, models.JobTypeBestsellerIngest)
	require.NoError(t, err)
	assert.True(t, hasActive)
}

func TestHasActiveJobByType_CompletedJob(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	err := svc.CreateJob(ctx, ingestJob("hardcover-fiction", models.JobStatusCompleted))
	require.NoError(t, err)

	hasActive, err := svc.HasActiveJobByType(ctx, models.JobTypeBestsellerIngest)
	require.NoError(t, err)
	assert.False(t, hasActive)
}

func TestHasActiveIngestJob_PerList(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	require.NoError(t, svc.CreateJob(ctx, ingestJob("hardcover-fiction", models.JobStatusCompleted)))
	require.NoError(t, svc.CreateJob(ctx, ingestJob("hardcover-nonfiction", models.JobStatusPending)))

	hasActive, err := svc.HasActiveIngestJob(ctx, "hardcover-fiction")
	require.NoError(t, err)
	assert.False(t, hasActive)

	hasActive, err = svc.HasActiveIngestJob(ctx, "hardcover-nonfiction")
	require.NoError(t, err)
	assert.True(t, hasActive)
}

func TestRetrieveJob_ParsesData(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	job := ingestJob("hardcover-fiction", models.JobStatusPending)
	require.NoError(t, svc.CreateJob(ctx, job))

	got, err := svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	data, ok := got.DataParsed.(*models.JobBestsellerIngestData)
	require.True(t, ok)
	assert.Equal(t, "hardcover-fiction", data.List)

	missing := job.ID + 100
	_, err = svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &missing})
	var ec *errcodes.Error
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, 404, ec.HTTPCode)
}

func TestUpdateJob_PersistsDataAndStatus(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	job := ingestJob("hardcover-fiction", models.JobStatusPending)
	require.NoError(t, svc.CreateJob(ctx, job))

	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.DataParsed.(*models.JobBestsellerIngestData).Processed = 15
	require.NoError(t, svc.UpdateJob(ctx, job, UpdateJobOptions{
		Columns: []string{"status", "progress", "data"},
	}))

	got, err := svc.RetrieveJob(ctx, RetrieveJobOptions{ID: &job.ID})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, 15, got.DataParsed.(*models.JobBestsellerIngestData).Processed)
}

func TestListJobs_FiltersByStatusAndProcess(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	owned := ingestJob("a", models.JobStatusInProgress)
	processID := "proc-1"
	owned.ProcessID = &processID
	require.NoError(t, svc.CreateJob(ctx, owned))
	require.NoError(t, svc.CreateJob(ctx, ingestJob("b", models.JobStatusInProgress)))
	require.NoError(t, svc.CreateJob(ctx, ingestJob("c", models.JobStatusPending)))
	require.NoError(t, svc.CreateJob(ctx, ingestJob("d", models.JobStatusFailed)))

	jobs, total, err := svc.ListJobsWithTotal(ctx, ListJobsOptions{
		Statuses:           []string{models.JobStatusPending, models.JobStatusInProgress},
		ProcessIDToExclude: &processID,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, jobs, 2)
	assert.Equal(t, "b", jobs[0].DataParsed.(*models.JobBestsellerIngestData).List)
	assert.Equal(t, "c", jobs[1].DataParsed.(*models.JobBestsellerIngestData).List)
}
