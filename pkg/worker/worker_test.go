package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/canonbooks/canon/pkg/bestsellers"
	"github.com/canonbooks/canon/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessJob_CompletesIngest(t *testing.T) {
	tc := newTestContext(t)
	tc.ingester.report = &bestsellers.IngestReport{
		List:          "hardcover-fiction",
		PublishedDate: "2026-10-11",
		Processed:     14,
		Failed:        1,
	}

	job := tc.createIngestJob("hardcover-fiction", models.JobStatusPending)
	tc.worker.processJob(job)

	got := tc.reload(job)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	require.NotNil(t, got.ProcessID)
	assert.Equal(t, processID, *got.ProcessID)

	data := got.DataParsed.(*models.JobBestsellerIngestData)
	assert.Equal(t, 14, data.Processed)
	assert.Equal(t, 1, data.Failed)
	assert.Equal(t, []string{"hardcover-fiction"}, tc.ingester.lists)
}

func TestProcessJob_FailureRecordsError(t *testing.T) {
	tc := newTestContext(t)
	tc.ingester.report = &bestsellers.IngestReport{Processed: 3}
	tc.ingester.err = errors.New("store unavailable")

	job := tc.createIngestJob("hardcover-fiction", models.JobStatusPending)
	tc.worker.processJob(job)

	got := tc.reload(job)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "store unavailable")
	assert.Equal(t, 3, got.DataParsed.(*models.JobBestsellerIngestData).Processed)
}

func TestProcessJob_MissingListFails(t *testing.T) {
	tc := newTestContext(t)

	job := tc.createIngestJob("", models.JobStatusPending)
	tc.worker.processJob(job)

	got := tc.reload(job)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Empty(t, tc.ingester.lists)
}

func TestProcessJob_UnknownTypeFails(t *testing.T) {
	tc := newTestContext(t)

	job := &models.Job{Type: "reindex", Status: models.JobStatusPending}
	require.NoError(t, tc.jobService.CreateJob(tc.ctx, job))
	tc.worker.processJob(job)

	got := tc.reload(job)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "unknown job type", *got.Error)
}

func TestWorker_PicksUpPendingJobs(t *testing.T) {
	tc := newTestContext(t)
	tc.ingester.report = &bestsellers.IngestReport{Processed: 1}
	tc.worker.fetchInterval = 10 * time.Millisecond

	job := tc.createIngestJob("hardcover-fiction", models.JobStatusPending)

	tc.worker.Start()
	defer tc.worker.Shutdown()

	assert.Eventually(t, func() bool {
		return tc.reload(job).Status == models.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_ShutdownWithSchedulerDisabled(t *testing.T) {
	tc := newTestContext(t)
	tc.worker.config.SyncIntervalMinutes = 0

	tc.worker.Start()

	// Give it a moment to start
	time.Sleep(50 * time.Millisecond)

	// Shutdown should complete without hanging
	done := make(chan struct{})
	go func() {
		tc.worker.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown timed out")
	}
}
