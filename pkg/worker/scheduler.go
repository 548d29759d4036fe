package worker

import (
	"context"
	"time"

	"github.com/canonbooks/canon/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

func (w *Worker) runScheduler() {
	interval := time.Duration(w.config.SyncIntervalMinutes) * time.Minute
	if interval <= 0 || w.config.BestsellerSyncDisabled {
		<-w.shutdown
		w.doneScheduling <- struct{}{}
		return
	}

	ctx := w.log.WithContext(context.Background())
	if err := w.scheduleIngestJobs(ctx); err != nil {
		w.log.Err(err).Error("schedule ingest jobs error")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			w.doneScheduling <- struct{}{}
			return
		case <-ticker.C:
			if err := w.scheduleIngestJobs(ctx); err != nil {
				w.log.Err(err).Error("schedule ingest jobs error")
			}
		}
	}
}

// scheduleIngestJobs creates a pending ingest job for every configured list
// that doesn't already have one pending or running.
func (w *Worker) scheduleIngestJobs(ctx context.Context) error {
	log := logger.FromContext(ctx)

	for _, list := range w.config.BestsellerListNames() {
		hasActive, err := w.jobService.HasActiveIngestJob(ctx, list)
		if err != nil {
			return errors.WithStack(err)
		}
		if hasActive {
			log.Info("ingest job already active, skipping", logger.Data{"list": list})
			continue
		}

		job := &models.Job{
			Type:       models.JobTypeBestsellerIngest,
			Status:     models.JobStatusPending,
			DataParsed: &models.JobBestsellerIngestData{List: list},
		}
		if err := w.jobService.CreateJob(ctx, job); err != nil {
			return errors.WithStack(err)
		}
		log.Info("scheduled ingest job", logger.Data{"list": list, "job_id": job.ID})
	}

	return nil
}
