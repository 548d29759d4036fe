package worker

import (
	"context"

	"github.com/canonbooks/canon/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

func (w *Worker) ProcessBestsellerIngestJob(ctx context.Context, job *models.Job) error {
	log := logger.FromContext(ctx)

	data, ok := job.DataParsed.(*models.JobBestsellerIngestData)
	if !ok || data.List == "" {
		return errors.New("bestseller ingest job is missing its list")
	}

	log.Info("processing bestseller ingest job", logger.Data{"list": data.List})

	report, err := w.ingester.IngestList(ctx, data.List)
	if report != nil {
		data.Processed = report.Processed
		data.Failed = report.Failed
	}
	if err != nil {
		return errors.WithStack(err)
	}

	log.Info("finished bestseller ingest", logger.Data{
		"list":           data.List,
		"published_date": report.PublishedDate,
		"processed":      report.Processed,
		"failed":         report.Failed,
		"seeded":         report.Seeded,
	})

	return nil
}
