package interfaces

import (
	"context"

	"github.com/hoistscout/hoistscout/internal/models"
)

// ScrapeRunner executes one claimed job end to end: compliance gate, auth,
// pagination, extraction, document processing and the single-transaction
// persist. It returns the stats to store on the job row; the error, if
// any, has already been categorized by the caller via models.Categorize.
type ScrapeRunner interface {
	Run(ctx context.Context, job *models.Job) (models.JobStats, error)
}
