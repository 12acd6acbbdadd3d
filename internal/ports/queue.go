package ports

import (
	"context"

	"github.com/google/uuid"
)

// CampaignJob is one unit of work for the campaign worker: run (or resume) a
// campaign's batch loop. StartBatch counts batches of the campaign's original
// batch size, the same unit the persisted cursor uses.
type CampaignJob struct {
	CampaignID  uuid.UUID `json:"campaign_id"`
	SessionName string    `json:"session_name"`
	Resume      bool      `json:"resume"`
	StartBatch  int       `json:"start_batch"`
}

// JobPublisher publishes campaign jobs to the work queue.
type JobPublisher interface {
	Publish(ctx context.Context, job CampaignJob) error
}

// JobConsumer consumes campaign jobs. Delivery is one-at-a-time so runs
// dispatched to a worker stay sequential.
type JobConsumer interface {
	// Consume blocks until ctx is cancelled or a fatal error occurs.
	Consume(ctx context.Context, handler func(ctx context.Context, job CampaignJob) error) error
}
