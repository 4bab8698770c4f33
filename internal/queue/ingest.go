package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"awardgraph/pkg/logger"
	"awardgraph/pkg/nsf"
	"awardgraph/pkg/orchestrator"
	"awardgraph/pkg/store"
)

// IngestMsg is one bulk-ingest job: a set of search parameters for the
// external awards API whose results should be folded into the graph.
type IngestMsg struct {
	Message string            `json:"message"`
	Params  map[string]string `json:"params"`
}

// ProcessIngestMessage fetches every award matching the job's parameters
// and upserts them. A malformed record only costs itself; a fetch failure
// fails the whole message so the retry topology re-delivers it.
func ProcessIngestMessage(
	ctx context.Context,
	client *nsf.Client,
	gs store.GraphStore,
	msgBody string,
) error {
	var msg IngestMsg
	if err := json.Unmarshal([]byte(msgBody), &msg); err != nil {
		return fmt.Errorf("failed to unmarshal ingest message: %w", err)
	}
	if len(msg.Params) == 0 {
		return fmt.Errorf("ingest message has no fetch parameters")
	}

	records, total, err := client.FetchAwards(ctx, msg.Params)
	if err != nil {
		return fmt.Errorf("failed to fetch awards: %w", err)
	}

	awardIDs, dropped := orchestrator.IngestRecords(ctx, gs, records)
	logger.Info("[Queue] Ingest message processed",
		"fetched", len(records), "total_matches", total,
		"ingested", len(awardIDs), "dropped", dropped)
	return nil
}
