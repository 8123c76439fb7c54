package workers

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultReportStream = "reports:stream"
	DefaultReportGroup  = "report-workers"

	// reportStreamMaxLen bounds the stream; consumed jobs are only kept for
	// debugging.
	reportStreamMaxLen = 10000
)

// StreamQueue appends report jobs to a Redis stream.
type StreamQueue struct {
	Redis  *redis.Client
	Stream string
}

func (q *StreamQueue) EnqueueReport(ctx context.Context, callID string) error {
	stream := q.Stream
	if stream == "" {
		stream = DefaultReportStream
	}
	return q.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: reportStreamMaxLen,
		Approx: true,
		Values: map[string]any{
			"call_id": callID,
			"ts_unix": strconv.FormatInt(time.Now().UTC().Unix(), 10),
		},
	}).Err()
}
