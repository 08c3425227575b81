package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/papermill/pkg/db/pagination"
)

// AppendRequest describes one completed or failed operation.
type AppendRequest struct {
	UserID     *snowflake.ID
	Type       string
	FileName   string
	SizeBytes  int64
	Status     OperationStatus
	AccessType string
	Metadata   map[string]any
}

type ListRequest struct {
	UserID snowflake.ID
	pagination.Pagination
}

type ListResponse struct {
	pagination.PageInfo
	Operations []OperationRecord `json:"operations"`
}

// Summary is the admin dashboard's headline block.
type Summary struct {
	TotalOperations int64            `json:"total_operations"`
	TotalCompleted  int64            `json:"total_completed"`
	TotalFailed     int64            `json:"total_failed"`
	TotalBytes      int64            `json:"total_bytes"`
	ByType          map[string]int64 `json:"by_type"`
}

type Service interface {
	// Append is fire-and-forget from the orchestrator's perspective: errors
	// are logged, never returned to the request path.
	Append(ctx context.Context, req AppendRequest)

	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Summarize(ctx context.Context) (Summary, error)
	DailyStats(ctx context.Context, from, to time.Time) ([]OperationDailyStat, error)
}
