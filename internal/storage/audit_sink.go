package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/adr-pipeline/internal/config"
	"github.com/adr-pipeline/internal/models"
)

// ExecutionAuditSink streams execution outcomes to ClickHouse for reporting.
// The relational executions table stays the source of truth; this sink only
// feeds analytics, so write failures are logged and never fail the pipeline.
type ExecutionAuditSink struct {
	conn driver.Conn
}

// NewExecutionAuditSink creates a new ClickHouse connection for the audit sink
func NewExecutionAuditSink(cfg *config.ClickHouseConfig) (*ExecutionAuditSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     5,
		MaxIdleConns:     2,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ExecutionAuditSink{conn: conn}, nil
}

// EnsureSchema creates the audit table if it does not exist yet
func (s *ExecutionAuditSink) EnsureSchema(ctx context.Context) error {
	if s == nil || s.conn == nil {
		return nil
	}
	ddl := `
		CREATE TABLE IF NOT EXISTS execution_audit (
			run_id           String,
			execution_id     String,
			job_id           String,
			request_type     String,
			started_at       DateTime64(3),
			ended_at         DateTime64(3),
			success          Bool,
			vendor_status_id Int32,
			http_status      Int32,
			error_message    String
		) ENGINE = MergeTree()
		ORDER BY (run_id, started_at)
	`
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create execution_audit table: %w", err)
	}
	return nil
}

// Close closes the ClickHouse connection
func (s *ExecutionAuditSink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Record writes a batch of execution outcomes. Safe to call on a nil sink;
// the sink is optional infrastructure.
func (s *ExecutionAuditSink) Record(ctx context.Context, runID string, executions []*models.Execution) {
	if s == nil || s.conn == nil || len(executions) == 0 {
		return
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO execution_audit (
			run_id, execution_id, job_id, request_type, started_at, ended_at,
			success, vendor_status_id, http_status, error_message
		)
	`)
	if err != nil {
		log.Printf("[AuditSink] failed to prepare batch: %v", err)
		return
	}

	for _, e := range executions {
		endedAt := e.StartedAt
		if e.EndedAt != nil {
			endedAt = *e.EndedAt
		}
		vendorStatusID := int32(0)
		if e.VendorStatusID != nil {
			vendorStatusID = int32(*e.VendorStatusID) // #nosec G115 - vendor codes are small
		}
		errorMessage := ""
		if e.ErrorMessage != nil {
			errorMessage = *e.ErrorMessage
		}

		if err := batch.Append(
			runID,
			e.ExecutionID,
			e.JobID,
			string(e.RequestType),
			e.StartedAt,
			endedAt,
			e.Success,
			vendorStatusID,
			int32(e.HTTPStatus), // #nosec G115 - HTTP status codes are small
			errorMessage,
		); err != nil {
			log.Printf("[AuditSink] failed to append execution %s: %v", e.ExecutionID, err)
			return
		}
	}

	if err := batch.Send(); err != nil {
		log.Printf("[AuditSink] failed to send batch of %d executions: %v", len(executions), err)
	}
}
