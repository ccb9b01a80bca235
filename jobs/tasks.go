package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/complysurvey/complysurvey/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTokenPurge is the task type for the refresh token retention sweep.
	TaskTokenPurge = "auth:token_purge"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// TokenPurgePayload controls how far back the purge reaches. Retention is the
// minimum age a revoked or expired token must have before removal.
type TokenPurgePayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewTokenPurgeTask constructs an Asynq task for the retention sweep.
func NewTokenPurgeTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		return nil, errors.New("token purge: retention must be positive")
	}
	data, err := json.Marshal(TokenPurgePayload{RetentionHours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTokenPurge, data), nil
}

// TokenPurgeJob deletes refresh tokens that can no longer be presented:
// revoked ones past the retention window and expired ones past the window.
// Active tokens are never touched.
type TokenPurgeJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewTokenPurgeJob wires dependencies for the purge handler.
func NewTokenPurgeJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *TokenPurgeJob {
	return &TokenPurgeJob{
		Pool:    pool,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskTokenPurge tasks.
func (j *TokenPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("token purge: handler not configured")
	}
	var payload TokenPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionHours <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskTokenPurge)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	cutoff := j.now().Add(-time.Duration(payload.RetentionHours) * time.Hour)
	logger := j.logger().With(slog.Time("cutoff", cutoff))
	logger.Info("starting token purge")

	revoked, err := j.purge(ctx, `DELETE FROM refresh_tokens WHERE revoked_on IS NOT NULL AND revoked_on < $1`, cutoff)
	if err != nil {
		resultErr = err
		logger.Error("purge revoked tokens", slog.Any("error", err))
		return resultErr
	}
	expired, err := j.purge(ctx, `DELETE FROM refresh_tokens WHERE revoked_on IS NULL AND expires_on < $1`, cutoff)
	if err != nil {
		resultErr = err
		logger.Error("purge expired tokens", slog.Any("error", err))
		return resultErr
	}

	j.metrics().AddPurgedTokens("revoked", revoked)
	j.metrics().AddPurgedTokens("expired", expired)
	logger.Info("completed token purge", slog.Int64("revoked", revoked), slog.Int64("expired", expired))
	return resultErr
}

func (j *TokenPurgeJob) purge(ctx context.Context, query string, cutoff time.Time) (int64, error) {
	tag, err := j.Pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (j *TokenPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTokenPurge))
	}
	return slog.Default().With(slog.String("job", TaskTokenPurge))
}

func (j *TokenPurgeJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *TokenPurgeJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
