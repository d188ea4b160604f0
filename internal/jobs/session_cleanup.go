package jobs

import (
	"context"
	"log"
	"time"

	"reconagent/internal/database"
)

// SessionCleanupJob purges persisted state snapshots whose sessions expired
// longer ago than the retention window.
type SessionCleanupJob struct {
	db        *database.DB
	retention time.Duration
	interval  time.Duration
}

// NewSessionCleanupJob creates a cleanup job that runs every interval and
// removes snapshots not updated within the retention window.
func NewSessionCleanupJob(db *database.DB, retention, interval time.Duration) *SessionCleanupJob {
	return &SessionCleanupJob{
		db:        db,
		retention: retention,
		interval:  interval,
	}
}

// Run executes the snapshot cleanup
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	if j.db == nil {
		log.Println("[RETENTION] Snapshot cleanup disabled (no database)")
		return nil
	}

	cutoff := time.Now().UTC().Add(-j.retention)
	deleted, err := j.db.PurgeStatesBefore(cutoff)
	if err != nil {
		log.Printf("[RETENTION] Failed to purge state snapshots: %v", err)
		return err
	}

	if deleted > 0 {
		log.Printf("[RETENTION] Purged %d state snapshots older than %s", deleted, cutoff.Format(time.RFC3339))
	}
	return nil
}

// GetNextRunTime returns when the job should run next
func (j *SessionCleanupJob) GetNextRunTime() time.Time {
	return time.Now().Add(j.interval)
}
