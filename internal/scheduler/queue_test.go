package scheduler

import (
	"context"
	"testing"
	"time"

	templatedomain "github.com/facturasv/dte-engine/internal/template/domain"
)

func TestEnqueueDeduplicatesPendingJobs(t *testing.T) {
	f := setupScheduler(t)
	tenantID := f.insertTenant(t)
	cpID := f.insertCounterparty(t, tenantID)
	templateID := f.insertTemplate(t, templatedomain.RecurringTemplate{
		TenantID:       tenantID,
		CounterpartyID: cpID,
	})
	ctx := context.Background()

	if err := f.sched.Enqueue(ctx, templateID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.sched.Enqueue(ctx, templateID); err != nil {
		t.Fatalf("second enqueue: %v", err)
	}

	var count int64
	if err := f.db.Model(&Job{}).Where("template_id = ?", templateID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one pending job, got %d", count)
	}

	// A finished job no longer blocks a new enqueue.
	if err := f.db.Model(&Job{}).Where("template_id = ?", templateID).
		Update("status", jobStatusDone).Error; err != nil {
		t.Fatalf("mark done: %v", err)
	}
	if err := f.sched.Enqueue(ctx, templateID); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	if err := f.db.Model(&Job{}).Where("template_id = ?", templateID).Count(&count).Error; err != nil {
		t.Fatalf("recount: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected two jobs, got %d", count)
	}
}

func TestQueueDrainExecutesDueJob(t *testing.T) {
	f := setupScheduler(t)
	tenantID := f.insertTenant(t)
	cpID := f.insertCounterparty(t, tenantID)
	templateID := f.insertTemplate(t, templatedomain.RecurringTemplate{
		TenantID:       tenantID,
		CounterpartyID: cpID,
	})
	ctx := context.Background()

	if err := f.sched.Enqueue(ctx, templateID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := f.sched.drainQueue(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	var job Job
	if err := f.db.First(&job, "template_id = ?", templateID).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != jobStatusDone || job.Attempts != 1 {
		t.Fatalf("unexpected job state: %s attempts=%d", job.Status, job.Attempts)
	}

	rows := f.historyRows(t, templateID)
	if len(rows) != 1 || rows[0].Outcome != templatedomain.OutcomeSuccess {
		t.Fatalf("expected one successful run, got %+v", rows)
	}
}

func TestQueueRetriesWithBackoffThenFails(t *testing.T) {
	f := setupScheduler(t)
	tenantID := f.insertTenant(t)
	cpID := f.insertCounterparty(t, tenantID)
	// A paused template always loses the claim, so every attempt fails.
	templateID := f.insertTemplate(t, templatedomain.RecurringTemplate{
		TenantID:       tenantID,
		CounterpartyID: cpID,
		Status:         templatedomain.StatusPaused,
	})
	ctx := context.Background()

	if err := f.sched.Enqueue(ctx, templateID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if err := f.sched.drainQueue(ctx); err != nil {
		t.Fatalf("first drain: %v", err)
	}
	var job Job
	if err := f.db.First(&job, "template_id = ?", templateID).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != jobStatusPending || job.Attempts != 1 {
		t.Fatalf("after first attempt: %s attempts=%d", job.Status, job.Attempts)
	}
	if !job.RunAt.Equal(f.clk.now.Add(jobBackoffBase)) {
		t.Fatalf("expected 60s backoff, run_at=%v", job.RunAt)
	}

	// Not yet due: draining again is a no-op.
	if err := f.sched.drainQueue(ctx); err != nil {
		t.Fatalf("idle drain: %v", err)
	}
	if err := f.db.First(&job, "template_id = ?", templateID).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Attempts != 1 {
		t.Fatalf("job ran before its backoff elapsed: attempts=%d", job.Attempts)
	}

	f.clk.now = f.clk.now.Add(jobBackoffBase + time.Second)
	if err := f.sched.drainQueue(ctx); err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if err := f.db.First(&job, "template_id = ?", templateID).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != jobStatusPending || job.Attempts != 2 {
		t.Fatalf("after second attempt: %s attempts=%d", job.Status, job.Attempts)
	}
	// Second retry backs off twice as long.
	if !job.RunAt.Equal(f.clk.now.Add(2 * jobBackoffBase)) {
		t.Fatalf("expected 120s backoff, run_at=%v", job.RunAt)
	}

	f.clk.now = f.clk.now.Add(2*jobBackoffBase + time.Second)
	if err := f.sched.drainQueue(ctx); err != nil {
		t.Fatalf("final drain: %v", err)
	}
	if err := f.db.First(&job, "template_id = ?", templateID).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if job.Status != jobStatusFailed || job.Attempts != jobMaxAttempts {
		t.Fatalf("expected terminal failure, got %s attempts=%d", job.Status, job.Attempts)
	}
	if job.LastError == nil || *job.LastError == "" {
		t.Fatal("missing failure message")
	}
}
