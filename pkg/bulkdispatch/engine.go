package bulkdispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"

	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/metrics"
	"github.com/gearline/crm/pkg/models"
	"github.com/gearline/crm/pkg/phone"
	"github.com/gearline/crm/pkg/teleobi"
	"github.com/gearline/crm/pkg/templatecache"
)

// Sender performs one provider attempt. Retries belong to the engine.
type Sender interface {
	SendTemplate(ctx context.Context, phoneNumber, templateID, templateSlug string, variables []string) (string, error)
}

// CompletionNotifier announces a job reaching a terminal state.
// Implementations must not block the dispatch path.
type CompletionNotifier interface {
	NotifyJobDone(ctx context.Context, job *models.WhatsAppBulkJob)
}

// Options tune the engine.
type Options struct {
	Workers        int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	AttemptTimeout time.Duration
	DailyLimit     int
	Location       *time.Location
}

// Engine executes bulk WhatsApp jobs: a bounded worker pool sends
// concurrently while outcomes commit strictly in recipient order, so the
// job cursor never runs ahead of durable results.
type Engine struct {
	store     domain.BulkJobStore
	templates *templatecache.Service
	sender    Sender
	limiter   *rate.Limiter
	notifier  CompletionNotifier
	opts      Options
	logger    *log.Logger

	mu       sync.Mutex
	inflight map[uint]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(store domain.BulkJobStore, templates *templatecache.Service, sender Sender, limiter *rate.Limiter, notifier CompletionNotifier, opts Options, logger *log.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:     store,
		templates: templates,
		sender:    sender,
		limiter:   limiter,
		notifier:  notifier,
		opts:      opts,
		logger:    logger,
		inflight:  make(map[uint]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// CreateRequest is a validated bulk job submission.
type CreateRequest struct {
	TemplateID string   `json:"template_id" validate:"required"`
	Recipients []string `json:"recipients" validate:"required,min=1,dive,required"`
	Variables  []string `json:"variables"`
	CreatedBy  *uint    `json:"created_by,omitempty"`
}

// CreateJob validates a submission, freezes its inputs, and persists the
// job in the queued state. It does not start execution.
func (e *Engine) CreateJob(ctx context.Context, req CreateRequest) (*models.WhatsAppBulkJob, error) {
	tpl, err := e.templates.Get(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	// Get serves stale rows when the provider refresh fails. Flag it so a
	// variable-count mismatch against an outdated catalog is traceable.
	if stale, err := e.templates.Stale(ctx); err == nil && stale {
		e.logger.Printf("⚠️ Template catalog is stale, validating against the last synced copy")
	}
	if len(req.Variables) != tpl.VariableCount {
		return nil, domain.NewValidationError(fmt.Sprintf(
			"template %s expects %d variables, got %d", tpl.Name, tpl.VariableCount, len(req.Variables)))
	}

	normalized := make([]string, 0, len(req.Recipients))
	seen := make(map[string]struct{}, len(req.Recipients))
	for _, raw := range req.Recipients {
		mobile, err := phone.Normalize(raw)
		if err != nil {
			return nil, domain.NewValidationError(fmt.Sprintf("invalid recipient %q", raw))
		}
		if _, dup := seen[mobile]; dup {
			continue
		}
		seen[mobile] = struct{}{}
		normalized = append(normalized, mobile)
	}
	if len(normalized) == 0 {
		return nil, domain.NewValidationError("no valid recipients")
	}

	if e.opts.DailyLimit > 0 {
		now := time.Now().In(e.opts.Location)
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.opts.Location)
		used, err := e.store.SentToday(ctx, dayStart)
		if err != nil {
			return nil, err
		}
		if int(used)+len(normalized) > e.opts.DailyLimit {
			return nil, domain.NewDailyLimitError(int(used), e.opts.DailyLimit, len(normalized))
		}
	}

	recipientsJSON, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recipients: %w", err)
	}
	variablesJSON, err := json.Marshal(req.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to encode variables: %w", err)
	}

	job := &models.WhatsAppBulkJob{
		TemplateID:   tpl.TemplateID,
		TemplateSlug: tpl.Slug,
		Recipients:   datatypes.JSON(recipientsJSON),
		Variables:    datatypes.JSON(variablesJSON),
		TotalCount:   len(normalized),
		Status:       models.JobStatusQueued,
		CreatedBy:    req.CreatedBy,
	}
	if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	metrics.JobTransitionsTotal.WithLabelValues(models.JobStatusQueued).Inc()
	e.logger.Printf("📨 Bulk job %d created: template %s, %d recipients", job.ID, tpl.Name, job.TotalCount)
	return job, nil
}

// Launch runs a job on the engine's lifecycle. A job already in flight in
// this process is left alone.
func (e *Engine) Launch(jobID uint) {
	e.mu.Lock()
	if _, running := e.inflight[jobID]; running {
		e.mu.Unlock()
		return
	}
	e.inflight[jobID] = struct{}{}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.inflight, jobID)
			e.mu.Unlock()
		}()
		if err := e.Run(e.ctx, jobID); err != nil {
			e.logger.Printf("❌ Bulk job %d stopped: %v", jobID, err)
		}
	}()
}

// Cancel flags a job for cancellation. In-flight sends finish; the job
// stops between recipients.
func (e *Engine) Cancel(ctx context.Context, jobID uint) error {
	ok, err := e.store.RequestCancel(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewConflictError("job is already finished")
	}
	e.logger.Printf("🛑 Cancel requested for bulk job %d", jobID)
	return nil
}

// RecoverStale relaunches queued jobs and running jobs whose heartbeat is
// older than the threshold, picking each up from its durable cursor.
func (e *Engine) RecoverStale(ctx context.Context, threshold time.Duration) error {
	cutoff := time.Now().Add(-threshold)
	jobs, err := e.store.ResumableJobs(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		e.logger.Printf("🔄 Recovering bulk job %d from recipient %d/%d", job.ID, job.ProcessedCount, job.TotalCount)
		e.Launch(job.ID)
	}
	return nil
}

// Stop cancels all in-flight work and waits for jobs to reach a durable
// stopping point. Interrupted jobs stay running and are picked up by the
// next recovery sweep.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}

type sendTask struct {
	idx    int
	mobile string
}

// Run executes one job to a terminal state, resuming from its cursor.
// The returned error means the engine stopped without finishing the job;
// the job is left running at its last durable cursor for recovery.
func (e *Engine) Run(ctx context.Context, jobID uint) error {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	switch job.Status {
	case models.JobStatusQueued, models.JobStatusRunning:
	default:
		return nil
	}

	var recipients []string
	if err := json.Unmarshal(job.Recipients, &recipients); err != nil {
		return e.failJob(ctx, jobID, fmt.Errorf("failed to decode recipients for job %d: %w", jobID, err))
	}
	var variables []string
	if len(job.Variables) > 0 {
		if err := json.Unmarshal(job.Variables, &variables); err != nil {
			return e.failJob(ctx, jobID, fmt.Errorf("failed to decode variables for job %d: %w", jobID, err))
		}
	}

	if err := e.store.MarkRunning(ctx, jobID); err != nil {
		return err
	}
	metrics.JobTransitionsTotal.WithLabelValues(models.JobStatusRunning).Inc()
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	next := job.ProcessedCount
	total := job.TotalCount
	e.logger.Printf("🚀 Bulk job %d running from recipient %d/%d", jobID, next, total)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	tasks := make(chan sendTask)
	results := make(chan *models.WhatsAppSend)

	var workers sync.WaitGroup
	for i := 0; i < e.opts.Workers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for t := range tasks {
				send, err := e.sendOne(workerCtx, job, t, variables)
				if err != nil {
					return
				}
				select {
				case results <- send:
				case <-workerCtx.Done():
					return
				}
			}
		}()
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	// The producer checks the cancel flag before each recipient, so a
	// cancellation takes effect between recipients, never mid-send. The
	// flag write is ordered before the committer's read by the close of
	// tasks and then results.
	cancelFlag := false
	go func() {
		defer close(tasks)
		for idx := next; idx < total; idx++ {
			if wantCancel, err := e.store.CancelRequested(ctx, jobID); err == nil && wantCancel {
				cancelFlag = true
				return
			}
			select {
			case tasks <- sendTask{idx: idx, mobile: recipients[idx]}:
			case <-workerCtx.Done():
				return
			}
		}
	}()

	// Committer: outcomes arrive in arbitrary worker order and are held
	// until the contiguous prefix starting at the cursor is complete.
	pending := make(map[int]*models.WhatsAppSend)
	var commitErr error
	for send := range results {
		if commitErr != nil {
			continue
		}
		pending[send.RecipientIndex] = send
		for {
			s, ok := pending[next]
			if !ok {
				break
			}
			if err := e.store.RecordOutcome(ctx, jobID, s); err != nil {
				commitErr = err
				stopWorkers()
				break
			}
			metrics.SendsTotal.WithLabelValues(s.Status).Inc()
			delete(pending, next)
			next++
		}
	}

	if commitErr != nil {
		sentry.CaptureException(commitErr)
		return fmt.Errorf("job %d halted at recipient %d: %w", jobID, next, commitErr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if cancelFlag {
		if err := e.store.Finish(ctx, jobID, models.JobStatusCancelled, ""); err != nil {
			return err
		}
		metrics.JobTransitionsTotal.WithLabelValues(models.JobStatusCancelled).Inc()
		e.logger.Printf("🛑 Bulk job %d cancelled at recipient %d/%d", jobID, next, total)
		e.notifyDone(ctx, jobID)
		return nil
	}

	// A worker that stops without producing an outcome leaves a gap in
	// recipient coverage. The job must not finish over that gap; leave it
	// running at the durable cursor for recovery.
	if next != total {
		err := fmt.Errorf("job %d stopped at recipient %d/%d without an outcome", jobID, next, total)
		sentry.CaptureException(err)
		return err
	}

	// Every recipient has a durable outcome, so the job is completed even
	// when some or all sends failed. The counters carry the split.
	final, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := e.store.Finish(ctx, jobID, models.JobStatusCompleted, ""); err != nil {
		return err
	}
	metrics.JobTransitionsTotal.WithLabelValues(models.JobStatusCompleted).Inc()
	e.logger.Printf("✅ Bulk job %d completed: %d sent, %d failed", jobID, final.SentCount, final.FailedCount)
	e.notifyDone(ctx, jobID)
	return nil
}

// failJob marks a job failed for an unrecoverable engine error, like frozen
// inputs that no longer decode. Leaving it running would make the recovery
// sweep relaunch it forever.
func (e *Engine) failJob(ctx context.Context, jobID uint, cause error) error {
	sentry.CaptureException(cause)
	if err := e.store.Finish(ctx, jobID, models.JobStatusFailed, cause.Error()); err != nil {
		e.logger.Printf("⚠️ Failed to mark job %d failed: %v", jobID, err)
	} else {
		metrics.JobTransitionsTotal.WithLabelValues(models.JobStatusFailed).Inc()
	}
	return cause
}

func (e *Engine) notifyDone(ctx context.Context, jobID uint) {
	if e.notifier == nil {
		return
	}
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		e.logger.Printf("⚠️ Failed to load job %d for notification: %v", jobID, err)
		return
	}
	e.notifier.NotifyJobDone(ctx, job)
}

// sendOne resolves a single recipient to a terminal outcome: bounded
// retries with exponential backoff for transient provider failures, one
// shot for permanent ones. A non-nil error means the engine is shutting
// down and no outcome may be recorded.
func (e *Engine) sendOne(ctx context.Context, job *models.WhatsAppBulkJob, t sendTask, variables []string) (*models.WhatsAppSend, error) {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if e.opts.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.opts.AttemptTimeout)
		}
		msgID, err := e.sender.SendTemplate(attemptCtx, t.mobile, job.TemplateID, job.TemplateSlug, variables)
		cancel()

		attempts = attempt
		metrics.SendAttemptsTotal.Inc()

		if err == nil {
			return &models.WhatsAppSend{
				RecipientIndex: t.idx,
				Mobile:         t.mobile,
				Status:         models.SendStatusSent,
				WaMessageID:    msgID,
				Attempts:       attempts,
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !teleobi.IsTransient(err) {
			break
		}
		if attempt < e.opts.MaxAttempts {
			backoff := e.opts.RetryBaseDelay << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return &models.WhatsAppSend{
		RecipientIndex: t.idx,
		Mobile:         t.mobile,
		Status:         models.SendStatusFailed,
		Attempts:       attempts,
		Error:          truncate(lastErr.Error(), 500),
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
