package bulkdispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/models"
	"github.com/gearline/crm/pkg/repository"
	"github.com/gearline/crm/pkg/teleobi"
	"github.com/gearline/crm/pkg/templatecache"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestStore(t *testing.T) *repository.BulkJobRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.AllModels()...))
	return repository.NewBulkJobRepository(db)
}

// fakeSender scripts per-attempt outcomes keyed by mobile number.
type fakeSender struct {
	mu     sync.Mutex
	calls  map[string]int
	script func(mobile string, attempt int) (string, error)
	onCall func(mobile string, attempt int)
	delay  time.Duration
}

func (f *fakeSender) SendTemplate(ctx context.Context, mobile, templateID, templateSlug string, variables []string) (string, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[mobile]++
	attempt := f.calls[mobile]
	f.mu.Unlock()

	if f.onCall != nil {
		f.onCall(mobile, attempt)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", &teleobi.Error{Kind: teleobi.KindTransient, Message: "timeout", Err: ctx.Err()}
		}
	}
	if f.script != nil {
		return f.script(mobile, attempt)
	}
	return "wamid." + mobile, nil
}

func (f *fakeSender) attempts(mobile string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[mobile]
}

func transientErr() error {
	return &teleobi.Error{Kind: teleobi.KindTransient, StatusCode: 500, Message: "provider returned HTTP 500"}
}

func permanentErr() error {
	return &teleobi.Error{Kind: teleobi.KindPermanent, Message: "recipient has no whatsapp account"}
}

func newTestEngine(store domain.BulkJobStore, sender Sender, opts Options) *Engine {
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = time.Millisecond
	}
	return NewEngine(store, nil, sender, nil, nil, opts, testLogger())
}

func seedJob(t *testing.T, store domain.BulkJobStore, recipients []string) *models.WhatsAppBulkJob {
	t.Helper()
	data, err := json.Marshal(recipients)
	require.NoError(t, err)
	job := &models.WhatsAppBulkJob{
		TemplateID:   "101",
		TemplateSlug: "promo_offer",
		Recipients:   datatypes.JSON(data),
		Variables:    datatypes.JSON(`["Diwali"]`),
		TotalCount:   len(recipients),
		Status:       models.JobStatusQueued,
	}
	require.NoError(t, store.CreateJob(context.Background(), job))
	return job
}

func recipientList(n int) []string {
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, fmt.Sprintf("9198765000%02d", i))
	}
	return out
}

func TestRunRetriesTransientFailures(t *testing.T) {
	store := newTestStore(t)
	recipients := recipientList(3)
	flaky := recipients[1]

	sender := &fakeSender{script: func(mobile string, attempt int) (string, error) {
		if mobile == flaky && attempt == 1 {
			return "", transientErr()
		}
		return "wamid." + mobile, nil
	}}
	engine := newTestEngine(store, sender, Options{Workers: 1, MaxAttempts: 3})

	job := seedJob(t, store, recipients)
	require.NoError(t, engine.Run(context.Background(), job.ID))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 3, got.ProcessedCount)
	assert.Equal(t, 3, got.SentCount)
	assert.Equal(t, 0, got.FailedCount)
	require.NotNil(t, got.CompletedAt)

	sends, err := store.ListSends(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, sends, 3)
	for i, s := range sends {
		assert.Equal(t, i, s.RecipientIndex)
		assert.Equal(t, models.SendStatusSent, s.Status)
	}
	assert.Equal(t, 2, sends[1].Attempts, "the flaky recipient needed one retry")
	assert.Equal(t, 1, sends[0].Attempts)
}

func TestRunPermanentFailureIsNotRetried(t *testing.T) {
	store := newTestStore(t)
	recipients := recipientList(2)
	dead := recipients[0]

	sender := &fakeSender{script: func(mobile string, attempt int) (string, error) {
		if mobile == dead {
			return "", permanentErr()
		}
		return "wamid." + mobile, nil
	}}
	engine := newTestEngine(store, sender, Options{Workers: 1, MaxAttempts: 3})

	job := seedJob(t, store, recipients)
	require.NoError(t, engine.Run(context.Background(), job.ID))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status, "partial failure still completes the job")
	assert.Equal(t, 1, got.SentCount)
	assert.Equal(t, 1, got.FailedCount)

	assert.Equal(t, 1, sender.attempts(dead), "permanent failures get exactly one attempt")

	sends, err := store.ListSends(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SendStatusFailed, sends[0].Status)
	assert.Contains(t, sends[0].Error, "no whatsapp account")
}

func TestRunExhaustsTransientRetries(t *testing.T) {
	store := newTestStore(t)
	recipients := recipientList(1)

	sender := &fakeSender{script: func(string, int) (string, error) {
		return "", transientErr()
	}}
	engine := newTestEngine(store, sender, Options{Workers: 1, MaxAttempts: 2})

	job := seedJob(t, store, recipients)
	require.NoError(t, engine.Run(context.Background(), job.ID))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status, "an exhausted recipient is a terminal outcome, not an engine failure")
	assert.Equal(t, 0, got.SentCount)
	assert.Equal(t, 1, got.FailedCount)

	sends, err := store.ListSends(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, sends, 1)
	assert.Equal(t, 2, sends[0].Attempts)
}

func TestRunCompletesWhenEverySendFails(t *testing.T) {
	store := newTestStore(t)
	recipients := recipientList(2)

	sender := &fakeSender{script: func(string, int) (string, error) {
		return "", permanentErr()
	}}
	engine := newTestEngine(store, sender, Options{Workers: 1, MaxAttempts: 1})

	job := seedJob(t, store, recipients)
	require.NoError(t, engine.Run(context.Background(), job.ID))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status, "all recipients attempted means completed, whatever the outcomes")
	assert.Equal(t, 2, got.ProcessedCount)
	assert.Equal(t, 0, got.SentCount)
	assert.Equal(t, 2, got.FailedCount)
	require.NotNil(t, got.CompletedAt)
}

func TestRunFailsJobWithUndecodableInputs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := &models.WhatsAppBulkJob{
		TemplateID:   "101",
		TemplateSlug: "promo_offer",
		Recipients:   datatypes.JSON(`not json`),
		TotalCount:   3,
		Status:       models.JobStatusQueued,
	}
	require.NoError(t, store.CreateJob(ctx, job))

	engine := newTestEngine(store, &fakeSender{}, Options{Workers: 1, MaxAttempts: 1})
	err := engine.Run(ctx, job.ID)
	require.Error(t, err)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status, "undecodable inputs must not loop through recovery")
	assert.Contains(t, got.Error, "decode recipients")
}

func TestRunHaltsOnRecipientCoverageGap(t *testing.T) {
	store := newTestStore(t)
	recipients := recipientList(3)

	// A zero-burst limiter makes every worker bail before producing an
	// outcome, leaving the recipient range uncovered.
	engine := NewEngine(store, nil, &fakeSender{}, rate.NewLimiter(rate.Limit(1), 0), nil, Options{
		Workers: 1, MaxAttempts: 1,
	}, testLogger())

	job := seedJob(t, store, recipients)
	err := engine.Run(context.Background(), job.ID)
	require.Error(t, err, "a run with uncovered recipients must not finish the job")

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status, "the job stays at its cursor for recovery")
	assert.Equal(t, 0, got.ProcessedCount)
	assert.Nil(t, got.CompletedAt)
}

func TestRunResumesFromCursor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	recipients := recipientList(10)

	job := seedJob(t, store, recipients)
	require.NoError(t, store.MarkRunning(ctx, job.ID))
	for i := 0; i < 5; i++ {
		require.NoError(t, store.RecordOutcome(ctx, job.ID, &models.WhatsAppSend{
			RecipientIndex: i,
			Mobile:         recipients[i],
			Status:         models.SendStatusSent,
			WaMessageID:    "wamid.before-crash",
			Attempts:       1,
		}))
	}

	sender := &fakeSender{}
	engine := newTestEngine(store, sender, Options{Workers: 2, MaxAttempts: 3})
	require.NoError(t, engine.Run(ctx, job.ID))

	for i := 0; i < 5; i++ {
		assert.Zero(t, sender.attempts(recipients[i]), "already-committed recipients must not be re-sent")
	}
	for i := 5; i < 10; i++ {
		assert.Equal(t, 1, sender.attempts(recipients[i]))
	}

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 10, got.ProcessedCount)
	assert.Equal(t, 10, got.SentCount)

	sends, err := store.ListSends(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, sends, 10, "exactly one terminal outcome per recipient")
}

func TestRunCommitsInOrderAcrossWorkers(t *testing.T) {
	store := newTestStore(t)
	recipients := recipientList(20)

	// Uneven latency shuffles worker completion order.
	sender := &fakeSender{script: func(mobile string, _ int) (string, error) {
		time.Sleep(time.Duration(len(mobile)%3) * time.Millisecond)
		return "wamid." + mobile, nil
	}}
	engine := newTestEngine(store, sender, Options{Workers: 4, MaxAttempts: 1})

	job := seedJob(t, store, recipients)
	require.NoError(t, engine.Run(context.Background(), job.ID))

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.Equal(t, 20, got.ProcessedCount)

	sends, err := store.ListSends(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, sends, 20)
	for i, s := range sends {
		assert.Equal(t, i, s.RecipientIndex, "outcomes must cover every index exactly once")
		assert.Equal(t, recipients[i], s.Mobile)
	}
}

func TestRunStopsBetweenRecipientsOnCancel(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	recipients := recipientList(5)

	job := seedJob(t, store, recipients)

	sender := &fakeSender{}
	sender.onCall = func(mobile string, _ int) {
		if mobile == recipients[0] {
			_, err := store.RequestCancel(ctx, job.ID)
			require.NoError(t, err)
		}
	}
	engine := newTestEngine(store, sender, Options{Workers: 1, MaxAttempts: 1})
	require.NoError(t, engine.Run(ctx, job.ID))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, got.Status)
	assert.GreaterOrEqual(t, got.ProcessedCount, 1, "the in-flight send still completes")
	assert.Less(t, got.ProcessedCount, 5)

	sends, err := store.ListSends(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, sends, got.ProcessedCount)
	for i, s := range sends {
		assert.Equal(t, i, s.RecipientIndex, "committed prefix must stay contiguous")
	}
}

func TestRunLeavesJobResumableOnShutdown(t *testing.T) {
	store := newTestStore(t)
	recipients := recipientList(10)

	sender := &fakeSender{delay: 30 * time.Millisecond}
	engine := newTestEngine(store, sender, Options{Workers: 1, MaxAttempts: 1})

	job := seedJob(t, store, recipients)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	err := engine.Run(ctx, job.ID)
	require.Error(t, err, "an interrupted run must report it did not finish")

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusRunning, got.Status, "interrupted jobs stay running for recovery")
	assert.Less(t, got.ProcessedCount, 10)

	sends, err := store.ListSends(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, sends, got.ProcessedCount)
	for i, s := range sends {
		assert.Equal(t, i, s.RecipientIndex)
	}
}

func TestRunOnTerminalJobIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	job := seedJob(t, store, recipientList(2))
	require.NoError(t, store.MarkRunning(ctx, job.ID))
	require.NoError(t, store.Finish(ctx, job.ID, models.JobStatusCancelled, ""))

	sender := &fakeSender{}
	engine := newTestEngine(store, sender, Options{Workers: 1, MaxAttempts: 1})
	require.NoError(t, engine.Run(ctx, job.ID))

	assert.Empty(t, sender.calls, "terminal jobs must not send anything")
}

func TestCreateJobValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	templates := newTemplateService(t, &models.TeleobiTemplateCache{
		TemplateID:    "101",
		Name:          "Promo Offer",
		Slug:          "promo_offer",
		Body:          "Hi {{1}}, our offer ends soon",
		VariableCount: 1,
		SyncedAt:      time.Now(),
	})

	engine := NewEngine(store, templates, &fakeSender{}, nil, nil, Options{
		Workers: 1, MaxAttempts: 1, DailyLimit: 100, Location: time.UTC,
	}, testLogger())

	t.Run("unknown template", func(t *testing.T) {
		_, err := engine.CreateJob(ctx, CreateRequest{
			TemplateID: "999",
			Recipients: []string{"9876543210"},
			Variables:  []string{"Asha"},
		})
		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("variable count mismatch", func(t *testing.T) {
		_, err := engine.CreateJob(ctx, CreateRequest{
			TemplateID: "101",
			Recipients: []string{"9876543210"},
			Variables:  []string{},
		})
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("invalid recipient", func(t *testing.T) {
		_, err := engine.CreateJob(ctx, CreateRequest{
			TemplateID: "101",
			Recipients: []string{"12345"},
			Variables:  []string{"Asha"},
		})
		require.Error(t, err)
		assert.True(t, domain.IsValidation(err))
	})

	t.Run("recipients are normalized and deduplicated", func(t *testing.T) {
		job, err := engine.CreateJob(ctx, CreateRequest{
			TemplateID: "101",
			Recipients: []string{"9876543210", "+919876543210", "9876543211"},
			Variables:  []string{"Asha"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, job.TotalCount)
		assert.Equal(t, models.JobStatusQueued, job.Status)

		var recipients []string
		require.NoError(t, json.Unmarshal(job.Recipients, &recipients))
		assert.Equal(t, []string{"919876543210", "919876543211"}, recipients)
	})
}

func TestCreateJobDailyLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	templates := newTemplateService(t, &models.TeleobiTemplateCache{
		TemplateID: "101", Name: "Promo", Slug: "promo", Body: "plain body", SyncedAt: time.Now(),
	})
	engine := NewEngine(store, templates, &fakeSender{}, nil, nil, Options{
		Workers: 1, MaxAttempts: 1, DailyLimit: 1, Location: time.UTC,
	}, testLogger())

	_, err := engine.CreateJob(ctx, CreateRequest{
		TemplateID: "101",
		Recipients: []string{"9876543210", "9876543211"},
	})
	require.Error(t, err)
	assert.True(t, domain.IsDailyLimitExceeded(err))
}

func newTemplateService(t *testing.T, seed ...*models.TeleobiTemplateCache) *templatecache.Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.TeleobiTemplateCache{}))
	for _, tpl := range seed {
		require.NoError(t, db.Create(tpl).Error)
	}
	repo := repository.NewTemplateRepository(db)
	return templatecache.NewService(repo, nil, nil, time.Hour, testLogger())
}
