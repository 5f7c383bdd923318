package templatecache

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/gearline/crm/pkg/cache"
	"github.com/gearline/crm/pkg/domain"
	"github.com/gearline/crm/pkg/models"
	"github.com/gearline/crm/pkg/repository"
	"github.com/gearline/crm/pkg/teleobi"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestStore(t *testing.T) domain.TemplateStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.TeleobiTemplateCache{}))
	return repository.NewTemplateRepository(db)
}

// countingFetcher counts provider calls and can be slowed down or broken.
type countingFetcher struct {
	count     atomic.Int64
	delay     time.Duration
	err       error
	templates []teleobi.Template
}

func (f *countingFetcher) FetchTemplates(ctx context.Context) ([]teleobi.Template, error) {
	f.count.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.templates, nil
}

func sampleTemplates() []teleobi.Template {
	return []teleobi.Template{
		{ID: "101", Name: "Promo Offer", Slug: "promo_offer", Language: "en", Status: "APPROVED", Body: "Hi {{1}}, sale ends {{2}}"},
		{ID: "102", Name: "Welcome", Slug: "welcome", Language: "en", Status: "APPROVED", Body: "Welcome aboard"},
	}
}

func TestListRefreshesEmptyCatalog(t *testing.T) {
	fetcher := &countingFetcher{templates: sampleTemplates()}
	svc := NewService(newTestStore(t), fetcher, nil, time.Hour, testLogger())

	templates, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, int64(1), fetcher.count.Load())

	// The parsed variable count comes from the template body.
	byID := map[string]*models.TeleobiTemplateCache{}
	for _, tpl := range templates {
		byID[tpl.TemplateID] = tpl
	}
	assert.Equal(t, 2, byID["101"].VariableCount)
	assert.Equal(t, 0, byID["102"].VariableCount)
}

func TestListServesFreshCatalogWithoutFetching(t *testing.T) {
	fetcher := &countingFetcher{templates: sampleTemplates()}
	svc := NewService(newTestStore(t), fetcher, nil, time.Hour, testLogger())

	_, err := svc.List(context.Background())
	require.NoError(t, err)
	_, err = svc.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), fetcher.count.Load(), "a fresh catalog must not hit the provider")
}

func TestListRefreshesAfterTTL(t *testing.T) {
	fetcher := &countingFetcher{templates: sampleTemplates()}
	svc := NewService(newTestStore(t), fetcher, nil, time.Hour, testLogger())

	_, err := svc.List(context.Background())
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), fetcher.count.Load())
}

func TestConcurrentRefreshCollapses(t *testing.T) {
	fetcher := &countingFetcher{templates: sampleTemplates(), delay: 50 * time.Millisecond}
	svc := NewService(newTestStore(t), fetcher, nil, time.Hour, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			templates, err := svc.List(context.Background())
			assert.NoError(t, err)
			assert.Len(t, templates, 2)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), fetcher.count.Load(), "concurrent refreshes must collapse into one provider call")
}

func TestStaleCatalogServedWhenProviderIsDown(t *testing.T) {
	store := newTestStore(t)
	fetcher := &countingFetcher{templates: sampleTemplates()}
	svc := NewService(store, fetcher, nil, time.Hour, testLogger())

	_, err := svc.List(context.Background())
	require.NoError(t, err)

	fetcher.err = &teleobi.Error{Kind: teleobi.KindTransient, Message: "provider returned HTTP 503"}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	templates, err := svc.List(context.Background())
	require.NoError(t, err, "a stale catalog is better than none")
	assert.Len(t, templates, 2)
}

func TestStaleReportsCatalogAge(t *testing.T) {
	store := newTestStore(t)
	fetcher := &countingFetcher{templates: sampleTemplates()}
	svc := NewService(store, fetcher, nil, time.Hour, testLogger())
	ctx := context.Background()

	stale, err := svc.Stale(ctx)
	require.NoError(t, err)
	assert.True(t, stale, "an empty catalog is stale")

	_, err = svc.List(ctx)
	require.NoError(t, err)
	stale, err = svc.Stale(ctx)
	require.NoError(t, err)
	assert.False(t, stale)

	// The provider goes down and the TTL passes: Get keeps serving the old
	// rows but Stale now says so.
	fetcher.err = &teleobi.Error{Kind: teleobi.KindTransient, Message: "provider returned HTTP 503"}
	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	_, err = svc.Get(ctx, "101")
	require.NoError(t, err)
	stale, err = svc.Stale(ctx)
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestEmptyCatalogFailsWhenProviderIsDown(t *testing.T) {
	fetcher := &countingFetcher{err: &teleobi.Error{Kind: teleobi.KindTransient, Message: "provider returned HTTP 503"}}
	svc := NewService(newTestStore(t), fetcher, nil, time.Hour, testLogger())

	_, err := svc.List(context.Background())
	require.Error(t, err)
}

func TestHotCacheLayer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	hot := cache.NewFromClient(client)

	fetcher := &countingFetcher{templates: sampleTemplates()}
	svc := NewService(newTestStore(t), fetcher, hot, time.Hour, testLogger())

	_, err := svc.List(context.Background())
	require.NoError(t, err)
	require.True(t, mr.Exists("templates:catalog"))

	// A second call is served straight from redis.
	templates, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, templates, 2)
	assert.Equal(t, int64(1), fetcher.count.Load())
}

func TestSyncForcesRefresh(t *testing.T) {
	fetcher := &countingFetcher{templates: sampleTemplates()}
	svc := NewService(newTestStore(t), fetcher, nil, time.Hour, testLogger())

	n, err := svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), fetcher.count.Load(), "sync bypasses the TTL")
}
