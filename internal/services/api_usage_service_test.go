package services

import (
	"context"
	"testing"
	"time"

	"gtin-api/internal/database/dbtest"
	"gtin-api/internal/metrics"
	"gtin-api/internal/models"
	"gtin-api/internal/pkg/calendar"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func referenceZone(t *testing.T) *time.Location {
	t.Helper()
	loc, err := calendar.LoadZone(calendar.DefaultZone)
	require.NoError(t, err)
	return loc
}

func day(s string) time.Time {
	d, err := calendar.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

type meterFixture struct {
	db     *gorm.DB
	meter  UsageMeter
	hook   *test.Hook
	m      *metrics.Metrics
	org    *models.Organization
	apiKey *models.APIKey
}

func newMeterFixture(t *testing.T, now time.Time) *meterFixture {
	t.Helper()

	db := dbtest.Open(t)
	org, apiKey := dbtest.CreateOrganization(t, db, models.StarterPlan, "meter-key")

	m, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	meter := NewUsageMeter(repository.NewAPIUsageRepository(db), referenceZone(t), time.Second, logger,
		WithMeterClock(func() time.Time { return now }), WithMeterMetrics(m))

	return &meterFixture{db: db, meter: meter, hook: hook, m: m, org: org, apiKey: apiKey}
}

// The test pool has a single connection, so the goroutines reach the
// database one statement at a time. Each increment must still land through
// the ON CONFLICT upsert, with no read-then-write in between.
func TestRecordOutcomeUnderConcurrency(t *testing.T) {
	f := newMeterFixture(t, time.Now())
	period := day("2025-03-10")

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			f.meter.RecordOutcome(context.Background(), Credential(f.apiKey.ID), period, true)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var rows []models.APIKeyUsageDaily
	require.NoError(t, f.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(20), rows[0].SuccessCount)
	assert.Zero(t, rows[0].ErrorCount)
	assert.Empty(t, f.hook.AllEntries())
}

func TestReadAggregateFillsGaps(t *testing.T) {
	f := newMeterFixture(t, time.Now())
	ctx := context.Background()

	f.meter.RecordBatchOutcome(ctx, Credential(f.apiKey.ID), day("2025-03-02"), 3, 1)
	f.meter.RecordOutcome(ctx, Credential(f.apiKey.ID), day("2025-03-04"), false)

	series, err := f.meter.ReadAggregate(ctx, Credential(f.apiKey.ID), day("2025-03-01"), day("2025-03-05"))
	require.NoError(t, err)
	require.Len(t, series, 5)

	for i, p := range series {
		assert.Equal(t, day("2025-03-01").AddDate(0, 0, i), p.Period)
	}
	assert.Equal(t, UsagePoint{Period: day("2025-03-02"), SuccessCount: 3, ErrorCount: 1, Total: 4}, series[1])
	assert.Equal(t, UsagePoint{Period: day("2025-03-04"), ErrorCount: 1, Total: 1}, series[3])
	assert.Zero(t, series[0].Total)
	assert.Zero(t, series[2].Total)
	assert.Zero(t, series[4].Total)
}

func TestReadAggregateMonthlySteps(t *testing.T) {
	f := newMeterFixture(t, time.Now())
	ctx := context.Background()

	f.meter.RecordBatchOutcome(ctx, Tenant(f.org.ID), day("2025-02-17"), 10, 2)

	series, err := f.meter.ReadAggregate(ctx, Tenant(f.org.ID), day("2025-01-15"), day("2025-03-01"))
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, day("2025-01-01"), series[0].Period)
	assert.Equal(t, UsagePoint{Period: day("2025-02-01"), SuccessCount: 10, ErrorCount: 2, Total: 12}, series[1])
	assert.Equal(t, day("2025-03-01"), series[2].Period)
}

func TestReadAggregateRejectsInvertedRange(t *testing.T) {
	f := newMeterFixture(t, time.Now())

	_, err := f.meter.ReadAggregate(context.Background(), Credential(f.apiKey.ID), day("2025-03-05"), day("2025-03-01"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRecordRequestUsesReferenceZone(t *testing.T) {
	// 02:00 UTC on the 1st is still the previous day and month in São Paulo.
	f := newMeterFixture(t, time.Date(2025, 4, 1, 2, 0, 0, 0, time.UTC))
	ctx := context.Background()

	f.meter.RecordRequest(ctx, f.apiKey.ID, f.org.ID, 200)
	f.meter.RecordRequest(ctx, f.apiKey.ID, f.org.ID, 404)

	daily, err := f.meter.ReadAggregate(ctx, Credential(f.apiKey.ID), day("2025-03-31"), day("2025-04-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), daily[0].SuccessCount)
	assert.Equal(t, int64(1), daily[0].ErrorCount)
	assert.Zero(t, daily[1].Total)

	monthly, err := f.meter.ReadAggregate(ctx, Tenant(f.org.ID), day("2025-03-01"), day("2025-04-01"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), monthly[0].Total)
	assert.Zero(t, monthly[1].Total)
}

func TestRecordBatchCountsPerGTIN(t *testing.T) {
	f := newMeterFixture(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()

	f.meter.RecordBatch(ctx, f.apiKey.ID, f.org.ID, 7, 3)

	series, err := f.meter.ReadAggregate(ctx, Credential(f.apiKey.ID), day("2025-03-10"), day("2025-03-10"))
	require.NoError(t, err)
	assert.Equal(t, UsagePoint{Period: day("2025-03-10"), SuccessCount: 7, ErrorCount: 3, Total: 10}, series[0])
}

func TestRecordBatchOutcomeIgnoresZeroAndNegativeDeltas(t *testing.T) {
	f := newMeterFixture(t, time.Now())
	ctx := context.Background()

	f.meter.RecordBatchOutcome(ctx, Credential(f.apiKey.ID), day("2025-03-10"), 0, 0)
	f.meter.RecordBatchOutcome(ctx, Credential(f.apiKey.ID), day("2025-03-10"), -1, 2)

	var count int64
	require.NoError(t, f.db.Model(&models.APIKeyUsageDaily{}).Count(&count).Error)
	assert.Zero(t, count)
	require.Len(t, f.hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, f.hook.LastEntry().Level)
}

func TestRecordOutcomeSurvivesCanceledRequest(t *testing.T) {
	f := newMeterFixture(t, time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.meter.RecordOutcome(ctx, Credential(f.apiKey.ID), day("2025-03-10"), true)

	var row models.APIKeyUsageDaily
	require.NoError(t, f.db.First(&row).Error)
	assert.Equal(t, int64(1), row.SuccessCount)
}

func TestRecordOutcomeSwallowsStoreErrors(t *testing.T) {
	f := newMeterFixture(t, time.Now())
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	assert.NotPanics(t, func() {
		f.meter.RecordOutcome(context.Background(), Credential(f.apiKey.ID), day("2025-03-10"), true)
		f.meter.RecordOutcome(context.Background(), Tenant(f.org.ID), day("2025-03-10"), false)
	})

	require.Len(t, f.hook.AllEntries(), 2)
	assert.Equal(t, logrus.ErrorLevel, f.hook.LastEntry().Level)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.UsageWriteFailures.WithLabelValues("credential")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.m.UsageWriteFailures.WithLabelValues("tenant")))
}

func TestSummaryListsEveryKey(t *testing.T) {
	f := newMeterFixture(t, time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()

	idle := &models.APIKey{OrganizationID: f.org.ID, Name: "idle", Key: "idle-key", IsActive: true}
	require.NoError(t, f.db.Create(idle).Error)

	f.meter.RecordBatchOutcome(ctx, Credential(f.apiKey.ID), day("2025-03-10"), 4, 1)
	f.meter.RecordBatchOutcome(ctx, Credential(f.apiKey.ID), day("2025-03-04"), 2, 0)
	// Outside a 7-day window ending on the 10th.
	f.meter.RecordBatchOutcome(ctx, Credential(f.apiKey.ID), day("2025-03-03"), 100, 0)

	summary, err := f.meter.Summary(ctx, f.org.ID, 7)
	require.NoError(t, err)

	assert.Equal(t, "2025-03-04", summary.StartDate)
	assert.Equal(t, "2025-03-10", summary.EndDate)
	assert.Equal(t, int64(6), summary.TotalSuccess)
	assert.Equal(t, int64(1), summary.TotalError)
	assert.Equal(t, int64(7), summary.TotalCalls)
	require.Len(t, summary.ByAPIKey, 2)
	assert.Equal(t, int64(7), summary.ByAPIKey[0].TotalCalls)
	assert.Equal(t, "idle", summary.ByAPIKey[1].APIKeyName)
	assert.Zero(t, summary.ByAPIKey[1].TotalCalls)

	_, err = f.meter.Summary(ctx, f.org.ID, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestOrganizationDailySeriesSumsKeys(t *testing.T) {
	f := newMeterFixture(t, time.Now())
	ctx := context.Background()

	second := &models.APIKey{OrganizationID: f.org.ID, Name: "second", Key: "second-key", IsActive: true}
	require.NoError(t, f.db.Create(second).Error)
	_, foreign := dbtest.CreateOrganization(t, f.db, models.ProPlan, "foreign-key")

	f.meter.RecordBatchOutcome(ctx, Credential(f.apiKey.ID), day("2025-03-02"), 1, 1)
	f.meter.RecordBatchOutcome(ctx, Credential(second.ID), day("2025-03-02"), 2, 0)
	f.meter.RecordBatchOutcome(ctx, Credential(foreign.ID), day("2025-03-02"), 50, 0)

	series, err := f.meter.OrganizationDailySeries(ctx, f.org.ID, day("2025-03-01"), day("2025-03-03"))
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, UsagePoint{Period: day("2025-03-02"), SuccessCount: 3, ErrorCount: 1, Total: 4}, series[1])
	assert.Zero(t, series[0].Total)
	assert.Zero(t, series[2].Total)
}
