package services

import (
	"context"
	"fmt"
	"time"

	"gtin-api/internal/metrics"
	"gtin-api/internal/models"
	"gtin-api/internal/pkg/calendar"
	apperrors "gtin-api/internal/pkg/errors"
	"gtin-api/internal/repository"

	"github.com/sirupsen/logrus"
)

type SubjectKind string

const (
	// CredentialSubject rows are kept per API key and day.
	CredentialSubject SubjectKind = "credential"
	// TenantSubject rows are kept per organization and month.
	TenantSubject SubjectKind = "tenant"
)

// Subject is whose usage a counter belongs to.
type Subject struct {
	Kind SubjectKind
	ID   uint
}

func Credential(id uint) Subject { return Subject{Kind: CredentialSubject, ID: id} }

func Tenant(id uint) Subject { return Subject{Kind: TenantSubject, ID: id} }

// UsagePoint is one period of a gap-filled usage series.
type UsagePoint struct {
	Period       time.Time `json:"date"`
	SuccessCount int64     `json:"success_count"`
	ErrorCount   int64     `json:"error_count"`
	Total        int64     `json:"total_count"`
}

type UsageSummary struct {
	PeriodDays   int                        `json:"period_days"`
	StartDate    string                     `json:"start_date"`
	EndDate      string                     `json:"end_date"`
	TotalSuccess int64                      `json:"total_success"`
	TotalError   int64                      `json:"total_error"`
	TotalCalls   int64                      `json:"total_calls"`
	ByAPIKey     []models.APIKeyUsageTotals `json:"by_api_key"`
}

const (
	DefaultSummaryDays = 7
	MaxSummaryDays     = 365
)

// UsageMeter records request outcomes and reads them back as series.
// Recording never fails: write errors are logged, counted and dropped.
type UsageMeter interface {
	RecordOutcome(ctx context.Context, subject Subject, period time.Time, succeeded bool)
	RecordBatchOutcome(ctx context.Context, subject Subject, period time.Time, success, failed int64)
	ReadAggregate(ctx context.Context, subject Subject, from, to time.Time) ([]UsagePoint, error)

	RecordRequest(ctx context.Context, apiKeyID, organizationID uint, statusCode int)
	RecordBatch(ctx context.Context, apiKeyID, organizationID uint, found, missed int)
	Summary(ctx context.Context, organizationID uint, days int) (*UsageSummary, error)
	OrganizationDailySeries(ctx context.Context, organizationID uint, from, to time.Time) ([]UsagePoint, error)
	Today() time.Time
}

type usageMeter struct {
	repo    repository.APIUsageRepository
	zone    *time.Location
	timeout time.Duration
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

type UsageMeterOption func(*usageMeter)

func WithMeterClock(now func() time.Time) UsageMeterOption {
	return func(m *usageMeter) { m.now = now }
}

func WithMeterMetrics(mt *metrics.Metrics) UsageMeterOption {
	return func(m *usageMeter) { m.metrics = mt }
}

func NewUsageMeter(repo repository.APIUsageRepository, zone *time.Location, timeout time.Duration, logger logrus.FieldLogger, opts ...UsageMeterOption) UsageMeter {
	m := &usageMeter{
		repo:    repo,
		zone:    zone,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func monthKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Today is the daily period key of the current reference-zone day.
func (m *usageMeter) Today() time.Time {
	return calendar.Day(m.now(), m.zone)
}

func (m *usageMeter) RecordOutcome(ctx context.Context, subject Subject, period time.Time, succeeded bool) {
	if succeeded {
		m.write(ctx, subject, period, 1, 0)
		return
	}
	m.write(ctx, subject, period, 0, 1)
}

func (m *usageMeter) RecordBatchOutcome(ctx context.Context, subject Subject, period time.Time, success, failed int64) {
	if success < 0 || failed < 0 {
		m.logger.WithFields(logrus.Fields{
			"subject": subject.Kind,
			"id":      subject.ID,
			"success": success,
			"failed":  failed,
		}).Warn("Ignoring negative usage delta")
		return
	}
	if success == 0 && failed == 0 {
		return
	}
	m.write(ctx, subject, period, success, failed)
}

func (m *usageMeter) write(ctx context.Context, subject Subject, period time.Time, success, failed int64) {
	// The write outlives the request: a client that hangs up still used the API.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	var err error
	switch subject.Kind {
	case CredentialSubject:
		err = m.repo.UpsertDaily(ctx, subject.ID, calendar.Date(period), success, failed)
	case TenantSubject:
		err = m.repo.UpsertMonthly(ctx, subject.ID, monthKey(period), success, failed)
	default:
		err = fmt.Errorf("%w: unknown usage subject %q", apperrors.ErrInvalidInput, subject.Kind)
	}
	if err != nil {
		m.metrics.UsageWriteFailed(string(subject.Kind))
		m.logger.WithError(err).WithFields(logrus.Fields{
			"subject": subject.Kind,
			"id":      subject.ID,
			"period":  calendar.DayKey(period),
		}).Error("Failed to record usage")
	}
}

// RecordRequest meters one API call: 2xx counts as success, anything else
// as error, against both the key's day and the organization's month.
func (m *usageMeter) RecordRequest(ctx context.Context, apiKeyID, organizationID uint, statusCode int) {
	now := m.now()
	succeeded := statusCode >= 200 && statusCode < 300

	m.RecordOutcome(ctx, Credential(apiKeyID), calendar.Day(now, m.zone), succeeded)
	m.RecordOutcome(ctx, Tenant(organizationID), calendar.Month(now, m.zone), succeeded)
}

// RecordBatch meters a batch lookup per GTIN: found items are successes,
// missing ones errors.
func (m *usageMeter) RecordBatch(ctx context.Context, apiKeyID, organizationID uint, found, missed int) {
	now := m.now()

	m.RecordBatchOutcome(ctx, Credential(apiKeyID), calendar.Day(now, m.zone), int64(found), int64(missed))
	m.RecordBatchOutcome(ctx, Tenant(organizationID), calendar.Month(now, m.zone), int64(found), int64(missed))
}

func (m *usageMeter) ReadAggregate(ctx context.Context, subject Subject, from, to time.Time) ([]UsagePoint, error) {
	if from.After(to) {
		return nil, fmt.Errorf("%w: range starts after it ends", apperrors.ErrInvalidInput)
	}

	switch subject.Kind {
	case CredentialSubject:
		rows, err := m.repo.DailyRange(ctx, subject.ID, calendar.Date(from), calendar.Date(to))
		if err != nil {
			return nil, err
		}
		return fill(calendar.Days(from, to), rows, calendar.DayKey), nil
	case TenantSubject:
		rows, err := m.repo.MonthlyRange(ctx, subject.ID, monthKey(from), monthKey(to))
		if err != nil {
			return nil, err
		}
		return fill(calendar.Months(from, to), rows, monthLabel), nil
	}
	return nil, fmt.Errorf("%w: unknown usage subject %q", apperrors.ErrInvalidInput, subject.Kind)
}

// OrganizationDailySeries sums every key of the organization per day.
func (m *usageMeter) OrganizationDailySeries(ctx context.Context, organizationID uint, from, to time.Time) ([]UsagePoint, error) {
	if from.After(to) {
		return nil, fmt.Errorf("%w: range starts after it ends", apperrors.ErrInvalidInput)
	}
	rows, err := m.repo.OrganizationDailyRange(ctx, organizationID, calendar.Date(from), calendar.Date(to))
	if err != nil {
		return nil, err
	}
	return fill(calendar.Days(from, to), rows, calendar.DayKey), nil
}

// Summary totals the organization's usage over the last days days, today
// included. Keys without usage are listed with zeros.
func (m *usageMeter) Summary(ctx context.Context, organizationID uint, days int) (*UsageSummary, error) {
	if days < 1 || days > MaxSummaryDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", apperrors.ErrInvalidInput, MaxSummaryDays)
	}

	end := m.Today()
	start := end.AddDate(0, 0, -(days - 1))

	byKey, err := m.repo.SummaryByKey(ctx, organizationID, start, end)
	if err != nil {
		return nil, err
	}

	summary := &UsageSummary{
		PeriodDays: days,
		StartDate:  calendar.DayKey(start),
		EndDate:    calendar.DayKey(end),
		ByAPIKey:   byKey,
	}
	if summary.ByAPIKey == nil {
		summary.ByAPIKey = []models.APIKeyUsageTotals{}
	}
	for _, k := range byKey {
		summary.TotalSuccess += k.TotalSuccess
		summary.TotalError += k.TotalError
	}
	summary.TotalCalls = summary.TotalSuccess + summary.TotalError
	return summary, nil
}

func monthLabel(t time.Time) string {
	return t.Format("2006-01")
}

func fill(periods []time.Time, rows []models.UsageCounts, label func(time.Time) string) []UsagePoint {
	byPeriod := make(map[string]models.UsageCounts, len(rows))
	for _, row := range rows {
		byPeriod[label(row.Period.UTC())] = row
	}

	series := make([]UsagePoint, 0, len(periods))
	for _, p := range periods {
		row := byPeriod[label(p)]
		series = append(series, UsagePoint{
			Period:       p,
			SuccessCount: row.SuccessCount,
			ErrorCount:   row.ErrorCount,
			Total:        row.SuccessCount + row.ErrorCount,
		})
	}
	return series
}
