package alerting_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/crop-threat-alerts/internal/adapter/memstore"
	"github.com/couchcryptid/crop-threat-alerts/internal/alerting"
	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/couchcryptid/crop-threat-alerts/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var now = time.Date(2024, time.May, 8, 12, 0, 0, 0, time.UTC)

// --- Mocks ---

type mockNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
	err    error
}

func (m *mockNotifier) Notify(_ context.Context, alert domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return m.err
}

func (m *mockNotifier) sent() []domain.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Alert(nil), m.alerts...)
}

type panicNotifier struct{}

func (panicNotifier) Notify(context.Context, domain.Alert) error {
	panic("delivery exploded")
}

// failingStore wraps a memstore and fails selected operations.
type failingStore struct {
	*memstore.Store
	findErr   error
	farmerErr error
	saveErr   error
}

func (s *failingStore) FindRecords(ctx context.Context, f domain.RecordFilter) ([]domain.Observation, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.Store.FindRecords(ctx, f)
}

func (s *failingStore) GetFarmer(ctx context.Context, id string) (domain.Farmer, error) {
	if s.farmerErr != nil {
		return domain.Farmer{}, s.farmerErr
	}
	return s.Store.GetFarmer(ctx, id)
}

func (s *failingStore) SaveObservation(ctx context.Context, o domain.Observation) (domain.Observation, error) {
	if s.saveErr != nil {
		return domain.Observation{}, s.saveErr
	}
	return s.Store.SaveObservation(ctx, o)
}

// --- Helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, store alerting.RecordStore, notifier alerting.Notifier, opts ...alerting.Option) *alerting.Engine {
	t.Helper()
	opts = append([]alerting.Option{alerting.WithClock(clockwork.NewFakeClockAt(now))}, opts...)
	e, err := alerting.New(store, notifier, discardLogger(), observability.NewMetricsForTesting(), opts...)
	require.NoError(t, err)
	return e
}

func seedFarmers(t *testing.T, s *memstore.Store, farmers ...domain.Farmer) {
	t.Helper()
	for _, f := range farmers {
		_, err := s.SaveFarmer(context.Background(), f)
		require.NoError(t, err)
	}
}

func seedObservations(t *testing.T, s *memstore.Store, obs ...domain.Observation) {
	t.Helper()
	for _, o := range obs {
		_, err := s.SaveObservation(context.Background(), o)
		require.NoError(t, err)
	}
}

func disease(reporter, name, location string, at time.Time) domain.Observation {
	return domain.Observation{Kind: domain.KindDisease, ReporterID: reporter, Name: name, Location: location, ObservedAt: at}
}

func pest(reporter, name, location string, at time.Time) domain.NewObservation {
	return domain.NewObservation{Kind: domain.KindPest, ReporterID: reporter, Name: name, Location: location, ObservedAt: at}
}

// --- Construction ---

func TestNew_RejectsInvalidPolicy(t *testing.T) {
	p := domain.DefaultAlertPolicy()
	p.Trigger.Count = 0

	_, err := alerting.New(memstore.New(), nil, discardLogger(), observability.NewMetricsForTesting(), alerting.WithPolicy(p))
	assert.ErrorContains(t, err, "trigger count")
}

func TestCheckReadiness(t *testing.T) {
	e := newEngine(t, memstore.New(), nil)
	assert.NoError(t, e.CheckReadiness(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, e.CheckReadiness(ctx))
}

// --- Area locator ---

func TestGetFarmersInArea_SubstringCaseInsensitive(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s,
		domain.Farmer{ID: "f1", LandLocation: "Malabe North"},
		domain.Farmer{ID: "f2", LandLocation: "malabe south"},
		domain.Farmer{ID: "f3", LandLocation: "Kaduwela"},
	)
	e := newEngine(t, s, nil)

	farmers, err := e.GetFarmersInArea(context.Background(), "MALABE")
	require.NoError(t, err)
	require.Len(t, farmers, 2)
	assert.Equal(t, "f1", farmers[0].ID)
	assert.Equal(t, "f2", farmers[1].ID)

	ids, err := e.ResolveArea(context.Background(), "malabe")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1", "f2"}, ids)
}

func TestGetFarmersInArea_NoMatchIsEmpty(t *testing.T) {
	e := newEngine(t, memstore.New(), nil)

	farmers, err := e.GetFarmersInArea(context.Background(), "Jaffna")
	require.NoError(t, err)
	assert.NotNil(t, farmers)
	assert.Empty(t, farmers)
}

func TestGetFarmersInArea_BlankArea(t *testing.T) {
	e := newEngine(t, memstore.New(), nil)

	_, err := e.GetFarmersInArea(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// --- Windowed query ---

func TestQueryRecords_WindowBoundaryInclusive(t *testing.T) {
	s := memstore.New()
	boundary := now.Add(-domain.DefaultWindow)
	seedObservations(t, s,
		disease("f1", "blast", "Malabe", boundary),
		disease("f1", "blast", "Malabe", boundary.Add(-time.Second)),
		disease("f1", "blast", "Malabe", now.Add(-time.Hour)),
	)
	e := newEngine(t, s, nil)

	records, err := e.QueryRecords(context.Background(), alerting.WindowQuery{Area: "malabe", Kind: domain.KindDisease})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestQueryRecords_RecentOrderAndLimit(t *testing.T) {
	s := memstore.New()
	seedObservations(t, s,
		disease("f1", "blast", "Malabe", now.Add(-3*time.Hour)),
		disease("f1", "tungro", "Malabe", now.Add(-1*time.Hour)),
		disease("f1", "brown spot", "Malabe", now.Add(-2*time.Hour)),
	)
	e := newEngine(t, s, nil)

	records, err := e.QueryRecords(context.Background(), alerting.WindowQuery{
		Area: "Malabe", Kind: domain.KindDisease, Order: alerting.OrderRecent, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "tungro", records[0].Name)
	assert.Equal(t, "brown spot", records[1].Name)
}

func TestQueryRecords_ExcludesOtherKind(t *testing.T) {
	s := memstore.New()
	seedObservations(t, s, disease("f1", "blast", "Malabe", now))
	e := newEngine(t, s, nil)

	records, err := e.QueryRecords(context.Background(), alerting.WindowQuery{Area: "Malabe", Kind: domain.KindPest})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestQueryRecords_UnknownKind(t *testing.T) {
	e := newEngine(t, memstore.New(), nil)

	_, err := e.QueryRecords(context.Background(), alerting.WindowQuery{Area: "Malabe", Kind: "fungus"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQueryRecords_StoreErrorPropagates(t *testing.T) {
	storeErr := errors.New("connection reset")
	e := newEngine(t, &failingStore{Store: memstore.New(), findErr: storeErr}, nil)

	_, err := e.QueryRecords(context.Background(), alerting.WindowQuery{Area: "Malabe", Kind: domain.KindPest})
	assert.ErrorIs(t, err, storeErr)
}

// --- Summary ---

func TestGetAreaAlertSummary_RanksAndClassifies(t *testing.T) {
	s := memstore.New()
	seedObservations(t, s,
		disease("f1", "blast", "Malabe North", now.Add(-1*time.Hour)),
		disease("f2", "blast", "Malabe North", now.Add(-2*time.Hour)),
		disease("f1", "tungro", "Malabe North", now.Add(-3*time.Hour)),
		disease("f3", "blast", "Malabe North", now.Add(-4*time.Hour)),
		disease("f9", "blast", "Kaduwela", now.Add(-1*time.Hour)),
	)
	e := newEngine(t, s, nil)

	summary, err := e.GetAreaAlertSummary(context.Background(), "malabe", domain.KindDisease)
	require.NoError(t, err)

	assert.Equal(t, "malabe", summary.Area)
	assert.Equal(t, domain.KindDisease, summary.Kind)
	assert.Equal(t, now.Add(-domain.DefaultWindow), summary.WindowStart)
	assert.Equal(t, 4, summary.TotalCount)
	assert.Equal(t, 3, summary.AffectedFarmerCount)
	assert.Equal(t, domain.SeverityHigh, summary.Severity)
	assert.Equal(t, []domain.RankedThreat{
		{Name: "blast", Occurrences: 3, Percentage: 75},
		{Name: "tungro", Occurrences: 1, Percentage: 25},
	}, summary.RankedThreats)
}

func TestGetAreaAlertSummary_EmptyAreaIsLow(t *testing.T) {
	e := newEngine(t, memstore.New(), nil)

	summary, err := e.GetAreaAlertSummary(context.Background(), "Nowhere", domain.KindPest)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalCount)
	assert.Equal(t, 0, summary.AffectedFarmerCount)
	assert.Equal(t, domain.SeverityLow, summary.Severity)
	assert.NotNil(t, summary.RankedThreats)
	assert.Empty(t, summary.RankedThreats)
}

func TestGetAreaAlertSummary_Idempotent(t *testing.T) {
	s := memstore.New()
	seedObservations(t, s,
		disease("f1", "blast", "Malabe", now.Add(-time.Hour)),
		disease("f2", "brown spot", "Malabe", now.Add(-time.Hour)),
	)
	e := newEngine(t, s, nil)

	first, err := e.GetAreaAlertSummary(context.Background(), "Malabe", domain.KindDisease)
	require.NoError(t, err)
	second, err := e.GetAreaAlertSummary(context.Background(), "Malabe", domain.KindDisease)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, domain.SeverityMedium, first.Severity)
}

func TestGetAreaAlertSummary_CustomThresholds(t *testing.T) {
	s := memstore.New()
	seedObservations(t, s,
		disease("f1", "blast", "Malabe", now.Add(-time.Hour)),
		disease("f2", "blast", "Malabe", now.Add(-time.Hour)),
	)
	p := domain.DefaultAlertPolicy()
	p.Severity = domain.SeverityThresholds{MediumAt: 1, HighAt: 2}
	e := newEngine(t, s, nil, alerting.WithPolicy(p))

	summary, err := e.GetAreaAlertSummary(context.Background(), "Malabe", domain.KindDisease)
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityHigh, summary.Severity)
}

func TestGetAreaAlertSummary_CancelledContext(t *testing.T) {
	s := memstore.New()
	seedObservations(t, s, disease("f1", "blast", "Malabe", now))
	e := newEngine(t, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.GetAreaAlertSummary(ctx, "Malabe", domain.KindDisease)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetAreaReport(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s,
		domain.Farmer{ID: "f1", LandLocation: "Malabe"},
		domain.Farmer{ID: "f2", LandLocation: "Malabe East"},
	)
	for i := range 12 {
		seedObservations(t, s, disease("f1", "blast", "Malabe", now.Add(-time.Duration(i+1)*time.Hour)))
	}
	e := newEngine(t, s, nil)

	report, err := e.GetAreaReport(context.Background(), "malabe", domain.KindDisease)
	require.NoError(t, err)

	assert.Equal(t, 12, report.Summary.TotalCount)
	assert.Equal(t, 2, report.FarmersInArea)
	assert.Equal(t, now, report.GeneratedAt)
	require.Len(t, report.Recent, 10)
	assert.Equal(t, now.Add(-time.Hour), report.Recent[0].ObservedAt)
	assert.Equal(t, now.Add(-10*time.Hour), report.Recent[9].ObservedAt)
}

// --- Trigger ---

func TestEvaluate_FiresAtThreshold(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s,
		domain.Farmer{ID: "f1", LandLocation: "Malabe"},
		domain.Farmer{ID: "f2", LandLocation: "Malabe West"},
	)
	for range 3 {
		seedObservations(t, s, domain.Observation{Kind: domain.KindPest, ReporterID: "f1", Name: "thrips", Location: "Malabe", ObservedAt: now.Add(-time.Hour)})
	}
	notifier := &mockNotifier{}
	e := newEngine(t, s, notifier)

	fired, err := e.Evaluate(context.Background(), domain.KindPest, "Malabe", "Thrips", domain.TriggerRule{Window: domain.DefaultWindow, Count: 3})
	require.NoError(t, err)
	assert.True(t, fired)

	alerts := notifier.sent()
	require.Len(t, alerts, 1)
	assert.Equal(t, "thrips", alerts[0].Name)
	assert.Equal(t, 3, alerts[0].Count)
	assert.Equal(t, 3, alerts[0].Threshold)
	assert.Equal(t, []string{"f1", "f2"}, alerts[0].Recipients)
	assert.Equal(t, now, alerts[0].TriggeredAt)
}

func TestEvaluate_BelowThresholdIsQuiet(t *testing.T) {
	s := memstore.New()
	for range 2 {
		seedObservations(t, s, domain.Observation{Kind: domain.KindPest, ReporterID: "f1", Name: "thrips", Location: "Malabe", ObservedAt: now})
	}
	notifier := &mockNotifier{}
	e := newEngine(t, s, notifier)

	fired, err := e.Evaluate(context.Background(), domain.KindPest, "Malabe", "thrips", domain.TriggerRule{Window: domain.DefaultWindow, Count: 3})
	require.NoError(t, err)
	assert.False(t, fired)
	assert.Empty(t, notifier.sent())
}

func TestEvaluate_NoFarmersStillFires(t *testing.T) {
	s := memstore.New()
	for range 3 {
		seedObservations(t, s, domain.Observation{Kind: domain.KindPest, ReporterID: "f1", Name: "thrips", Location: "Malabe", ObservedAt: now})
	}
	notifier := &mockNotifier{}
	e := newEngine(t, s, notifier)

	fired, err := e.Evaluate(context.Background(), domain.KindPest, "Malabe", "thrips", domain.TriggerRule{Window: domain.DefaultWindow, Count: 3})
	require.NoError(t, err)
	assert.True(t, fired)
	require.Len(t, notifier.sent(), 1)
	assert.Empty(t, notifier.sent()[0].Recipients)
}

func TestEvaluate_NotifierErrorReturned(t *testing.T) {
	s := memstore.New()
	seedObservations(t, s, domain.Observation{Kind: domain.KindPest, ReporterID: "f1", Name: "thrips", Location: "Malabe", ObservedAt: now})
	sendErr := errors.New("smtp down")
	e := newEngine(t, s, &mockNotifier{err: sendErr})

	fired, err := e.Evaluate(context.Background(), domain.KindPest, "Malabe", "thrips", domain.TriggerRule{Window: time.Hour, Count: 1})
	assert.False(t, fired)
	assert.ErrorIs(t, err, sendErr)
}

// --- Record + trigger ---

func TestRecordObservation_ThirdRecordFires(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s, domain.Farmer{ID: "f1", LandLocation: "Malabe"})
	notifier := &mockNotifier{}
	e := newEngine(t, s, notifier)

	for i := range 2 {
		_, err := e.RecordObservation(context.Background(), pest("f1", "Stem  Borer", "Malabe", now.Add(-time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	assert.Empty(t, notifier.sent(), "two records must not fire")

	saved, err := e.RecordObservation(context.Background(), pest("f1", "stem borer", "Malabe", now))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "stem borer", saved.Name)
	assert.Equal(t, now, saved.RecordedAt)

	alerts := notifier.sent()
	require.Len(t, alerts, 1)
	assert.Equal(t, "stem borer", alerts[0].Name)
	assert.Equal(t, []string{"f1"}, alerts[0].Recipients)
}

func TestRecordObservation_DifferentNamesDoNotTrigger(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s, domain.Farmer{ID: "f1", LandLocation: "Malabe"})
	notifier := &mockNotifier{}
	e := newEngine(t, s, notifier)

	for _, name := range []string{"thrips", "rice bug", "leaf folder"} {
		_, err := e.RecordObservation(context.Background(), pest("f1", name, "Malabe", now))
		require.NoError(t, err)
	}
	assert.Empty(t, notifier.sent())
}

func TestRecordObservation_NotifierFailureDoesNotFailWrite(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s, domain.Farmer{ID: "f1", LandLocation: "Malabe"})
	e := newEngine(t, s, &mockNotifier{err: errors.New("gateway timeout")})

	for range 3 {
		_, err := e.RecordObservation(context.Background(), pest("f1", "thrips", "Malabe", now))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, s.Len())
}

func TestRecordObservation_NotifierPanicIsContained(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s, domain.Farmer{ID: "f1", LandLocation: "Malabe"})
	e := newEngine(t, s, panicNotifier{}, alerting.WithPolicy(domain.AlertPolicy{
		Window:      domain.DefaultWindow,
		Severity:    domain.DefaultSeverityThresholds(),
		Trigger:     domain.TriggerRule{Window: domain.DefaultWindow, Count: 1},
		RecentLimit: 10,
	}))

	_, err := e.RecordObservation(context.Background(), pest("f1", "thrips", "Malabe", now))
	require.NoError(t, err)
}

func TestRecordObservation_TriggerStoreFailureDoesNotFailWrite(t *testing.T) {
	s := &failingStore{Store: memstore.New(), findErr: errors.New("replica lag")}
	seedFarmers(t, s.Store, domain.Farmer{ID: "f1", LandLocation: "Malabe"})
	e := newEngine(t, s, &mockNotifier{})

	saved, err := e.RecordObservation(context.Background(), pest("f1", "thrips", "Malabe", now))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
}

func TestRecordObservation_CancelledCallerStillEvaluates(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s, domain.Farmer{ID: "f1", LandLocation: "Malabe"})
	seedObservations(t, s,
		domain.Observation{Kind: domain.KindPest, ReporterID: "f1", Name: "thrips", Location: "Malabe", ObservedAt: now},
		domain.Observation{Kind: domain.KindPest, ReporterID: "f1", Name: "thrips", Location: "Malabe", ObservedAt: now},
	)
	notifier := &mockNotifier{}
	e := newEngine(t, s, notifier)

	saved, err := s.SaveObservation(context.Background(), domain.Observation{Kind: domain.KindPest, ReporterID: "f1", Name: "thrips", Location: "Malabe", ObservedAt: now})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, e.OnRecordCreated(ctx, saved))
	assert.Len(t, notifier.sent(), 1)
}

func TestRecordObservation_Rejections(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s, domain.Farmer{ID: "f1", LandLocation: "Malabe"})
	e := newEngine(t, s, nil)

	tests := []struct {
		name    string
		in      domain.NewObservation
		wantErr error
	}{
		{"unknown reporter", pest("ghost", "thrips", "Malabe", now), domain.ErrNotFound},
		{"name outside vocabulary", pest("f1", "locust", "Malabe", now), domain.ErrInvalidInput},
		{"disease name as pest", pest("f1", "blast", "Malabe", now), domain.ErrInvalidInput},
		{"missing location", pest("f1", "thrips", " ", now), domain.ErrInvalidInput},
		{"missing time", pest("f1", "thrips", "Malabe", time.Time{}), domain.ErrInvalidInput},
		{"missing reporter", pest("", "thrips", "Malabe", now), domain.ErrInvalidInput},
		{"unknown kind", domain.NewObservation{Kind: "weed", ReporterID: "f1", Name: "thrips", Location: "Malabe", ObservedAt: now}, domain.ErrInvalidInput},
		{
			"coordinates out of range",
			domain.NewObservation{Kind: domain.KindPest, ReporterID: "f1", Name: "thrips", Location: "Malabe", ObservedAt: now, Coordinates: &domain.Coordinates{Lat: 91}},
			domain.ErrInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.RecordObservation(context.Background(), tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Equal(t, 0, s.Len())
}

func TestRecordObservation_StoreFailurePropagates(t *testing.T) {
	saveErr := errors.New("disk full")
	s := &failingStore{Store: memstore.New(), saveErr: saveErr}
	seedFarmers(t, s.Store, domain.Farmer{ID: "f1", LandLocation: "Malabe"})
	e := newEngine(t, s, nil)

	_, err := e.RecordObservation(context.Background(), pest("f1", "thrips", "Malabe", now))
	assert.ErrorIs(t, err, saveErr)
}

func TestRecordObservation_ReporterLookupFailure(t *testing.T) {
	lookupErr := errors.New("timeout")
	e := newEngine(t, &failingStore{Store: memstore.New(), farmerErr: lookupErr}, nil)

	_, err := e.RecordObservation(context.Background(), pest("f1", "thrips", "Malabe", now))
	assert.ErrorIs(t, err, lookupErr)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordObservation_VocabularyExtension(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s, domain.Farmer{ID: "f1", LandLocation: "Malabe"})
	e := newEngine(t, s, nil, alerting.WithVocabulary(domain.DefaultVocabulary([]string{"fall armyworm"}, nil)))

	saved, err := e.RecordObservation(context.Background(), pest("f1", "Fall Armyworm", "Malabe", now))
	require.NoError(t, err)
	assert.Equal(t, "fall armyworm", saved.Name)
}

// --- Review follow-ups ---

type countingGeocoder struct {
	calls int
}

func (g *countingGeocoder) ReverseGeocode(context.Context, float64, float64) (domain.GeocodingResult, error) {
	g.calls++
	return domain.GeocodingResult{PlaceName: "Malabe"}, nil
}

func TestGetAreaAlertSummary_TiesFavourMostRecent(t *testing.T) {
	s := memstore.New()
	seedObservations(t, s,
		disease("f1", "tungro", "Malabe", now.Add(-6*24*time.Hour)),
		disease("f2", "blast", "Malabe", now.Add(-time.Hour)),
	)
	e := newEngine(t, s, nil)

	summary, err := e.GetAreaAlertSummary(context.Background(), "Malabe", domain.KindDisease)
	require.NoError(t, err)
	assert.Equal(t, []domain.RankedThreat{
		{Name: "blast", Occurrences: 1, Percentage: 50},
		{Name: "tungro", Occurrences: 1, Percentage: 50},
	}, summary.RankedThreats)
}

func TestGetAreaReport_AffectedLocations(t *testing.T) {
	s := memstore.New()
	seedObservations(t, s,
		disease("f1", "blast", "Malabe South", now.Add(-time.Hour)),
		disease("f2", "blast", "Malabe North", now.Add(-2*time.Hour)),
		disease("f2", "blast", "Malabe North", now.Add(-3*time.Hour)),
		disease("f3", "blast", "Malabe East", now.Add(-domain.DefaultWindow-time.Hour)),
	)
	e := newEngine(t, s, nil)

	report, err := e.GetAreaReport(context.Background(), "malabe", domain.KindDisease)
	require.NoError(t, err)
	assert.Equal(t, []string{"Malabe North", "Malabe South"}, report.Summary.AffectedLocations)
}

func TestEvaluate_ZeroRuleUsesTriggerPolicy(t *testing.T) {
	s := memstore.New()
	for range 2 {
		seedObservations(t, s, domain.Observation{Kind: domain.KindPest, ReporterID: "f1", Name: "thrips", Location: "Malabe", ObservedAt: now.Add(-3 * 24 * time.Hour)})
	}
	p := domain.DefaultAlertPolicy()
	p.Window = 24 * time.Hour
	p.Trigger = domain.TriggerRule{Window: 7 * 24 * time.Hour, Count: 2}
	notifier := &mockNotifier{}
	e := newEngine(t, s, notifier, alerting.WithPolicy(p))

	fired, err := e.Evaluate(context.Background(), domain.KindPest, "Malabe", "thrips", domain.TriggerRule{})
	require.NoError(t, err)
	assert.True(t, fired, "trigger window, not the summary window, applies")
	require.Len(t, notifier.sent(), 1)
	assert.Equal(t, 2, notifier.sent()[0].Threshold)
}

func TestRecordObservation_RejectedNameSkipsGeocoder(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s, domain.Farmer{ID: "f1", LandLocation: "Malabe"})
	geo := &countingGeocoder{}
	e := newEngine(t, s, nil, alerting.WithGeocoder(geo))

	in := domain.NewObservation{
		Kind: domain.KindPest, ReporterID: "f1", Name: "locust",
		Coordinates: &domain.Coordinates{Lat: 6.9, Lon: 79.96}, ObservedAt: now,
	}
	_, err := e.RecordObservation(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, geo.calls)

	in.Name = "thrips"
	saved, err := e.RecordObservation(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 1, geo.calls)
	assert.Equal(t, "Malabe", saved.Location)
}

func TestRecordObservation_RepeatedIDStoredOnce(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s, domain.Farmer{ID: "f1", LandLocation: "Malabe"})
	notifier := &mockNotifier{}
	e := newEngine(t, s, notifier)

	for i := range 2 {
		_, err := e.RecordObservation(context.Background(), pest("f1", "thrips", "Malabe", now.Add(-time.Duration(i+1)*time.Hour)))
		require.NoError(t, err)
	}
	third := pest("f1", "thrips", "Malabe", now.Add(-time.Minute))
	third.ID = "msg-3"
	first, err := e.RecordObservation(context.Background(), third)
	require.NoError(t, err)
	again, err := e.RecordObservation(context.Background(), third)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Equal(t, 3, s.Len())
	// The repeat re-runs the trigger without inflating the count.
	alerts := notifier.sent()
	require.Len(t, alerts, 2)
	assert.Equal(t, 3, alerts[1].Count)
}

func TestRecordReads(t *testing.T) {
	s := memstore.New()
	seedFarmers(t, s, domain.Farmer{ID: "f1", LandLocation: "Malabe"}, domain.Farmer{ID: "f2", LandLocation: "Kandy"})
	e := newEngine(t, s, nil)
	ctx := context.Background()

	old, err := e.RecordObservation(ctx, pest("f1", "stem borer", "Malabe", now.Add(-40*24*time.Hour)))
	require.NoError(t, err)
	_, err = e.RecordObservation(ctx, pest("f2", "yellow rice borer", "Kandy", now.Add(-time.Hour)))
	require.NoError(t, err)
	_, err = e.RecordObservation(ctx, pest("f1", "thrips", "Malabe", now.Add(-2*time.Hour)))
	require.NoError(t, err)

	got, err := e.GetObservation(ctx, domain.KindPest, old.ID)
	require.NoError(t, err)
	assert.Equal(t, old, got)
	_, err = e.GetObservation(ctx, domain.KindDisease, old.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	mine, err := e.FindObservationsByReporter(ctx, domain.KindPest, "f1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "thrips", mine[0].Name, "most recent first")

	found, err := e.SearchObservations(ctx, domain.KindPest, " Borer ")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "yellow rice borer", found[0].Name)

	_, err = e.SearchObservations(ctx, domain.KindPest, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = e.FindObservationsByReporter(ctx, "fungus", "f1")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
