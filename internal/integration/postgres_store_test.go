//go:build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/crop-threat-alerts/internal/adapter/postgres"
	"github.com/couchcryptid/crop-threat-alerts/internal/alerting"
	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	"github.com/couchcryptid/crop-threat-alerts/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreWithEngine(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	url := startPostgres(ctx, t)
	store, err := postgres.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// Re-running migrations is a no-op.
	require.NoError(t, postgres.Migrate(url))

	for _, f := range []domain.Farmer{
		{ID: "f1", FirstName: "Nimal", LandLocation: "Malabe North"},
		{ID: "f2", FirstName: "Kumari", LandLocation: "malabe south"},
		{ID: "f3", FirstName: "Plot", LandLocation: "Plot_7"},
	} {
		_, err := store.SaveFarmer(ctx, f)
		require.NoError(t, err)
	}

	now := time.Date(2024, time.May, 8, 12, 0, 0, 0, time.UTC)
	notifier := &recordingNotifier{}
	engine, err := alerting.New(store, notifier, discardLogger(), observability.NewMetricsForTesting(),
		alerting.WithClock(clockwork.NewFakeClockAt(now)))
	require.NoError(t, err)

	for _, name := range []string{"blast", "tungro", "blast", "blast"} {
		_, err := engine.RecordObservation(ctx, domain.NewObservation{
			Kind:       domain.KindDisease,
			ReporterID: "f1",
			Name:       name,
			Location:   "Malabe North",
			ObservedAt: now.Add(-24 * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err = engine.RecordObservation(ctx, domain.NewObservation{
		Kind: domain.KindDisease, ReporterID: "f2", Name: "blast", Location: "Malabe South",
		ObservedAt: now.Add(-domain.DefaultWindow - time.Second),
	})
	require.NoError(t, err)

	_, err = engine.RecordObservation(ctx, domain.NewObservation{
		Kind: domain.KindDisease, ReporterID: "ghost", Name: "blast", Location: "Malabe", ObservedAt: now,
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	summary, err := engine.GetAreaAlertSummary(ctx, "MALABE", domain.KindDisease)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.TotalCount)
	assert.Equal(t, 1, summary.AffectedFarmerCount)
	assert.Equal(t, domain.SeverityHigh, summary.Severity)
	assert.Equal(t, []domain.RankedThreat{
		{Name: "blast", Occurrences: 3, Percentage: 75},
		{Name: "tungro", Occurrences: 1, Percentage: 25},
	}, summary.RankedThreats)

	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, "blast", notifier.alerts[0].Name)
	assert.Equal(t, []string{"f1"}, notifier.alerts[0].Recipients)

	farmers, err := engine.GetFarmersInArea(ctx, "plot_")
	require.NoError(t, err)
	require.Len(t, farmers, 1)
	assert.Equal(t, "f3", farmers[0].ID)

	mine, err := engine.FindObservationsByReporter(ctx, domain.KindDisease, "f2")
	require.NoError(t, err)
	require.Len(t, mine, 1, "reporter listing has no time bound")

	found, err := engine.SearchObservations(ctx, domain.KindDisease, "TUN")
	require.NoError(t, err)
	require.Len(t, found, 1)

	got, err := engine.GetObservation(ctx, domain.KindDisease, found[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "tungro", got.Name)

	// A redelivered ID is stored once.
	redelivered := domain.NewObservation{
		ID: "obs-redelivered", Kind: domain.KindDisease, ReporterID: "f1", Name: "brown spot",
		Location: "Malabe North", ObservedAt: now.Add(-time.Hour),
	}
	for range 2 {
		_, err := engine.RecordObservation(ctx, redelivered)
		require.NoError(t, err)
	}
	summary, err = engine.GetAreaAlertSummary(ctx, "malabe", domain.KindDisease)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalCount)

	assert.NoError(t, engine.CheckReadiness(ctx))
}

type recordingNotifier struct {
	alerts []domain.Alert
}

func (n *recordingNotifier) Notify(_ context.Context, a domain.Alert) error {
	n.alerts = append(n.alerts, a)
	return nil
}
