package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/crop-threat-alerts/internal/domain"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const maxBodyBytes = 1 << 20

// AlertService is the part of the alert engine the API exposes.
type AlertService interface {
	GetAreaReport(ctx context.Context, area string, kind domain.Kind) (domain.AreaReport, error)
	GetFarmersInArea(ctx context.Context, area string) ([]domain.Farmer, error)
	RecordObservation(ctx context.Context, in domain.NewObservation) (domain.Observation, error)
	GetObservation(ctx context.Context, kind domain.Kind, id string) (domain.Observation, error)
	FindObservationsByReporter(ctx context.Context, kind domain.Kind, reporterID string) ([]domain.Observation, error)
	SearchObservations(ctx context.Context, kind domain.Kind, query string) ([]domain.Observation, error)
}

type farmersResponse struct {
	Location string          `json:"location"`
	Farmers  []domain.Farmer `json:"farmers"`
	Count    int             `json:"count"`
}

type api struct {
	svc    AlertService
	logger *slog.Logger
}

func newAPI(svc AlertService, logger *slog.Logger) *api {
	return &api{svc: svc, logger: logger}
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/pest-alerts/area/{location}", a.handleAreaReport(domain.KindPest))
	mux.HandleFunc("GET /api/disease-alerts/area/{location}", a.handleAreaReport(domain.KindDisease))
	mux.HandleFunc("GET /api/pest-alerts/farmers/{location}", a.handleFarmers)
	mux.HandleFunc("GET /api/disease-alerts/farmers/{location}", a.handleFarmers)
	mux.HandleFunc("POST /api/pest-infestations", a.handleRecord(domain.KindPest))
	mux.HandleFunc("POST /api/disease-detections", a.handleRecord(domain.KindDisease))

	mux.HandleFunc("GET /api/pest-infestations/{id}", a.handleGetRecord(domain.KindPest))
	mux.HandleFunc("GET /api/disease-detections/{id}", a.handleGetRecord(domain.KindDisease))
	mux.HandleFunc("GET /api/pest-infestations/farmer/{farmerId}", a.handleReporterRecords(domain.KindPest))
	mux.HandleFunc("GET /api/disease-detections/farmer/{farmerId}", a.handleReporterRecords(domain.KindDisease))
	mux.HandleFunc("GET /api/pest-infestations/search", a.handleSearch(domain.KindPest, "pestName"))
	mux.HandleFunc("GET /api/disease-detections/search", a.handleSearch(domain.KindDisease, "diseaseName"))
}

func (a *api) handleAreaReport(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := a.svc.GetAreaReport(r.Context(), r.PathValue("location"), kind)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, report)
	}
}

func (a *api) handleFarmers(w http.ResponseWriter, r *http.Request) {
	location := r.PathValue("location")
	farmers, err := a.svc.GetFarmersInArea(r.Context(), location)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, farmersResponse{
		Location: location,
		Farmers:  farmers,
		Count:    len(farmers),
	})
}

// handleRecord accepts the mobile app payload. The route fixes the kind, so a
// disease name posted to the pest route is rejected as an unknown pest.
func (a *api) handleRecord(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var p domain.ObservationPayload
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&p); err != nil {
			a.writeError(w, r, fmt.Errorf("%w: decode body: %v", domain.ErrInvalidInput, err))
			return
		}
		p.Kind = string(kind)

		in, err := p.ToNewObservation(kind)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		saved, err := a.svc.RecordObservation(r.Context(), in)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		sharedobs.WriteJSON(w, http.StatusCreated, saved)
	}
}

func (a *api) handleGetRecord(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obs, err := a.svc.GetObservation(r.Context(), kind, r.PathValue("id"))
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, obs)
	}
}

func (a *api) handleReporterRecords(kind domain.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := a.svc.FindObservationsByReporter(r.Context(), kind, r.PathValue("farmerId"))
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, records)
	}
}

// handleSearch matches the name query parameter as a case-insensitive substring.
func (a *api) handleSearch(kind domain.Kind, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := a.svc.SearchObservations(r.Context(), kind, r.URL.Query().Get(param))
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, records)
	}
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		sharedobs.WriteJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	a.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
