package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/NadeemAtDure/dhis2-core/lib/apierror"
	"github.com/NadeemAtDure/dhis2-core/lib/trackerimport"
	"github.com/NadeemAtDure/dhis2-core/lib/version"
)

// EventImportRequest is the body of POST /api/tracker/events.
type EventImportRequest struct {
	Events []trackerimport.Event `json:"events"`
}

type asyncImportResponse struct {
	JobID   string `json:"jobId"`
	Message string `json:"message"`
}

// handleImportEvents serves POST /api/tracker/events. With async=true
// the batch runs on a job and only the job identifier is returned;
// otherwise the full import summary comes back inline.
func (s *Server) handleImportEvents(user requestUser, w http.ResponseWriter, r *http.Request) error {
	var request EventImportRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		return apierror.New(
			apierror.WithHTTPCode(http.StatusBadRequest),
			apierror.WithErrorID("malformed_body"),
			apierror.WithPublicMessage("Request body is not a valid event payload"),
			apierror.WithInternalMessage(err.Error()))
	}
	if len(request.Events) == 0 {
		return apierror.New(
			apierror.WithHTTPCode(http.StatusBadRequest),
			apierror.WithErrorID("empty_batch"),
			apierror.WithPublicMessage("No events in payload"))
	}
	if len(request.Events) > s.cfg.Limits.MaxImportEvents {
		return apierror.New(
			apierror.WithHTTPCode(http.StatusRequestEntityTooLarge),
			apierror.WithErrorID("batch_too_large"),
			apierror.WithPublicMessage(fmt.Sprintf("Payload exceeds the %d event limit", s.cfg.Limits.MaxImportEvents)))
	}

	opts, err := importOptionsFromQuery(r)
	if err != nil {
		return err
	}

	run := func(ctx context.Context) (*trackerimport.ImportSummary, error) {
		work, err := s.loader.Load(ctx, opts, request.Events)
		if err != nil {
			return nil, err
		}
		return s.importer.Import(ctx, work)
	}

	if r.URL.Query().Get("async") == "true" {
		jobID := s.registry.Start(r.Context(), run)
		writeJSON(w, http.StatusOK, asyncImportResponse{
			JobID:   jobID,
			Message: "Import job started",
		})
		return nil
	}

	summary, err := run(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, summary)
	return nil
}

func importOptionsFromQuery(r *http.Request) (*trackerimport.ImportOptions, error) {
	query := r.URL.Query()
	opts := trackerimport.DefaultImportOptions()

	opts.DryRun = query.Get("dryRun") == "true"
	opts.SkipNotifications = query.Get("skipNotifications") == "true"
	opts.AtomicMode = query.Get("atomicMode") == "true"

	if raw := query.Get("importStrategy"); raw != "" {
		switch strategy := trackerimport.ImportStrategy(raw); strategy {
		case trackerimport.StrategyCreate,
			trackerimport.StrategyUpdate,
			trackerimport.StrategyCreateAndUpdate,
			trackerimport.StrategyDelete:
			opts.ImportStrategy = strategy
		default:
			return nil, apierror.NewIllegalQuery(apierror.ErrInvalidParameter,
				fmt.Sprintf("Invalid import strategy: %q", raw))
		}
	}

	return opts, nil
}

// handleGetEvent serves GET /api/tracker/events/{uid}, returning the
// stored representation of one event.
func (s *Server) handleGetEvent(user requestUser, w http.ResponseWriter, r *http.Request) error {
	uid := mux.Vars(r)["uid"]
	event, err := s.importer.GetEvent(r.Context(), uid)
	if err != nil {
		return err
	}
	if event == nil {
		return apierror.New(
			apierror.WithHTTPCode(http.StatusNotFound),
			apierror.WithErrorID("event_not_found"),
			apierror.WithPublicMessage(fmt.Sprintf("No event with id %q", uid)))
	}
	writeJSON(w, http.StatusOK, event)
	return nil
}

// handleJobReport serves GET /api/tracker/jobs/{uid}/report.
func (s *Server) handleJobReport(user requestUser, w http.ResponseWriter, r *http.Request) error {
	jobID := mux.Vars(r)["uid"]
	report, ok := s.registry.Report(jobID)
	if !ok {
		return apierror.New(
			apierror.WithHTTPCode(http.StatusNotFound),
			apierror.WithErrorID("job_not_found"),
			apierror.WithPublicMessage(fmt.Sprintf("No job with id %q", jobID)))
	}
	writeJSON(w, http.StatusOK, report)
	return nil
}

type systemInfoResponse struct {
	Version  string `json:"version"`
	Revision string `json:"revision,omitempty"`
	Username string `json:"currentUser"`
}

func (s *Server) handleSystemInfo(user requestUser, w http.ResponseWriter, r *http.Request) error {
	response := systemInfoResponse{Username: user.username}
	if info, err := version.GetInfo(); err == nil {
		response.Version = info.VersionString()
		response.Revision = info.CommitHash
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}
