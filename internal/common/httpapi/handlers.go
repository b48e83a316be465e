package httpapi

import (
	"encoding/json"
	"net/http"

	"admissions-workers/internal/common/database"
	"admissions-workers/internal/common/errors"
	"admissions-workers/internal/models"
	submitapplication "admissions-workers/internal/workers/pipeline/submit-application"

	"github.com/go-chi/chi/v5"
)

const maxBody = 1 << 20

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) ready(w http.ResponseWriter, r *http.Request) {
	failures := database.CheckAll(r.Context(), a.deps.Checks...)
	body := make(map[string]string, len(a.deps.Checks))
	for _, c := range a.deps.Checks {
		body[c.Name()] = "ok"
	}
	for name, err := range failures {
		body[name] = err.Error()
	}
	code := http.StatusOK
	if len(failures) > 0 {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	var input submitapplication.Input
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&input); err != nil {
		a.writeErr(w, errors.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	out, err := a.deps.Submitter.Execute(r.Context(), &input)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type runResponse struct {
	ApplicationID string `json:"application_id"`
	RunID         string `json:"run_id"`
	Status        string `json:"status"`
}

func (a *API) start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "applicationId")
	runID, err := a.deps.Pipeline.StartAsync(r.Context(), id)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{ApplicationID: id, RunID: runID, Status: string(models.StatusExtracting)})
}

func (a *API) resume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "applicationId")
	stage, err := models.ParseStage(chi.URLParam(r, "stage"))
	if err != nil {
		a.writeErr(w, errors.NewValidationError(err.Error()))
		return
	}
	runID, err := a.deps.Pipeline.ResumeFromAsync(r.Context(), id, stage)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, runResponse{ApplicationID: id, RunID: runID, Status: string(stage.RunningStatus())})
}

func (a *API) cancel(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Pipeline.Cancel(chi.URLParam(r, "applicationId")); err != nil {
		a.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) status(w http.ResponseWriter, r *http.Request) {
	view, err := a.deps.Pipeline.GetStatus(r.Context(), chi.URLParam(r, "applicationId"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) reportURL(w http.ResponseWriter, r *http.Request) {
	if a.deps.Presigner == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "NOT_IMPLEMENTED", Message: "report links are not configured"})
		return
	}
	view, err := a.deps.Pipeline.GetStatus(r.Context(), chi.URLParam(r, "applicationId"))
	if err != nil {
		a.writeErr(w, err)
		return
	}
	if view.Report == "" {
		writeJSON(w, http.StatusNotFound, errorBody{Error: string(errors.ErrCodeNotFound), Message: "no report has been generated"})
		return
	}
	url, err := a.deps.Presigner.PresignGet(r.Context(), view.Report, a.deps.PresignTTL)
	if err != nil {
		a.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"url":                url,
		"expires_in_seconds": int(a.deps.PresignTTL.Seconds()),
	})
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// statusFor maps error codes onto HTTP statuses.
func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeAlreadyRunning, errors.ErrCodeInvalidTransition, errors.ErrCodeDuplicateApplication:
		return http.StatusConflict
	case errors.ErrCodeValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeErr(w http.ResponseWriter, err error) {
	std := errors.ToStandardError(err)
	code := statusFor(std.Code)
	if code >= http.StatusInternalServerError {
		a.logger.Error("request failed", map[string]interface{}{"errorCode": string(std.Code), "error": err})
	}
	writeJSON(w, code, errorBody{Error: string(std.Code), Message: std.Message, Details: std.Details})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
