package handlers

import (
	"context"
	"errors"
	"net/http"

	"panelmotion/internal/domain"
	"panelmotion/internal/middleware"
	"panelmotion/internal/pipeline"
)

type errorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Detail  string      `json:"detail,omitempty"`
	Field   string      `json:"field,omitempty"`
	Stage   string      `json:"stage,omitempty"`
	Job     *domain.Job `json:"job,omitempty"`
}

// error writes a localized error envelope.
func (a *App) error(w http.ResponseWriter, r *http.Request, code int, errCode, key string) {
	a.json(w, code, errorResponse{Error: errCode, Message: localize(middleware.LocaleFromContext(r.Context()), key)})
}

// fail maps a pipeline error to its HTTP category. Upstream diagnostics only
// reach the log. job, when present, is the persisted state after the failure.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, job *domain.Job) {
	locale := middleware.LocaleFromContext(r.Context())
	resp := errorResponse{Job: job}
	code := http.StatusInternalServerError

	var (
		validation   *domain.ValidationError
		precondition *domain.PreconditionError
		stageErr     *domain.StageExecutionError
	)
	switch {
	case errors.Is(err, context.Canceled):
		a.log().Info().Err(err).Str("path", r.URL.Path).Msg("request cancelled by client")
		return
	case errors.Is(err, pipeline.ErrImageTooLarge):
		code, resp.Error, resp.Message = http.StatusRequestEntityTooLarge, "invalid_input", localize(locale, msgImageTooLarge)
	case errors.Is(err, pipeline.ErrUnsupportedImage):
		code, resp.Error, resp.Message = http.StatusUnsupportedMediaType, "invalid_input", localize(locale, msgUnsupportedImage)
	case errors.As(err, &validation):
		code, resp.Error, resp.Message = http.StatusBadRequest, "invalid_input", localize(locale, msgInvalidInput)
		resp.Field, resp.Detail = validation.Field, validation.Reason
	case errors.Is(err, domain.ErrNotFound):
		code, resp.Error, resp.Message = http.StatusNotFound, "not_found", localize(locale, msgNotFound)
	case errors.As(err, &precondition):
		code, resp.Error, resp.Message = http.StatusConflict, "precondition_failed", localize(locale, msgPreconditionFailed)
		resp.Stage, resp.Detail = string(precondition.Stage), precondition.Reason
	case errors.Is(err, pipeline.ErrPollTimeout):
		code, resp.Error, resp.Message = http.StatusGatewayTimeout, "operation_pending", localize(locale, msgOperationPending)
		if errors.As(err, &stageErr) {
			resp.Stage = string(stageErr.Stage)
		}
	case errors.As(err, &stageErr):
		code, resp.Error, resp.Message = http.StatusBadGateway, "stage_failed", localize(locale, msgStageFailed)
		resp.Stage = string(stageErr.Stage)
	default:
		resp.Error, resp.Message = "internal", localize(locale, msgInternal)
	}

	evt := a.log().Warn()
	if code >= http.StatusInternalServerError {
		evt = a.log().Error()
	}
	evt.Err(err).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Int("status", code).
		Msg("request failed")
	a.json(w, code, resp)
}
