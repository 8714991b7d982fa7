package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"panelmotion/internal/domain"
	"panelmotion/internal/pipeline"
)

const multipartOverhead = 1 << 20

// CreateJob accepts a panel image as multipart field "image" or as a raw
// image/* body and runs preprocessing and colorizing before responding.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	img, err := a.readImage(w, r)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	job, err := a.Pipeline.Start(r.Context(), img)
	if err != nil {
		a.fail(w, r, err, job)
		return
	}
	w.Header().Set("Location", "/v1/jobs/"+job.ID)
	a.json(w, http.StatusCreated, job)
}

func (a *App) readImage(w http.ResponseWriter, r *http.Request) (pipeline.Image, error) {
	limit := a.MaxUploadBytes
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		file, header, err := r.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return pipeline.Image{}, tooLargeError(limit)
			}
			return pipeline.Image{}, domain.Invalid("image", "multipart field \"image\" is required")
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, limit+1))
		if err != nil {
			return pipeline.Image{}, domain.Invalid("image", "read upload: %v", err)
		}
		return pipeline.Image{Filename: header.Filename, ContentType: header.Header.Get("Content-Type"), Data: data}, nil
	case strings.HasPrefix(mediaType, "image/"):
		data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			return pipeline.Image{}, domain.Invalid("image", "read body: %v", err)
		}
		return pipeline.Image{Filename: r.URL.Query().Get("filename"), ContentType: mediaType, Data: data}, nil
	default:
		return pipeline.Image{}, unsupportedMediaError(mediaType)
	}
}

func tooLargeError(limit int64) error {
	return errors.Join(pipeline.ErrImageTooLarge, domain.Invalid("image", "upload exceeds %d bytes", limit))
}

func unsupportedMediaError(mediaType string) error {
	if mediaType == "" {
		mediaType = "none"
	}
	return errors.Join(pipeline.ErrUnsupportedImage, domain.Invalid("image", "content type %s is not accepted", mediaType))
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := a.Status.List(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": jobs})
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Status.Status(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, job)
}

// RunStage runs one named stage. The body carries the stage parameters and
// may be empty.
func (a *App) RunStage(w http.ResponseWriter, r *http.Request) {
	var params domain.StageParams
	if r.Body != nil {
		dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
		if err := dec.Decode(&params); err != nil && !errors.Is(err, io.EOF) {
			a.fail(w, r, domain.Invalid("body", "invalid payload"), nil)
			return
		}
	}
	name := domain.StageName(chi.URLParam(r, "stage"))
	job, err := a.Pipeline.Advance(r.Context(), chi.URLParam(r, "job_id"), name, params)
	if err != nil {
		a.fail(w, r, err, job)
		return
	}
	a.json(w, http.StatusOK, job)
}

func (a *App) FinalizeJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Pipeline.Finalize(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, job)
}

func (a *App) ListStages(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"items":           a.Status.Stages(),
		"backgroundTypes": domain.BackgroundTypes(),
		"animationTypes":  domain.AnimationTypes(),
		"voiceTypes":      domain.VoiceTypes(),
	})
}

func (a *App) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	a.error(w, r, http.StatusMethodNotAllowed, "method_not_allowed", msgMethodNotAllowed)
}

func (a *App) NotFound(w http.ResponseWriter, r *http.Request) {
	a.error(w, r, http.StatusNotFound, "not_found", msgNotFound)
}
