package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"panelmotion/internal/domain"
	"panelmotion/internal/storage"
	"panelmotion/pkg/zip"
)

type artifactEntry struct {
	name    string
	locator string
}

// ArtifactsZip streams every stored artifact of a job plus a job.json manifest.
// Artifacts held outside the local store are listed in the manifest only.
func (a *App) ArtifactsZip(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Status.Status(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}

	manifest, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	assets := []zip.Asset{{Filename: "job.json", MIME: "application/json", Data: manifest, Modified: job.UpdatedAt}}
	seen := map[string]bool{}
	for _, entry := range jobArtifacts(job) {
		if entry.locator == "" || seen[entry.locator] {
			continue
		}
		seen[entry.locator] = true
		data, err := a.Artifacts.Read(r.Context(), entry.locator)
		if err != nil {
			a.log().Warn().Err(err).Str("job_id", job.ID).Str("artifact", entry.name).Msg("skip artifact in archive")
			continue
		}
		ext := strings.ToLower(path.Ext(entry.locator))
		if ext == "" {
			ext = storage.ExtensionForMIME(http.DetectContentType(data))
		}
		assets = append(assets, zip.Asset{
			Filename: entry.name + ext,
			MIME:     storage.MIMEForExtension(ext),
			Data:     data,
			Modified: job.UpdatedAt,
		})
	}

	buf := &bytes.Buffer{}
	if err := zip.WriteArchive(buf, assets); err != nil {
		a.fail(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s.zip", job.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func jobArtifacts(job *domain.Job) []artifactEntry {
	return []artifactEntry{
		{name: "original", locator: job.OriginalURL},
		{name: "colorized", locator: job.ColorizedURL},
		{name: "background", locator: job.BackgroundURL},
		{name: "animated", locator: job.AnimatedURL},
		{name: "audio", locator: job.AudioURL},
		{name: "final", locator: job.FinalVideoURL},
	}
}
