package main

import (
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"panelmotion/internal/domain"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func renderJob(job *domain.Job) string {
	rows := [][]string{
		{"id", job.ID},
		{"stage", string(job.Stage)},
		{"progress", strconv.Itoa(job.Progress) + "%"},
	}
	add := func(key, value string) {
		if value != "" {
			rows = append(rows, []string{key, value})
		}
	}
	add("original", job.OriginalURL)
	add("preprocessed", job.PreprocessedURL)
	add("colorized", job.ColorizedURL)
	add("background", job.BackgroundURL)
	add("animated", job.AnimatedURL)
	add("audio", job.AudioURL)
	add("final video", job.FinalVideoURL)
	add("background type", job.BackgroundType)
	add("animation type", job.AnimationType)
	add("voice type", job.VoiceType)
	if job.PendingOperationID != "" {
		add("pending", string(job.PendingStage)+" "+job.PendingOperationID)
	}
	add("updated", formatTime(job.UpdatedAt))
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func renderJobList(jobs []domain.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		pending := ""
		if job.PendingOperationID != "" {
			pending = string(job.PendingStage)
		}
		rows = append(rows, []string{job.ID, string(job.Stage), strconv.Itoa(job.Progress) + "%", pending, formatTime(job.CreatedAt)})
	}
	return renderTable(
		[]string{"ID", "Stage", "Progress", "Pending", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func renderStages(items []domain.StageInfo) string {
	rows := make([][]string, 0, len(items))
	for _, info := range items {
		rows = append(rows, []string{string(info.Stage), info.Label, strconv.Itoa(info.Progress)})
	}
	return renderTable([]string{"Stage", "Label", "Progress"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
