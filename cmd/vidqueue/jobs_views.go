package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vidqueue/internal/api"
)

// displayTimeLayout is used for absolute timestamps in table output.
const displayTimeLayout = "2006-01-02 15:04"

// timeFormatter renders API timestamps either as absolute UTC times or, for
// interactive terminals, relative to now.
type timeFormatter struct {
	relative bool
	now      func() time.Time
}

func (f timeFormatter) format(value string) string {
	t, ok := parseAPITime(value)
	if !ok {
		return strings.TrimSpace(value)
	}
	if f.relative {
		now := time.Now
		if f.now != nil {
			now = f.now
		}
		return humanize.RelTime(t, now(), "ago", "from now")
	}
	return t.UTC().Format(displayTimeLayout)
}

func parseAPITime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ReplaceAll(status, "_", " "))
}

func formatSize(bytes int64) string {
	if bytes < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(bytes))
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds * float64(time.Second))).Round(time.Second).String()
}

func buildJobListRows(items []api.Job, times timeFormatter) [][]string {
	if len(items) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(items))
	for _, job := range items {
		rows = append(rows, []string{
			job.ID,
			job.OriginalName,
			formatStatusLabel(job.Status),
			formatSize(job.SizeBytes),
			times.format(job.CreatedAt),
		})
	}
	return rows
}

func buildJobDetails(job api.Job, links *api.Links, times timeFormatter) [][2]string {
	pairs := [][2]string{
		{"ID", job.ID},
		{"Name", job.OriginalName},
		{"Stored as", job.StoredFilename},
		{"Status", formatStatusLabel(job.Status)},
		{"Size", formatSize(job.SizeBytes)},
	}
	if job.MimeType != "" {
		pairs = append(pairs, [2]string{"MIME type", job.MimeType})
	}
	if job.Metadata != nil {
		pairs = append(pairs,
			[2]string{"Duration", formatDuration(job.Metadata.DurationSeconds)},
			[2]string{"Resolution", fmt.Sprintf("%dx%d", job.Metadata.Width, job.Metadata.Height)},
		)
	}
	if job.ErrorMessage != "" {
		pairs = append(pairs, [2]string{"Error", job.ErrorMessage})
	}
	pairs = append(pairs,
		[2]string{"Created", times.format(job.CreatedAt)},
		[2]string{"Updated", times.format(job.UpdatedAt)},
	)
	if links != nil {
		pairs = append(pairs, [2]string{"Original", links.Original})
		if links.LowRes != "" {
			pairs = append(pairs, [2]string{"Low-res", links.LowRes})
		}
		if links.Thumbnail != "" {
			pairs = append(pairs, [2]string{"Thumbnail", links.Thumbnail})
		}
		pairs = append(pairs, [2]string{"Links expire", "in " + strconv.Itoa(links.ExpiresIn) + "s"})
	}
	return pairs
}

func buildCountRows(counts map[string]int, order []string) [][]string {
	rows := make([][]string, 0, len(order))
	for _, key := range order {
		rows = append(rows, []string{formatStatusLabel(key), strconv.Itoa(counts[key])})
	}
	return rows
}
