package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"ingest/internal/assetloader"
	"ingest/internal/journal"
	"ingest/internal/language"
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
	for i := 0; i < columns; i++ {
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

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func negotiationTable(outcomes []assetloader.Negotiation, decoders map[assetloader.TrackType]string, summarize func(assetloader.TrackType) trackSummary) string {
	headers := []string{"Index", "Type", "Format", "Supported", "Output", "Offset", "Samples", "Bytes", "Decoder", "Target"}
	rows := make([][]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		track := outcome.Track
		summary := summarize(track.Format.Type)
		decoder := decoders[track.Format.Type]
		if decoder == "" {
			decoder = "-"
		}
		target := summary.target
		if target == "" {
			target = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(track.Index),
			track.Format.Type.String(),
			track.Format.String(),
			track.Supported.String(),
			outcome.Output.String(),
			formatMicros(track.OffsetUs),
			strconv.Itoa(summary.samples),
			strconv.FormatInt(summary.bytes, 10),
			decoder,
			target,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight})
}

func historyTable(records []journal.SessionRecord) string {
	headers := []string{"Session", "Started", "Asset", "Status", "Duration", "Tracks", "Error"}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		errText := rec.ErrorKind
		if errText == "" {
			errText = "-"
		}
		rows = append(rows, []string{
			shortID(rec.ID),
			rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
			rec.AssetURI,
			string(rec.Status),
			rec.Duration.String(),
			strconv.Itoa(rec.TrackCount),
			errText,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight})
}

func trackHistoryTable(tracks []journal.TrackRecord) string {
	headers := []string{"#", "Index", "Type", "Codec", "Language", "Supported", "Requested", "Output"}
	rows := make([][]string, 0, len(tracks))
	for _, tr := range tracks {
		output := tr.Output
		if output == "" {
			output = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(tr.Position),
			strconv.Itoa(tr.Index),
			tr.Type.String(),
			tr.Codec,
			languageLabel(tr.Language),
			tr.Supported,
			tr.Requested,
			output,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignRight})
}

func languageLabel(tag string) string {
	if tag == "" {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", tag, language.DisplayName(tag))
}

func formatMicros(us int64) string {
	return (time.Duration(us) * time.Microsecond).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
