package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/jwulff/transcribe/internal/api"
	"github.com/jwulff/transcribe/internal/result"
	"github.com/jwulff/transcribe/internal/ui"
)

// backend timestamps come with or without a zone
var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"}

func formatCreated(s string) string {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Local().Format("2006-01-02 15:04")
		}
	}
	return s
}

func renderHistory(resp api.HistoryResponse) string {
	if len(resp.Transcriptions) == 0 {
		return "No transcriptions."
	}

	rows := make([][]string, 0, len(resp.Transcriptions))
	for _, tr := range resp.Transcriptions {
		name := ""
		if tr.Audio != nil {
			name = tr.Audio.Filename
		}
		rows = append(rows, []string{
			tr.ID,
			tr.Status,
			formatCreated(tr.CreatedAt),
			name,
			result.Preview(result.FromTranscription(tr).Display(), 40),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(ui.DividerStyle).
		Headers("ID", "STATUS", "CREATED", "FILE", "TEXT").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return ui.TableHeaderStyle
			case col == 1:
				return ui.StatusStyleFor(rows[row][1]).Padding(0, 1)
			}
			return ui.TableCellStyle
		})

	p := resp.Pagination
	footer := fmt.Sprintf("Page %d of %d (%d total)", p.Page, max(p.Pages, 1), p.Total)
	return t.Render() + "\n" + ui.DimStyle.Render(footer)
}
