package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/speakinsights/speakinsights/internal/storage"
)

const (
	meetingSheet = "Meeting"
	itemsSheet   = "Action Items"
	listSheet    = "Meetings"
)

// WriteMeeting writes a single meeting as an xlsx workbook: one sheet with
// the meeting fields, one with its action items.
func WriteMeeting(w io.Writer, m storage.Meeting) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", meetingSheet)

	rows := [][2]string{
		{"ID", fmt.Sprintf("%d", m.ID)},
		{"Title", m.Title},
		{"Date", m.Date.Format(time.RFC3339)},
		{"Audio file", m.AudioFilename},
		{"Summary", strValue(m.Summary)},
		{"Sentiment", strValue(m.Sentiment)},
		{"Sentiment score", floatValue(m.SentimentScore)},
		{"Transcript", m.Transcript},
	}
	if m.FormattedTranscript != "" {
		rows = append(rows, [2]string{"Speaker transcript", m.FormattedTranscript})
	}
	if m.Metadata != nil {
		rows = append(rows,
			[2]string{"Transcription method", m.Metadata.Method},
			[2]string{"Language", m.Metadata.Language},
			[2]string{"Speakers", strings.Join(m.Metadata.Speakers, ", ")},
			[2]string{"Word count", fmt.Sprintf("%d", m.Metadata.WordCount)},
		)
	}
	for i, row := range rows {
		if err := setRow(f, meetingSheet, i+1, row[0], row[1]); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(itemsSheet); err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	if err := setRow(f, itemsSheet, 1, "#", "Action item"); err != nil {
		return err
	}
	for i, item := range m.ActionItems {
		if err := setRow(f, itemsSheet, i+2, fmt.Sprintf("%d", i+1), item); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// WriteMeetings writes one row per meeting, suitable for a quick overview
// across the whole archive. Transcripts are left out.
func WriteMeetings(w io.Writer, meetings []storage.Meeting) error {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", listSheet)

	header := []any{"ID", "Title", "Date", "Sentiment", "Summary", "Action items"}
	if err := f.SetSheetRow(listSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, m := range meetings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			m.ID,
			m.Title,
			m.Date.Format(time.RFC3339),
			strValue(m.Sentiment),
			strValue(m.Summary),
			strings.Join(m.ActionItems, "; "),
		}
		if err := f.SetSheetRow(listSheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, key, value string) error {
	keyCell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	valCell, err := excelize.CoordinatesToCellName(2, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, keyCell, key); err != nil {
		return fmt.Errorf("writing cell %s: %w", keyCell, err)
	}
	if err := f.SetCellValue(sheet, valCell, value); err != nil {
		return fmt.Errorf("writing cell %s: %w", valCell, err)
	}
	return nil
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func floatValue(f *float64) string {
	if f == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *f)
}
