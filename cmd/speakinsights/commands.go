package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// meetingJSON mirrors the API wire format for display.
type meetingJSON struct {
	ID                  int64    `json:"id"`
	Title               string   `json:"title"`
	Date                string   `json:"date"`
	Transcript          string   `json:"transcript"`
	FormattedTranscript string   `json:"formatted_transcript"`
	Summary             *string  `json:"summary"`
	Sentiment           *string  `json:"sentiment"`
	SentimentScore      *float64 `json:"sentiment_score"`
	ActionItems         []string `json:"action_items"`
}

var meetingsCmd = &cobra.Command{
	Use:   "meetings",
	Short: "Browse the meeting archive",
}

var meetingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processed meetings, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/api/meetings?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Meetings []meetingJSON `json:"meetings"`
			Total    int           `json:"total"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.Total == 0 {
			fmt.Println("No meetings yet. Upload one with: speakinsights process <audio-file> --title ...")
			return nil
		}

		for _, m := range result.Meetings {
			sentiment := "-"
			if m.Sentiment != nil {
				sentiment = *m.Sentiment
			}
			fmt.Printf("%4d  %-10s %-40s %s\n", m.ID, sentiment, truncate(m.Title, 40), m.Date)
		}
		fmt.Printf("\n%d of %d meetings\n", len(result.Meetings), result.Total)
		return nil
	},
}

var meetingsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one meeting with transcript and analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid meeting id %q", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(fmt.Sprintf("/api/meetings/%d", id))
		if err != nil {
			return err
		}

		var m meetingJSON
		if err := decodeJSON(resp, &m); err != nil {
			return err
		}

		printMeeting(m)
		return nil
	},
}

var meetingsRegenerateCmd = &cobra.Command{
	Use:   "regenerate <id>",
	Short: "Re-run analysis over a stored transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid meeting id %q", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Regenerating analysis for meeting %d...", id)
		resp, err := client.post(fmt.Sprintf("/api/meetings/%d/regenerate", id))
		if err != nil {
			return err
		}

		var m meetingJSON
		if err := decodeJSON(resp, &m); err != nil {
			return err
		}

		printSuccess("Analysis regenerated")
		printMeeting(m)
		return nil
	},
}

var meetingsExportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Export meetings to an xlsx workbook",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		path := "/api/meetings/export"
		if len(args) == 1 {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid meeting id %q", args[0])
			}
			path = fmt.Sprintf("/api/meetings/%d/export", id)
			if output == "" {
				output = fmt.Sprintf("meeting_%d.xlsx", id)
			}
		}
		if output == "" {
			output = "meetings.xlsx"
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
		}

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		if _, err := io.Copy(f, resp.Body); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}

		printSuccess("Exported to %s", output)
		return nil
	},
}

var processCmd = &cobra.Command{
	Use:   "process <audio-file>",
	Short: "Upload and process a meeting recording",
	Long: `Upload a recording for transcription and analysis.

Examples:
  speakinsights process standup.mp3 --title "Monday standup"
  speakinsights process board.wav --title "Q3 board meeting"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		if title == "" {
			return fmt.Errorf("--title is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Uploading %s...", args[0])
		resp, err := client.upload("/api/meetings", title, args[0])
		if err != nil {
			return err
		}

		var result struct {
			Meeting             meetingJSON `json:"meeting"`
			TranscriptionMethod string      `json:"transcription_method"`
			AnalysisPending     bool        `json:"analysis_pending"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Meeting %d processed (%s transcription)", result.Meeting.ID, result.TranscriptionMethod)
		if result.AnalysisPending {
			printWarning("Analysis failed; run: speakinsights meetings regenerate %d", result.Meeting.ID)
		}
		printMeeting(result.Meeting)
		return nil
	},
}

func init() {
	meetingsListCmd.Flags().Int("limit", 20, "maximum number of meetings to list")
	meetingsExportCmd.Flags().String("output", "", "output file path")
	processCmd.Flags().String("title", "", "meeting title")

	meetingsCmd.AddCommand(meetingsListCmd)
	meetingsCmd.AddCommand(meetingsShowCmd)
	meetingsCmd.AddCommand(meetingsRegenerateCmd)
	meetingsCmd.AddCommand(meetingsExportCmd)
}

func printMeeting(m meetingJSON) {
	fmt.Printf("\n%s (meeting %d, %s)\n", colorize(colorBold, m.Title), m.ID, m.Date)

	if m.Summary != nil {
		fmt.Printf("\n%s\n%s\n", colorize(colorBold, "Summary"), *m.Summary)
	}
	if m.Sentiment != nil {
		score := ""
		if m.SentimentScore != nil {
			score = fmt.Sprintf(" (%.2f)", *m.SentimentScore)
		}
		fmt.Printf("\n%s %s%s\n", colorize(colorBold, "Sentiment:"), *m.Sentiment, score)
	}
	if len(m.ActionItems) > 0 {
		fmt.Printf("\n%s\n", colorize(colorBold, "Action items"))
		for i, item := range m.ActionItems {
			fmt.Printf("  %d. %s\n", i+1, item)
		}
	}

	transcript := m.FormattedTranscript
	if transcript == "" {
		transcript = m.Transcript
	}
	if transcript != "" {
		fmt.Printf("\n%s\n%s\n", colorize(colorBold, "Transcript"), transcript)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
