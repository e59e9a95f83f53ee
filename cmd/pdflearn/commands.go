package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/config"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/pdf"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
)

// --- library ---

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List and prepare PDFs in the library",
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List PDFs, most recently modified first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/pdf/list")
		if err != nil {
			return err
		}
		var infos []pdf.Info
		if err := decodeJSON(resp, &infos); err != nil {
			return err
		}

		if len(infos) == 0 {
			fmt.Println("No PDFs found.")
			return nil
		}
		for _, info := range infos {
			if info.Error != "" {
				fmt.Printf("%s  %s\n", colorize(colorRed, info.Filename), info.Error)
				continue
			}
			fmt.Printf("%s  %s  %d pages  %s\n",
				colorize(colorCyan, info.Filename),
				info.Title,
				info.NumPages,
				sizeLabel(info.FileSize),
			)
		}
		return nil
	},
}

var libraryExtractCmd = &cobra.Command{
	Use:   "extract <file.pdf>",
	Short: "Queue text extraction of every page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), docPath("/pdf", args[0], "extract"), nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Queued extraction job %s", result["job_id"])
		return nil
	},
}

func init() {
	libraryCmd.AddCommand(libraryListCmd)
	libraryCmd.AddCommand(libraryExtractCmd)
}

func sizeLabel(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// --- notes ---

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Browse saved notes",
}

var notesListCmd = &cobra.Command{
	Use:   "list <file.pdf>",
	Short: "List notes of a PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		path := docPath("/notes", args[0])
		if page > 0 {
			path += "?page=" + strconv.Itoa(page)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var notes []storage.Note
		if err := decodeJSON(resp, &notes); err != nil {
			return err
		}

		if len(notes) == 0 {
			fmt.Println("No notes found.")
			return nil
		}
		for _, n := range notes {
			fmt.Printf("%s  p.%-4d %s  %s\n",
				colorize(colorCyan, shortID(n.ID)),
				n.PageNumber,
				n.CreatedAt.Local().Format("2006-01-02 15:04"),
				n.Title,
			)
		}
		return nil
	},
}

var notesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/notes/id/"+args[0])
		if err != nil {
			return err
		}
		var n storage.Note
		if err := decodeJSON(resp, &n); err != nil {
			return err
		}
		fmt.Printf("%s\n%s, page %d, %s\n\n%s\n",
			colorize(colorBold, n.Title),
			n.DocumentRef, n.PageNumber, n.CreatedAt.Local().Format("2006-01-02 15:04"),
			n.Content,
		)
		return nil
	},
}

var notesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/notes/"+args[0])
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted note %s", args[0])
		return nil
	},
}

var notesSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show note counts per PDF",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/notes/summary")
		if err != nil {
			return err
		}
		var summary []storage.NoteSummary
		if err := decodeJSON(resp, &summary); err != nil {
			return err
		}
		if len(summary) == 0 {
			fmt.Println("No notes found.")
			return nil
		}
		for _, s := range summary {
			fmt.Printf("%s  %s  latest %s: %s\n",
				colorize(colorCyan, s.DocumentRef),
				countLabel(s.Count, "note"),
				s.LatestAt.Local().Format("2006-01-02"),
				truncate(s.LatestTitle, 60),
			)
		}
		return nil
	},
}

var notesExportCmd = &cobra.Command{
	Use:   "export <file.pdf>",
	Short: "Export the notes of a PDF as JSONL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), docPath("/notes", args[0]))
		if err != nil {
			return err
		}
		var notes []json.RawMessage
		if err := decodeJSON(resp, &notes); err != nil {
			return err
		}

		writer := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}
		for _, n := range notes {
			if _, err := fmt.Fprintf(writer, "%s\n", n); err != nil {
				return err
			}
		}
		if output != "" {
			printSuccess("Exported %s to %s", countLabel(len(notes), "note"), output)
		}
		return nil
	},
}

func init() {
	notesListCmd.Flags().Int("page", 0, "only notes on this page")
	notesExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	notesCmd.AddCommand(notesListCmd)
	notesCmd.AddCommand(notesShowCmd)
	notesCmd.AddCommand(notesDeleteCmd)
	notesCmd.AddCommand(notesSummaryCmd)
	notesCmd.AddCommand(notesExportCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func countLabel(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// --- progress ---

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show or set reading progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/progress")
		if err != nil {
			return err
		}
		var all []storage.Progress
		if err := decodeJSON(resp, &all); err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Println("Nothing read yet.")
			return nil
		}
		for _, p := range all {
			fmt.Printf("%s  %s  %s\n",
				colorize(colorCyan, p.DocumentRef),
				progressLabel(p),
				p.UpdatedAt.Local().Format("2006-01-02 15:04"),
			)
		}
		return nil
	},
}

var progressSetCmd = &cobra.Command{
	Use:   "set <file.pdf> <page>",
	Short: "Record the last page read",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid page %q", args[1])
		}
		total, _ := cmd.Flags().GetInt("total")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := (remoteStore{client: client}).SaveProgress(args[0], page, total); err != nil {
			return err
		}
		printSuccess("%s: page %d", args[0], page)
		return nil
	},
}

func init() {
	progressSetCmd.Flags().Int("total", 0, "total pages, if known")
	progressCmd.AddCommand(progressSetCmd)
}

func progressLabel(p storage.Progress) string {
	if p.TotalPages <= 0 {
		return fmt.Sprintf("page %d", p.LastPage)
	}
	return fmt.Sprintf("page %d/%d (%d%%)", p.LastPage, p.TotalPages, p.LastPage*100/p.TotalPages)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fmt.Printf("  %s\n", colorize(colorDim, "# "+config.FilePath()))
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, k.EnvVar))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value in the config file. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
