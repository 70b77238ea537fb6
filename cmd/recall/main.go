// Command recall is the CLI for the personal memory service.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/apiclient"
	"github.com/spf13/cobra"
)

var (
	flagAPIURL string
	flagToken  string
)

func main() {
	root := &cobra.Command{
		Use:           "recall",
		Short:         "Personal semantic memory CLI",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "API base URL (default: RECALL_API_URL or "+apiclient.DefaultBaseURL+")")
	root.PersistentFlags().StringVar(&flagToken, "token", "", "API auth token (default: RECALL_API_TOKEN)")

	root.AddCommand(
		newAddCmd(),
		newSearchCmd(),
		newIngestCmd(),
		newListCmd(),
		newDeleteCmd(),
		newStatusCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// newClient resolves flags over environment over the shared env file.
func newClient() *apiclient.Client {
	c := apiclient.FromEnv()
	if flagAPIURL == "" && flagToken == "" {
		return c
	}
	baseURL := flagAPIURL
	if baseURL == "" {
		baseURL = c.BaseURL()
	}
	token := flagToken
	if token == "" {
		token = os.Getenv("RECALL_API_TOKEN")
	}
	return apiclient.New(baseURL, token)
}

func isTTY() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// outputFormat picks table output for terminals and JSON for pipes unless
// overridden.
func outputFormat(flag string) string {
	if flag != "" {
		return flag
	}
	if isTTY() {
		return "table"
	}
	return "json"
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func newAddCmd() *cobra.Command {
	var (
		tags      []string
		source    string
		dedupeKey string
	)
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Store a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.MemoryCreateRequest{Text: args[0], Tags: tags, Source: source}
			if dedupeKey != "" {
				req.DedupeKey = &dedupeKey
			}
			resp, err := newClient().CreateMemory(context.Background(), req)
			if err != nil {
				return err
			}
			fmt.Printf("Stored id=%s strategy=%s\n", resp.ID, resp.IDStrategy)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&tags, "tag", "t", nil, "Tag(s) to attach")
	cmd.Flags().StringVarP(&source, "source", "s", "cli", "Source identifier")
	cmd.Flags().StringVarP(&dedupeKey, "dedupe-key", "d", "", "Deduplication key")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var (
		topK   int
		noText bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by semantic similarity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			includeText := !noText
			resp, err := newClient().Search(context.Background(), api.SearchRequest{
				Query:       args[0],
				TopK:        &topK,
				IncludeText: &includeText,
			})
			if err != nil {
				return err
			}

			if outputFormat(output) == "json" {
				return printJSON(resp.Results)
			}
			if len(resp.Results) == 0 {
				fmt.Println("No results found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			if noText {
				fmt.Fprintln(w, "SCORE\tID\tTAGS\tWRITTEN AT")
			} else {
				fmt.Fprintln(w, "SCORE\tID\tTAGS\tWRITTEN AT\tTEXT")
			}
			for _, r := range resp.Results {
				row := fmt.Sprintf("%.3f\t%s\t%s\t%s",
					r.Score, r.ID, strings.Join(r.Tags, ","), truncate(r.WrittenAt, 19))
				if !noText {
					text := ""
					if r.Text != nil {
						text = *r.Text
					}
					row += "\t" + truncate(text, 80)
				}
				fmt.Fprintln(w, row)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "Number of results")
	cmd.Flags().BoolVar(&noText, "no-text", false, "Omit memory text from results")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: table|json")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var (
		format     string
		source     string
		autoDedupe bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest memories from a file (one per line, or JSON lines)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			items, err := parseIngestFile(string(raw), format, source)
			if err != nil {
				return err
			}
			if autoDedupe {
				for i := range items {
					src := items[i].Source
					if src == "" {
						src = source
					}
					sum := sha256.Sum256([]byte(items[i].Text + src))
					key := hex.EncodeToString(sum[:])
					items[i].DedupeKey = &key
				}
			}

			client := newClient()
			const batchSize = 100
			total := api.IngestResponse{Errors: []api.IngestError{}}
			for off := 0; off < len(items); off += batchSize {
				end := off + batchSize
				if end > len(items) {
					end = len(items)
				}
				resp, err := client.Ingest(context.Background(), api.IngestRequest{Items: items[off:end]})
				if err != nil {
					return err
				}
				total.Succeeded += resp.Succeeded
				total.Failed += resp.Failed
				for _, e := range resp.Errors {
					e.Index += off
					total.Errors = append(total.Errors, e)
				}
			}

			fmt.Printf("Ingested %d succeeded, %d failed\n", total.Succeeded, total.Failed)
			for _, e := range total.Errors {
				fmt.Printf("  error item %d: %s\n", e.Index, e.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "lines", "Input format: lines|jsonl")
	cmd.Flags().StringVarP(&source, "source", "s", "ingest", "Source identifier")
	cmd.Flags().BoolVar(&autoDedupe, "auto-dedupe", false, "Derive a dedupe key from each item's text and source")
	return cmd
}

func parseIngestFile(raw, format, source string) ([]api.IngestItem, error) {
	var items []api.IngestItem
	for i, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if format == "jsonl" {
			var item api.IngestItem
			if err := json.Unmarshal([]byte(line), &item); err != nil {
				return nil, fmt.Errorf("line %d: %w", i+1, err)
			}
			items = append(items, item)
			continue
		}
		items = append(items, api.IngestItem{Text: line, Tags: []string{}, Source: source})
	}
	return items, nil
}

func newListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
		output string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored memories, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().List(context.Background(), limit, cursor)
			if err != nil {
				return err
			}

			if outputFormat(output) == "json" {
				return printJSON(resp)
			}
			if len(resp.Memories) == 0 {
				fmt.Println("No memories found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTAGS\tSOURCE\tWRITTEN AT\tTEXT")
			for _, m := range resp.Memories {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					m.ID, strings.Join(m.Tags, ","), m.Source,
					truncate(m.WrittenAt, 19), truncate(m.Text, 60))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if resp.NextCursor != nil {
				fmt.Printf("\nNext cursor: %s\n", *resp.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Page size")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Continuation cursor from a previous page")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: table|json")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a memory by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := newClient().Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show API health status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, _, err := newClient().Health(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("status: %s\n", health.Status)
			fmt.Printf("qdrant: %s\n", ternary(health.Qdrant))
			fmt.Printf("ollama: %s\n", ternary(health.Ollama))
			return nil
		},
	}
}

func ternary(b *bool) string {
	if b == nil {
		return "unknown"
	}
	if *b {
		return "up"
	}
	return "down"
}
