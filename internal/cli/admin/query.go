package admin

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func QueryCmd() *cobra.Command {
	var ownerID, output string

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Build the personal context for a question",
		Long:  "Route a question and, when it concerns the owner's own writing, print the cited context block",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			return runQuery(ctx, app, ownerID, strings.Join(args, " "), output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner whose documents are searched")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func runQuery(ctx context.Context, app *App, ownerID, question, output string, out io.Writer) error {
	res, err := app.Retrieval.Query(ctx, ownerID, question)
	if err != nil {
		return fmt.Errorf("failed to query: %w", err)
	}

	if output == "json" {
		data := map[string]interface{}{
			"kind":    res.Kind,
			"context": res.Context,
			"hits":    len(res.Hits),
		}
		if !res.HasContext() {
			data["reason"] = res.Reason
		}
		return printJSON(out, data)
	}

	if !res.HasContext() {
		fmt.Fprintf(out, "No personal context (%s)\n", res.Reason)
		return nil
	}
	fmt.Fprintln(out, res.Context)
	return nil
}

func SearchCmd() *cobra.Command {
	var (
		ownerID string
		output  string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an owner's chunks",
		Long:  "Return the owner's closest chunks for a query without routing it first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			return runSearch(ctx, app, ownerID, strings.Join(args, " "), limit, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner whose documents are searched")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("owner")

	return cmd
}

func runSearch(ctx context.Context, app *App, ownerID, query string, limit int, output string, out io.Writer) error {
	hits, err := app.Retrieval.Search(ctx, ownerID, query, limit)
	if err != nil {
		return fmt.Errorf("failed to search: %w", err)
	}

	if output == "json" {
		data := make([]map[string]interface{}, len(hits))
		for i, h := range hits {
			data[i] = map[string]interface{}{
				"chunk_id":       h.ChunkID,
				"document_id":    h.DocumentID,
				"sequence_index": h.SequenceIndex,
				"title":          h.Title,
				"created_at":     h.CreatedAt.UTC().Format(time.RFC3339),
				"score":          h.Score,
				"text":           h.Text,
			}
		}
		return printJSON(out, map[string]interface{}{"items": data})
	}

	if len(hits) == 0 {
		fmt.Fprintln(out, "No matches found")
		return nil
	}
	for _, h := range hits {
		fmt.Fprintf(out, "%.4f  %s #%d  %s\n", h.Score, h.DocumentID, h.SequenceIndex, h.Title)
	}
	return nil
}
