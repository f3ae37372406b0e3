package admin

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cloo-solutions/storyrag/internal/cli"
	"github.com/cloo-solutions/storyrag/internal/domain"
	"github.com/cloo-solutions/storyrag/internal/repository"
	"github.com/cloo-solutions/storyrag/internal/service"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type ingestOptions struct {
	ownerID    string
	documentID string
	title      string
	createdAt  string
	file       string
	s3Key      string
	async      bool
	output     string
}

func IngestCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index a document",
		Long:  "Chunk, embed and store a document read from a file or from object storage. With --async the document is queued for the worker instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			return runIngest(ctx, app, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.ownerID, "owner", "", "Owner of the document")
	cmd.Flags().StringVar(&opts.documentID, "doc", "", "Document ID (generated when empty)")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "Document title")
	cmd.Flags().StringVar(&opts.createdAt, "created-at", "", "Document creation time, RFC 3339 (defaults to now)")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read the document text from this file ('-' for stdin)")
	cmd.Flags().StringVar(&opts.s3Key, "s3-key", "", "Read the document text from this object key")
	cmd.Flags().BoolVar(&opts.async, "async", false, "Queue the document for the worker instead of indexing now")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format (text or json)")
	_ = cmd.MarkFlagRequired("owner")
	cmd.MarkFlagsOneRequired("file", "s3-key")
	cmd.MarkFlagsMutuallyExclusive("file", "s3-key")
	cli.FlagRequires(cmd, "s3-key", cli.RequiresS3)
	cli.FlagRequires(cmd, "async", cli.RequiresDatabase)

	return cmd
}

func runIngest(ctx context.Context, app *App, opts ingestOptions, out io.Writer) error {
	doc, err := buildDocument(ctx, app, opts)
	if err != nil {
		return err
	}

	if opts.async {
		pool, err := app.RequirePool("ingest --async")
		if err != nil {
			return err
		}
		job, err := service.NewIndexingService(repository.NewTxRunner(pool), app.Log).Enqueue(ctx, doc)
		if err != nil {
			return fmt.Errorf("failed to queue document: %w", err)
		}
		if opts.output == "json" {
			return printJSON(out, map[string]interface{}{
				"job_id":      job.ID,
				"document_id": job.DocumentID,
				"owner_id":    job.OwnerID,
				"status":      job.Status,
			})
		}
		fmt.Fprintf(out, "Queued document %s as job %s\n", job.DocumentID, job.ID)
		return nil
	}

	res, err := app.Retrieval.Ingest(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to ingest document: %w", err)
	}

	if opts.output == "json" {
		skipped := make([]int, len(res.Skipped))
		for i, s := range res.Skipped {
			skipped[i] = s.SequenceIndex
		}
		data := map[string]interface{}{
			"document_id":    res.DocumentID,
			"owner_id":       res.OwnerID,
			"status":         res.Status,
			"chunks_total":   res.ChunksTotal,
			"chunks_indexed": res.ChunksIndexed,
			"skipped":        skipped,
		}
		if err := res.Err(); err != nil {
			data["error"] = err.Error()
		}
		if err := printJSON(out, data); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Document %s: %s (%d/%d chunks indexed)\n", res.DocumentID, res.Status, res.ChunksIndexed, res.ChunksTotal)
		for _, s := range res.Skipped {
			fmt.Fprintf(out, "  skipped chunk %d: %v\n", s.SequenceIndex, s.Err)
		}
	}

	return res.Err()
}

func buildDocument(ctx context.Context, app *App, opts ingestOptions) (*domain.Document, error) {
	createdAt := time.Now().UTC()
	if opts.createdAt != "" {
		t, err := time.Parse(time.RFC3339, opts.createdAt)
		if err != nil {
			return nil, domain.ErrInvalidInput.Wrap(fmt.Errorf("invalid --created-at: %w", err))
		}
		createdAt = t
	}

	var text string
	switch {
	case opts.file != "":
		data, err := readFile(opts.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", opts.file, err)
		}
		text = data
	case opts.s3Key != "":
		if app.Storage == nil {
			return nil, fmt.Errorf("--s3-key requires S3 to be configured")
		}
		data, err := app.Storage.GetObjectText(ctx, opts.s3Key)
		if err != nil {
			return nil, err
		}
		text = data
	default:
		return nil, domain.ErrMissingRequiredField.Wrap(fmt.Errorf("one of --file or --s3-key is required"))
	}

	documentID := opts.documentID
	if documentID == "" {
		documentID = uuid.NewString()
	}
	return domain.NewDocument(documentID, opts.ownerID, opts.title, createdAt, text), nil
}
