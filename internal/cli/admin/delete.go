package admin

import (
	"context"
	"fmt"
	"io"

	"github.com/cloo-solutions/storyrag/internal/cli"
	"github.com/cloo-solutions/storyrag/internal/config"
	"github.com/cloo-solutions/storyrag/internal/repository"
	"github.com/cloo-solutions/storyrag/internal/service"
	"github.com/cloo-solutions/storyrag/internal/storage"
	"github.com/spf13/cobra"
)

type deleteOptions struct {
	ownerID     string
	documentID  string
	purgeObject bool
}

func DeleteCmd() *cobra.Command {
	var opts deleteOptions

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Retract a document",
		Long:  "Delete every stored chunk of a document and cancel its pending index jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			return runDelete(ctx, app, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.ownerID, "owner", "", "Owner of the document")
	cmd.Flags().StringVar(&opts.documentID, "doc", "", "Document ID")
	cmd.Flags().BoolVar(&opts.purgeObject, "purge-object", false, "Also delete the uploaded object from storage")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("doc")
	cli.FlagRequires(cmd, "purge-object", cli.RequiresS3)

	return cmd
}

func runDelete(ctx context.Context, app *App, opts deleteOptions, out io.Writer) error {
	var (
		removed int64
		err     error
	)
	// Records and jobs share a database only with the postgres backend.
	if app.Pool != nil && app.Config.VectorBackend == config.BackendPostgres {
		removed, err = service.NewIndexingService(repository.NewTxRunner(app.Pool), app.Log).Retract(ctx, opts.ownerID, opts.documentID)
	} else {
		removed, err = app.Retrieval.Delete(ctx, opts.ownerID, opts.documentID)
	}
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if opts.purgeObject {
		if app.Storage == nil {
			return fmt.Errorf("--purge-object requires S3 to be configured")
		}
		if err := app.Storage.DeleteObject(ctx, storage.ObjectKey(opts.ownerID, opts.documentID)); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "Deleted %d chunks of document %s\n", removed, opts.documentID)
	return nil
}

func UploadURLCmd() *cobra.Command {
	var ownerID, documentID string

	cmd := &cobra.Command{
		Use:   "upload-url",
		Short: "Create a presigned upload URL for a document",
		Long:  "Print a short-lived URL a client can PUT the document text to; ingest it afterwards with --s3-key",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			if app.Storage == nil {
				return fmt.Errorf("upload-url requires S3 to be configured")
			}

			key := storage.ObjectKey(ownerID, documentID)
			url, err := app.Storage.GenerateUploadURL(ctx, key)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{"key": key, "url": url})
		},
	}

	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner of the document")
	cmd.Flags().StringVar(&documentID, "doc", "", "Document ID")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("doc")
	cli.Requires(cmd, cli.RequiresS3)

	return cmd
}
