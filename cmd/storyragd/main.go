package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/storyrag/internal/cli"
	"github.com/cloo-solutions/storyrag/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "storyragd",
		Short:         "Personal story retrieval daemon and CLI",
		Long:          "storyragd indexes users' own documents and builds cited context for questions about them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.QueryCmd())
	rootCmd.AddCommand(admin.SearchCmd())
	rootCmd.AddCommand(admin.DeleteCmd())
	rootCmd.AddCommand(admin.UploadURLCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	handled, err := cli.HandleHelpJSON(os.Stdout, rootCmd, os.Args[1:])
	if handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
