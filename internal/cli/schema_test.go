package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoot() *cobra.Command {
	root := &cobra.Command{Use: "storyragd", Short: "root"}
	AddHelpJSONFlag(root)

	ingest := &cobra.Command{Use: "ingest", Short: "Index a document", RunE: func(*cobra.Command, []string) error { return nil }}
	ingest.Flags().String("owner", "", "Owner of the document")
	ingest.Flags().StringP("file", "f", "", "Read the document text from this file")
	ingest.Flags().String("s3-key", "", "Read the document text from this object key")
	ingest.Flags().BoolP("async", "a", false, "Queue instead")
	_ = ingest.MarkFlagRequired("owner")
	ingest.MarkFlagsOneRequired("file", "s3-key")
	ingest.MarkFlagsMutuallyExclusive("file", "s3-key")
	FlagRequires(ingest, "s3-key", RequiresS3)
	root.AddCommand(ingest)

	query := &cobra.Command{Use: "query <question>", Aliases: []string{"q"}, Short: "Build context"}
	root.AddCommand(query)

	serve := &cobra.Command{Use: "serve", Short: "Run the worker"}
	Requires(serve, RequiresDatabase)
	root.AddCommand(serve)

	root.AddCommand(&cobra.Command{Use: "secret", Hidden: true})
	return root
}

func subcommand(t *testing.T, schema CommandSchema, name string) CommandSchema {
	t.Helper()
	for _, sub := range schema.Subcommands {
		if sub.Name == name {
			return sub
		}
	}
	require.Failf(t, "missing subcommand", "%s not in schema", name)
	return CommandSchema{}
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(testRoot())

	assert.Equal(t, "storyragd", schema.Name)
	require.Len(t, schema.Subcommands, 3)

	ingest := subcommand(t, schema, "ingest")
	assert.Equal(t, "Index a document", ingest.Description)
	assert.Empty(t, ingest.Args)
	assert.Equal(t, [][]string{{"file", "s3-key"}}, ingest.OneRequired)
	assert.Equal(t, [][]string{{"file", "s3-key"}}, ingest.MutuallyExclusive)

	flags := map[string]FlagSchema{}
	for _, f := range ingest.Flags {
		flags[f.Name] = f
	}
	assert.True(t, flags["owner"].Required)
	assert.Equal(t, "string", flags["owner"].Type)
	assert.False(t, flags["async"].Required)
	assert.Equal(t, "a", flags["async"].Shorthand)
	assert.Equal(t, []string{RequiresS3}, flags["s3-key"].Requires)
	assert.Empty(t, flags["file"].Requires)
	assert.NotContains(t, flags, "help-json")

	assert.Equal(t, []string{"<question>"}, subcommand(t, schema, "query").Args)
	assert.Equal(t, []string{RequiresDatabase}, subcommand(t, schema, "serve").Requires)
}

func TestHandleHelpJSON(t *testing.T) {
	root := testRoot()
	var out bytes.Buffer

	handled, err := HandleHelpJSON(&out, root, []string{"query", "--help-json"})
	require.NoError(t, err)
	assert.True(t, handled)

	var schema CommandSchema
	require.NoError(t, json.Unmarshal(out.Bytes(), &schema))
	assert.Equal(t, "query", schema.Name)

	out.Reset()
	handled, err = HandleHelpJSON(&out, root, []string{"query", "where did I go?"})
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Zero(t, out.Len())
}

func TestFindTargetCommand(t *testing.T) {
	root := testRoot()
	query := findTargetCommand(root, []string{"query"})

	assert.Equal(t, "query", query.Name())
	assert.Equal(t, query, findTargetCommand(root, []string{"q"}))
	assert.Equal(t, query, findTargetCommand(root, []string{"query", "extra"}))
	assert.Equal(t, root, findTargetCommand(root, []string{"unknown"}))
	assert.Equal(t, root, findTargetCommand(root, nil))
}
