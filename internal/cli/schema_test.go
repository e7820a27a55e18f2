package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSchema(t *testing.T) {
	root := &cobra.Command{Use: "tutorcored", Short: "root"}
	AddHelpJSONFlag(root)

	search := &cobra.Command{Use: "search <query>", Short: "Retrieve content", Run: func(*cobra.Command, []string) {}}
	search.Flags().IntP("max", "n", 10, "Maximum results")
	search.Flags().Bool("exact", false, "Exact scan")
	root.AddCommand(search)

	hidden := &cobra.Command{Use: "debug", Hidden: true, Run: func(*cobra.Command, []string) {}}
	root.AddCommand(hidden)

	schema := GenerateSchema(root)

	assert.Equal(t, "tutorcored", schema.Name)
	assert.Empty(t, schema.Flags)
	require.Len(t, schema.Subcommands, 1)

	sub := schema.Subcommands[0]
	assert.Equal(t, "search", sub.Name)
	assert.Equal(t, "search <query>", sub.Use)
	require.Len(t, sub.Flags, 2)

	byName := map[string]FlagSchema{}
	for _, f := range sub.Flags {
		byName[f.Name] = f
	}
	assert.Equal(t, "n", byName["max"].Shorthand)
	assert.Equal(t, "int", byName["max"].Type)
	assert.Equal(t, "10", byName["max"].Default)
	assert.Equal(t, "bool", byName["exact"].Type)
}

func TestFindTargetCommand(t *testing.T) {
	root := &cobra.Command{Use: "tutorcored"}
	material := &cobra.Command{Use: "material"}
	process := &cobra.Command{Use: "process <material-id>"}
	material.AddCommand(process)
	root.AddCommand(material)

	assert.Equal(t, process, findTargetCommand(root, []string{"material", "process"}))
	assert.Equal(t, material, findTargetCommand(root, []string{"material", "unknown"}))
	assert.Equal(t, root, findTargetCommand(root, nil))
}
