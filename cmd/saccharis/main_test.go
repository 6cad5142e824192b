package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saccharis/SACCHARIS-2/internal/catalog"
	"github.com/saccharis/SACCHARIS-2/internal/config"
	"github.com/saccharis/SACCHARIS-2/internal/fasta"
	"github.com/saccharis/SACCHARIS-2/internal/types"
)

// executeCommand runs the root command in-process and returns its stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFamiliesCommand_ListsCategories(t *testing.T) {
	out, err := executeCommand(t, "families")
	require.NoError(t, err)
	assert.Contains(t, out, "  all\n")
	assert.Contains(t, out, "  gh\n")
	assert.Contains(t, out, "  xyloglucan\n")
}

func TestFamiliesCommand_Category(t *testing.T) {
	out, err := executeCommand(t, "families", "example_category")
	require.NoError(t, err)
	assert.Equal(t, "GH62 GT9 PL9 CE1 AA2 CBM4\n", out)
}

func TestFamiliesCommand_UnknownCategory(t *testing.T) {
	_, err := executeCommand(t, "families", "no_such_category")
	assert.Error(t, err)
}

func TestRenameCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "mine.fa")
	require.NoError(t, os.WriteFile(in, []byte(">seq1 first protein\nMKVLA\n>seq1\nMKLLA\n"), 0o644))
	out := filepath.Join(dir, "renamed.fasta")

	stdout, err := executeCommand(t, "rename", in, out, "--start", "3", "--folder=")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Renamed 2 sequences")

	records, err := fasta.ReadFile(out)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "U000000003", records[0].ID)
	assert.Equal(t, "U000000004", records[1].ID)
	assert.Contains(t, records[0].Description, "seq1 first protein")
}

func TestRenameCommand_DefaultOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "mine.fa")
	require.NoError(t, os.WriteFile(in, []byte(">a\nMKV\n"), 0o644))
	folder := filepath.Join(dir, "user")
	require.NoError(t, os.MkdirAll(folder, 0o755))

	_, err := executeCommand(t, "rename", in, "--start", "0", "--folder", folder)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(folder, "mine_UserFormat.fa"))
}

func TestRenameCommand_MissingInput(t *testing.T) {
	_, err := executeCommand(t, "rename", filepath.Join(t.TempDir(), "nope.fasta"), "--start", "0")
	assert.Error(t, err)
}

func TestScrapeCommand_NoFamilies(t *testing.T) {
	_, err := executeCommand(t, "scrape")
	assert.ErrorContains(t, err, "no families")
}

func TestAcquireFlags_Groups(t *testing.T) {
	f := &acquireFlags{category: "example_category"}
	got, err := f.groups([]string{"GH5", "PL9", "GH5"})
	require.NoError(t, err)
	assert.Equal(t, []string{"GH5", "PL9", "GH62", "GT9", "CE1", "AA2", "CBM4"}, got)

	_, err = (&acquireFlags{}).groups([]string{"XY1"})
	var famErr *catalog.FamilyError
	assert.ErrorAs(t, err, &famErr)

	_, err = (&acquireFlags{}).groups(nil)
	assert.ErrorContains(t, err, "no families")
}

func TestAcquireFlags_Scope(t *testing.T) {
	mode, domains, err := (&acquireFlags{mode: "structure", domains: "bacteria,archaea"}).scope()
	require.NoError(t, err)
	assert.Equal(t, types.ModeStructure, mode)
	assert.Equal(t, "AB", domains.DirName())

	_, _, err = (&acquireFlags{mode: "everything", domains: "all"}).scope()
	assert.Error(t, err)
	_, _, err = (&acquireFlags{mode: "all", domains: "plants"}).scope()
	assert.Error(t, err)
}

func TestLoadSettings(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(config.EnvAPIKey, "env-key")

	settings := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("output_dir: /from/file\nthreads: 2\nquery_size: 50\n"), 0o644))
	outDir := filepath.Join(t.TempDir(), "out")

	var f acquireFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--config", settings, "--output", outDir}))

	cfg, err := loadSettings(cmd, &f)
	require.NoError(t, err)
	assert.Equal(t, outDir, cfg.OutputDir)
	assert.Equal(t, 2, cfg.Threads)
	assert.Equal(t, 50, cfg.QuerySize)
	assert.Equal(t, config.TreeFastTree, cfg.TreeProgram)
	assert.Equal(t, "env-key", cfg.APIKey)
}

func TestLoadSettings_InvalidFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	settings := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(settings, []byte(`{"query_size": 5000}`), 0o644))

	f := acquireFlags{configPath: settings}
	_, err := loadSettings(&cobra.Command{Use: "test"}, &f)
	assert.Error(t, err)
}

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"Y\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got, err := newPromptConfirmer(strings.NewReader(tt.input), &out).Confirm("Rename files?")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
		assert.Equal(t, "Rename files? [y/N] ", out.String())
	}
}
