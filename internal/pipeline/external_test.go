package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saccharis/SACCHARIS-2/internal/catalog"
	"github.com/saccharis/SACCHARIS-2/internal/fasta"
	"github.com/saccharis/SACCHARIS-2/internal/fetch"
	"github.com/saccharis/SACCHARIS-2/internal/merge"
	"github.com/saccharis/SACCHARIS-2/internal/ncbi"
	"github.com/saccharis/SACCHARIS-2/internal/types"
)

func TestExpand(t *testing.T) {
	got := Expand(
		[]string{"muscle", "-align", "{input}", "-output", "{output}", "-threads={threads}", "{unknown}"},
		map[string]string{"input": "in.fasta", "output": "out.aln", "threads": "8"},
	)
	assert.Equal(t, []string{"muscle", "-align", "in.fasta", "-output", "out.aln", "-threads=8", "{unknown}"}, got)
}

func TestTool_Stdout(t *testing.T) {
	tool := Tool{Stage: "model_select", Argv: []string{"/bin/sh", "-c", `echo "$1"; echo noise >&2`, "sh", "{model}"}}
	out, err := tool.Run(context.Background(), map[string]string{"model": "WAG"})
	require.NoError(t, err)
	assert.Equal(t, "WAG\n", out)
}

func TestTool_FailureKeepsStderrTail(t *testing.T) {
	tool := Tool{Stage: "align", Argv: []string{"/bin/sh", "-c", `for i in $(seq 1 30); do echo "line $i" >&2; done; exit 3`}}
	_, err := tool.Run(context.Background(), nil)

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.ExitCode)
	assert.Contains(t, te.Stderr, "line 30")
	assert.NotContains(t, te.Stderr, "line 10\n")
	assert.Contains(t, err.Error(), "exit code 3")
}

func TestTool_NotInstalled(t *testing.T) {
	tool := Tool{Stage: "tree_build", Argv: []string{"definitely-not-a-real-tree-builder", "{input}"}}
	_, err := tool.Run(context.Background(), map[string]string{"input": "x"})

	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "definitely-not-a-real-tree-builder", te.Command)
	assert.Contains(t, Hint(err), "PATH")
}

func TestTool_NoCommand(t *testing.T) {
	_, err := Tool{Stage: "render"}.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "no command configured")
}

func TestTool_CancelStopsChild(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	tool := Tool{Stage: "tree_build", Argv: []string{"/bin/sh", "-c", "sleep 30"}, GracePeriod: time.Second}
	_, err := tool.Run(ctx, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestReadBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.bounds.tsv")
	content := "# module_id\tstart\tend\nAAA11111.1\t10\t250\nAAA11111.1<2>\t300\t520\n\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := ReadBounds(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]Bounds{
		"AAA11111.1":    {Start: 10, End: 250},
		"AAA11111.1<2>": {Start: 300, End: 520},
	}, got)

	require.NoError(t, os.WriteFile(path, []byte("AAA11111.1\t20\t10\n"), 0o644))
	_, err = ReadBounds(path)
	assert.ErrorContains(t, err, "invalid range")
}

func TestModuleRecords(t *testing.T) {
	parents := types.RecordMap{
		"AAA11111.1": {RecordID: "AAA11111.1", OrganismName: types.StrPtr("E. coli"), SourceDescriptor: types.SourceCatalog},
	}
	modules := []fasta.Record{{ID: "AAA11111.1"}, {ID: "AAA11111.1<2>"}, {ID: "ZZZ99999.1"}}
	ranges := map[string]Bounds{"AAA11111.1": {1, 200}, "AAA11111.1<2>": {210, 400}}

	got := ModuleRecords(parents, modules, ranges)
	require.Len(t, got, 3)

	second := got["AAA11111.1<2>"]
	assert.Equal(t, "AAA11111.1<2>", second.RecordID)
	assert.Equal(t, "E. coli", types.Deref(second.OrganismName))
	assert.Equal(t, 210, *second.BoundaryStart)
	assert.Equal(t, 400, *second.BoundaryEnd)
	assert.Nil(t, parents["AAA11111.1"].BoundaryStart, "parent record is not modified")

	assert.Equal(t, "unknown", got["ZZZ99999.1"].SourceDescriptor)
	assert.Nil(t, got["ZZZ99999.1"].BoundaryStart)
}

func TestParentID(t *testing.T) {
	assert.Equal(t, "AAA11111.1", ParentID("AAA11111.1<3>"))
	assert.Equal(t, "U000000001", ParentID("U000000001"))
}

func TestRunner_RejectsBadStageOrder(t *testing.T) {
	r := &Runner{Stages: []Stage{&AlignStage{}, &AcquireStage{}}}
	_, err := r.Run(context.Background(), &Artifacts{Group: "PL9"})
	assert.ErrorContains(t, err, "missing dependencies")
}

func TestHint_CollisionDoesNotSuggestAutoRename(t *testing.T) {
	err := &StageError{Group: "PL9", Stage: "merge", Cause: &merge.IdentityCollisionError{IDs: []string{"AAA11111.1"}}}
	assert.NotContains(t, Hint(err), "--auto-rename")
}

func TestHint(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&fetch.TransportError{URL: "http://x"}, "network"},
		{&fetch.ServiceError{URL: "http://x", StatusCode: 503}, "try again later"},
		{&catalog.FormatError{Group: "PL9"}, "--fresh"},
		{&catalog.FamilyError{Family: "GH999"}, "saccharis families"},
		{&ncbi.BatchError{Failures: 100}, "query_size"},
		{&merge.IdentityCollisionError{IDs: []string{"A"}}, "rename or remove"},
		{&merge.IdentityError{}, "--auto-rename"},
		{&InsufficientDataError{Group: "PL9"}, "domain filter"},
		{&ToolError{Stage: "align"}, "PATH"},
		{fmt.Errorf("stage: %w", context.Canceled), "resume"},
		{errors.New("something else"), ""},
	}
	for _, tt := range tests {
		wrapped := &StageError{Group: "PL9", Stage: "x", Cause: tt.err}
		if tt.want == "" {
			assert.Empty(t, Hint(wrapped))
			continue
		}
		assert.Contains(t, Hint(wrapped), tt.want, "%T", tt.err)
	}
}
