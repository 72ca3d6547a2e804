package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XinhuiTian/spark/dataflow"
	"github.com/XinhuiTian/spark/disk"
	"github.com/XinhuiTian/spark/edgerdd"
	"github.com/XinhuiTian/spark/graph"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute(), strings.Join(args, " "))
	return out.String()
}

func TestEndToEnd(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("EDGERDD_DATA_DIR", filepath.Join(tmp, "data"))
	t.Setenv("EDGERDD_UNORDERED_DATA_DIR", filepath.Join(tmp, "unordered"))
	t.Setenv("EDGERDD_NUM_PARTITIONS", "3")
	t.Setenv("EDGERDD_THREADS", "2")
	t.Setenv("EDGERDD_LOG_LEVEL", "error")

	input := filepath.Join(tmp, "input")
	edges := []graph.Edge[int64]{
		{SrcID: 1, DstID: 2, Attr: 5}, {SrcID: 1, DstID: 3, Attr: 6},
		{SrcID: 2, DstID: 3, Attr: 7}, {SrcID: 4, DstID: 3, Attr: 8},
	}
	eng := dataflow.NewEngine(dataflow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	rdd := edgerdd.FromEdges(dataflow.Parallelize(edges, 2))
	require.NoError(t, disk.WriteEdges(context.Background(), eng, rdd, input, disk.ToLongEdgeRow))

	assert.Equal(t, "g1\n", run(t, "import", input, "--attr", "long", "--guid", "g1"))

	stats := run(t, "stats", "--attr", "long", "--guid", "g1")
	assert.Contains(t, stats, "edges\t4\n")
	assert.Contains(t, stats, "partitions\t3\n")
	assert.Contains(t, stats, "partitioning\tEdgePartition2D/3\n")
	assert.Contains(t, stats, "max out-degree\t2\n")
	assert.Contains(t, stats, "max in-degree\t3\n")

	degrees := run(t, "degrees", "--attr", "long", "--guid", "g1", "--direction", "in", "--merge", "sum")
	lines := strings.Split(strings.TrimSpace(degrees), "\n")
	assert.ElementsMatch(t, []string{"2\t1", "3\t3"}, lines)

	// Flags of the previous run do not carry over: the defaults are out/sum.
	degrees = run(t, "degrees", "--attr", "long", "--guid", "g1")
	lines = strings.Split(strings.TrimSpace(degrees), "\n")
	assert.ElementsMatch(t, []string{"1\t2", "2\t1", "4\t1"}, lines)

	exported := filepath.Join(tmp, "exported")
	run(t, "export", "--attr", "long", "--guid", "g1", "-o", exported)
	reimported, err := disk.ImportEdges(exported, disk.FromLongEdgeRow)
	require.NoError(t, err)
	n, err := reimported.Count(context.Background(), eng)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestExampleCommand(t *testing.T) {
	t.Setenv("EDGERDD_DATA_DIR", t.TempDir())
	t.Setenv("EDGERDD_NUM_PARTITIONS", "2")
	t.Setenv("EDGERDD_LOG_LEVEL", "error")
	assert.Equal(t, "people\n", run(t, "example", "--guid", "people"))
	stats := run(t, "stats", "--attr", "string", "--guid", "people")
	assert.Contains(t, stats, "edges\t4\n")
	assert.Contains(t, stats, "max in-degree\t2\n")
}

func TestOpsFor(t *testing.T) {
	for _, attr := range []string{"none", "long", "double", "string"} {
		ops, err := opsFor(&app{}, attr)
		require.NoError(t, err)
		assert.NotNil(t, ops)
	}
	_, err := opsFor(&app{}, "complex")
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestRequiredFlagIsNotRemembered(t *testing.T) {
	t.Setenv("EDGERDD_DATA_DIR", t.TempDir())
	t.Setenv("EDGERDD_LOG_LEVEL", "error")
	run(t, "example", "--guid", "people")
	run(t, "stats", "--attr", "string", "--guid", "people")

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"stats", "--attr", "string"})
	assert.Error(t, root.Execute(), "--guid must be given again")
}

func TestChoiceFlag(t *testing.T) {
	f := newChoiceFlag("out", "in", "out")
	assert.Equal(t, "out", f.String())
	require.NoError(t, f.Set("in"))
	assert.Equal(t, "in", f.String())
	assert.True(t, errors.Is(f.Set("sideways"), errors.NotValid))
	assert.Equal(t, "in", f.String())
}
