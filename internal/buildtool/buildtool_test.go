package buildtool

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/redogrid/internal/model"
	"github.com/vk/redogrid/internal/testutil"
)

func newTestTool(r *testutil.FakeRunner) *Tool {
	return New(r, Options{
		Environ: []string{"PATH=/bin"},
		Stdout:  &bytes.Buffer{},
		Stderr:  &bytes.Buffer{},
	})
}

func TestCheckStale_MatchesOracleLines(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	r := testutil.NewFakeRunner().Script("redo-ood", testutil.Reply{Stdout: "/work/b.out\n/work/c.out\n"})
	tool := newTestTool(r)
	targets := model.Targets("/work/a.out", "/work/b.out", "/work/c.out")

	res := tool.CheckStale(ctx, targets)

	require.True(t, res.Available())
	assert.Equal(t, []bool{false, true, true}, res.Stale)
	assert.Equal(t, []bool{false, true, true}, res.Resolve(3))

	calls := r.CallsTo("redo-ood")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"/work/a.out", "/work/b.out", "/work/c.out"}, calls[0].Args)
}

func TestCheckStale_LengthAlwaysMatchesTargets(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	for _, n := range []int{0, 1, 5} {
		r := testutil.NewFakeRunner().Script("redo-ood", testutil.Reply{Stdout: "unrelated\n"})
		targets := make([]model.Target, n)
		for i := range targets {
			targets[i] = model.Target("/w/" + string(rune('a'+i)))
		}

		res := newTestTool(r).CheckStale(ctx, targets)

		assert.Len(t, res.Stale, n)
		assert.Len(t, res.Resolve(n), n)
	}
}

func TestCheckStale_OracleFailureMarksAllStale(t *testing.T) {
	ctx, logs := testutil.LoggedContext(t)
	r := testutil.NewFakeRunner().Script("redo-ood", testutil.Reply{ExitCode: 1, Stderr: "redo-ood: not in a redo session"})
	targets := model.Targets("/work/a.out", "/work/b.out")

	res := newTestTool(r).CheckStale(ctx, targets)

	require.False(t, res.Available())
	assert.Equal(t, 1, res.Err.ExitCode)
	assert.Contains(t, res.Err.Error(), "not in a redo session")
	assert.Equal(t, []bool{true, true}, res.Resolve(2))
	assert.Contains(t, logs.String(), "treating all targets as stale")
}

func TestCheckStale_OracleMissingMarksAllStale(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	r := testutil.NewFakeRunner().Script("redo-ood", testutil.Reply{Err: errors.New("executable file not found")})

	res := newTestTool(r).CheckStale(ctx, model.Targets("/work/a.out"))

	require.False(t, res.Available())
	assert.ErrorContains(t, res.Err, "executable file not found")
	assert.Equal(t, []bool{true}, res.Resolve(1))
}

func TestEnsure_InvokesBuildToolOnce(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	r := testutil.NewFakeRunner()

	err := newTestTool(r).Ensure(ctx, model.Targets("/work/a.out", "/work/b.out"))

	require.NoError(t, err)
	calls := r.CallsTo("redo-ifchange")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"/work/a.out", "/work/b.out"}, calls[0].Args)
	assert.Equal(t, []string{"PATH=/bin"}, calls[0].Env)
}

func TestEnsure_NonZeroExitIsEnsureError(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	r := testutil.NewFakeRunner().Script("redo-ifchange", testutil.Reply{ExitCode: 2})

	err := newTestTool(r).Ensure(ctx, model.Targets("/work/a.out"))

	var ensureErr *EnsureError
	require.True(t, errors.As(err, &ensureErr))
	assert.Equal(t, 2, ensureErr.ExitCode)
	assert.Contains(t, err.Error(), `target "/work/a.out"`)
}

func TestNew_CustomCommands(t *testing.T) {
	ctx, _ := testutil.LoggedContext(t)
	r := testutil.NewFakeRunner()
	tool := New(r, Options{EnsureCommand: "mybuild", OracleCommand: "mybuild-ood", Environ: []string{}})

	require.NoError(t, tool.Ensure(ctx, model.Targets("x")))
	tool.CheckStale(ctx, model.Targets("x"))

	assert.Len(t, r.CallsTo("mybuild"), 1)
	assert.Len(t, r.CallsTo("mybuild-ood"), 1)
	assert.Equal(t, "mybuild", tool.EnsureCommand())
}
