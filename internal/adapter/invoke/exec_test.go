package invoke

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unisearch/internal/domain"
	"unisearch/internal/infra/logger"
)

func query(t *testing.T, text string) domain.Query {
	t.Helper()
	q, err := domain.NewQuery(text, domain.ModeDefault, 5, false)
	require.NoError(t, err)
	return q
}

func shSpec(id, script string) domain.ProviderSpec {
	return domain.ProviderSpec{
		ID: id,
		Invocation: domain.InvocationDescriptor{
			Kind:    domain.TransportExec,
			Command: "sh",
			Args:    []string{"-c", script, "sh", "{{query}}"},
		},
	}
}

func newTestAdapter(maxOutput int) *Adapter {
	return New(Options{MaxOutputBytes: maxOutput, KillGrace: 200 * time.Millisecond}, logger.Discard())
}

func TestBuildArgsDefaultChain(t *testing.T) {
	serper := domain.ProviderSpec{
		ID:         "serper",
		Accepts:    []domain.Param{domain.ParamMode},
		ParamNames: map[domain.Param]string{domain.ParamQuery: "-q", domain.ParamMode: "--mode"},
		Invocation: domain.InvocationDescriptor{Args: []string{"scripts/search.py"}},
	}
	brave := domain.ProviderSpec{
		ID:         "brave",
		Accepts:    []domain.Param{domain.ParamCount, domain.ParamContent},
		ParamNames: map[domain.Param]string{domain.ParamCount: "-n", domain.ParamContent: "--content"},
		Invocation: domain.InvocationDescriptor{Args: []string{"search.js", "{{query}}"}},
	}
	bing := domain.ProviderSpec{
		ID:         "bing",
		Invocation: domain.InvocationDescriptor{Args: []string{"skills/bing-search/scripts/search.py", "{{query}}"}},
	}

	q, err := domain.NewQuery("go release notes", domain.ModeCurrent, 7, true)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"scripts/search.py", "-q", "go release notes", "--mode", "current"},
		BuildArgs(serper, domain.ResolveParams(q, serper)))
	assert.Equal(t,
		[]string{"search.js", "go release notes", "-n", "7", "--content"},
		BuildArgs(brave, domain.ResolveParams(q, brave)))
	assert.Equal(t,
		[]string{"skills/bing-search/scripts/search.py", "go release notes"},
		BuildArgs(bing, domain.ResolveParams(q, bing)))
}

func TestBuildArgsContentFalseOmitsFlag(t *testing.T) {
	brave := domain.ProviderSpec{
		Accepts:    []domain.Param{domain.ParamCount, domain.ParamContent},
		ParamNames: map[domain.Param]string{domain.ParamCount: "-n", domain.ParamContent: "--content"},
		Invocation: domain.InvocationDescriptor{Args: []string{"search.js"}},
	}
	q := query(t, "x")
	assert.Equal(t, []string{"search.js", "-n", "5", "x"}, BuildArgs(brave, domain.ResolveParams(q, brave)))
}

func TestExecSuccess(t *testing.T) {
	a := newTestAdapter(1 << 20)
	attempt := a.Invoke(context.Background(), shSpec("p", `echo "  result for $1  "`), query(t, "golang"), 5*time.Second)

	require.Equal(t, domain.OutcomeSuccess, attempt.Outcome, attempt.Detail)
	assert.Equal(t, "result for golang", attempt.Output)
	assert.Equal(t, 0, attempt.ExitStatus)
	assert.Equal(t, "p", attempt.Provider)
	assert.Equal(t, domain.ModeDefault, attempt.Mode)
	assert.Empty(t, attempt.Detail)
	assert.Greater(t, int64(attempt.Duration), int64(0))
}

func TestExecFailureDetail(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		wantDetail string
		wantStatus int
	}{
		{"stderr preferred", `echo partial; echo boom >&2; exit 3`, "p: boom", 3},
		{"stdout when stderr empty", `echo partial; exit 2`, "p: partial", 2},
		{"generic status", `exit 4`, "p: exited with status 4", 4},
		{"blank output", `echo "   "`, "p: produced no output", 0},
	}
	a := newTestAdapter(1 << 20)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempt := a.Invoke(context.Background(), shSpec("p", tt.script), query(t, "q"), 5*time.Second)
			assert.Equal(t, domain.OutcomeExecutionFailure, attempt.Outcome)
			assert.Equal(t, tt.wantDetail, attempt.Detail)
			assert.Equal(t, tt.wantStatus, attempt.ExitStatus)
			assert.Empty(t, attempt.Output)
		})
	}
}

func TestExecMissingCommand(t *testing.T) {
	spec := domain.ProviderSpec{ID: "ghost", Invocation: domain.InvocationDescriptor{
		Kind:    domain.TransportExec,
		Command: "unisearch-no-such-binary",
	}}
	attempt := newTestAdapter(1024).Invoke(context.Background(), spec, query(t, "q"), time.Second)
	assert.Equal(t, domain.OutcomeExecutionFailure, attempt.Outcome)
	assert.True(t, strings.HasPrefix(attempt.Detail, "ghost: "), attempt.Detail)
}

func TestExecTimeout(t *testing.T) {
	start := time.Now()
	attempt := newTestAdapter(1024).Invoke(context.Background(), shSpec("slow", "sleep 5"), query(t, "q"), 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, domain.OutcomeTimeout, attempt.Outcome)
	assert.Equal(t, "slow: timed out after 100ms", attempt.Detail)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestExecTimeoutKillsShellChildren(t *testing.T) {
	start := time.Now()
	attempt := newTestAdapter(1024).Invoke(context.Background(), shSpec("wrapped", `sleep 5 & wait; echo late`), query(t, "q"), 100*time.Millisecond)

	assert.Equal(t, domain.OutcomeTimeout, attempt.Outcome)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecTruncatesOutput(t *testing.T) {
	attempt := newTestAdapter(8).Invoke(context.Background(), shSpec("big", `printf 0123456789abcdef`), query(t, "q"), 5*time.Second)
	require.Equal(t, domain.OutcomeSuccess, attempt.Outcome, attempt.Detail)
	assert.Equal(t, "01234567", attempt.Output)
	assert.True(t, attempt.Truncated)
}

func TestExecEnvAndDir(t *testing.T) {
	dir := t.TempDir()
	spec := shSpec("envy", `printf '%s %s' "$UNISEARCH_TEST_VAR" "$(basename "$(pwd)")"`)
	spec.Invocation.Env = []string{"UNISEARCH_TEST_VAR=hello"}
	spec.Invocation.Dir = dir

	attempt := newTestAdapter(1024).Invoke(context.Background(), spec, query(t, "q"), 5*time.Second)
	require.Equal(t, domain.OutcomeSuccess, attempt.Outcome, attempt.Detail)
	assert.Equal(t, "hello "+filepath.Base(dir), attempt.Output)
}

func TestExecParentCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempt := newTestAdapter(1024).Invoke(ctx, shSpec("p", "sleep 5"), query(t, "q"), 5*time.Second)
	assert.Equal(t, domain.OutcomeExecutionFailure, attempt.Outcome)
	assert.Equal(t, "p: canceled", attempt.Detail)
}

func TestLimitedWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := NewLimitedWriter(&buf, 5)

	n, err := lw.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, lw.Truncated())

	n, err = lw.Write([]byte("defg"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, lw.Truncated())

	n, err = lw.Write([]byte("hij"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, "abcde", buf.String())
	assert.Equal(t, int64(5), lw.discarded)
}
