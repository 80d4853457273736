package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"unisearch/internal/domain"
)

// ExecTransport runs a provider as a local process. Arguments are passed as
// a vector, never through a shell.
type ExecTransport struct {
	maxOutput int64
	killGrace time.Duration
}

// NewExecTransport creates an exec transport. maxOutput caps each of stdout
// and stderr; killGrace bounds pipe draining after the process is killed.
func NewExecTransport(maxOutput int, killGrace time.Duration) *ExecTransport {
	return &ExecTransport{maxOutput: int64(maxOutput), killGrace: killGrace}
}

func (t *ExecTransport) Call(ctx context.Context, spec domain.ProviderSpec, params domain.Params) (Response, error) {
	inv := spec.Invocation
	if inv.Command == "" {
		return Response{Status: -1}, fmt.Errorf("no command configured")
	}

	cmd := exec.CommandContext(ctx, inv.Command, BuildArgs(spec, params)...)
	cmd.Dir = inv.Dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	cmd.WaitDelay = t.killGrace
	KillProcessGroup(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := NewLimitedWriter(&stdoutBuf, t.maxOutput)
	stderr := NewLimitedWriter(&stderrBuf, t.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	resp := Response{
		Output:     stdoutBuf.String(),
		Diagnostic: stderrBuf.String(),
		Truncated:  stdout.Truncated() || stderr.Truncated(),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		resp.OK = true
		resp.Status = 0
	case errors.As(err, &exitErr):
		resp.Status = exitErr.ExitCode()
	case errors.Is(err, exec.ErrWaitDelay):
		// Exited cleanly but a grandchild kept the pipes open.
		resp.OK = cmd.ProcessState != nil && cmd.ProcessState.Success()
		resp.Status = cmd.ProcessState.ExitCode()
	default:
		resp.Status = -1
		return resp, fmt.Errorf("start %s: %w", inv.Command, err)
	}
	return resp, nil
}

// BuildArgs renders the argument vector for an exec provider:
// templated args first, then one flag per accepted param that has a wire
// name and is not already templated, then the query as the final positional
// argument when nothing else carries it. A boolean content flag is emitted
// bare, and only when true.
func BuildArgs(spec domain.ProviderSpec, params domain.Params) []string {
	inv := spec.Invocation
	args := make([]string, 0, len(inv.Args)+params.Len()*2)
	templated := make(map[domain.Param]bool)
	for _, a := range inv.Args {
		for _, p := range domain.KnownParams {
			if domain.References(a, p) {
				templated[p] = true
			}
		}
		args = append(args, params.Template(a))
	}

	queryPositional := false
	params.Each(func(p domain.Param, v string) {
		if templated[p] {
			return
		}
		flag, ok := spec.WireName(p)
		if !ok {
			if p == domain.ParamQuery {
				queryPositional = true
			}
			return
		}
		if p == domain.ParamContent {
			if v == "true" {
				args = append(args, flag)
			}
			return
		}
		args = append(args, flag, v)
	})

	if queryPositional {
		q, _ := params.Get(domain.ParamQuery)
		args = append(args, q)
	}
	return args
}
