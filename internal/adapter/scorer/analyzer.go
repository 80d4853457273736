// Package scorer runs an external analyzer over subjects and validates its
// structured verdicts.
package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/kaptinlin/jsonschema"

	"unisearch/internal/adapter/invoke"
	"unisearch/internal/domain"
	"unisearch/internal/infra/config"
)

const (
	inputPlaceholder = "{{input}}"
	defaultTimeout   = 15 * time.Second
	killGrace        = 2 * time.Second
	defaultMaxOutput = 4 << 20
)

// Analyzer scores one subject by running the configured command.
type Analyzer struct {
	command string
	args    []string
	dir     string
	env     []string
	timeout time.Duration
	maxOut  int64
	stream  string
	fields  config.ScorerFields
	schema  *jsonschema.Schema
	logger  *slog.Logger
}

// NewAnalyzer builds an Analyzer from the scorer section of cfg.
func NewAnalyzer(cfg *config.Config, logger *slog.Logger) (*Analyzer, error) {
	sc := cfg.Scorer
	if sc.Command == "" {
		return nil, domain.NewDomainError("NewAnalyzer", domain.ErrInvalidInput, "scorer command is empty")
	}
	schema, err := compileSchema(sc.Fields)
	if err != nil {
		return nil, err
	}
	timeout := sc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	stream := strings.ToLower(sc.OutputStream)
	if stream == "" {
		stream = "stderr"
	}
	maxOut := int64(cfg.Dispatch.MaxOutputBytes)
	if maxOut <= 0 {
		maxOut = defaultMaxOutput
	}

	env := make([]string, 0, len(sc.Env))
	for k, v := range sc.Env {
		env = append(env, k+"="+os.ExpandEnv(v))
	}
	sort.Strings(env)

	return &Analyzer{
		command: sc.Command,
		args:    sc.Args,
		dir:     cfg.ResolveDir(sc.Dir),
		env:     env,
		timeout: timeout,
		maxOut:  maxOut,
		stream:  stream,
		fields:  sc.Fields,
		schema:  schema,
		logger:  logger,
	}, nil
}

// compileSchema builds the schema every analyzer verdict must satisfy.
func compileSchema(f config.ScorerFields) (*jsonschema.Schema, error) {
	doc := map[string]any{
		"type":     "object",
		"required": []string{f.Score, f.Verdict, f.Rationale},
		"properties": map[string]any{
			f.Score:     map[string]any{"type": "number"},
			f.Verdict:   map[string]any{"type": "string"},
			f.Rationale: map[string]any{"type": "string"},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal scorer schema: %w", err)
	}
	schema, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compile scorer schema: %w", err)
	}
	return schema, nil
}

// Score runs the analyzer for one subject. The subject JSON is written to a
// temp file that is passed via {{input}} in the args, or on stdin when no
// arg references it.
func (a *Analyzer) Score(ctx context.Context, s domain.Subject) (domain.Score, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return domain.Score{}, fmt.Errorf("marshal subject %s: %w", s.ID, err)
	}

	f, err := os.CreateTemp("", "unisearch-subject-*.json")
	if err != nil {
		return domain.Score{}, fmt.Errorf("create input file: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(data); err != nil {
		f.Close()
		return domain.Score{}, fmt.Errorf("write input file: %w", err)
	}
	if err := f.Close(); err != nil {
		return domain.Score{}, fmt.Errorf("close input file: %w", err)
	}

	args, referenced := a.buildArgs(f.Name())

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, a.command, args...)
	cmd.Dir = a.dir
	if len(a.env) > 0 {
		cmd.Env = append(os.Environ(), a.env...)
	}
	if !referenced {
		cmd.Stdin = bytes.NewReader(data)
	}
	cmd.WaitDelay = killGrace
	invoke.KillProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = invoke.NewLimitedWriter(&stdout, a.maxOut)
	cmd.Stderr = invoke.NewLimitedWriter(&stderr, a.maxOut)

	a.logger.Debug("running analyzer", "subject", s.ID, "command", a.command)

	if err := cmd.Run(); err != nil && !exitedCleanly(cmd, err) {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return domain.Score{}, domain.NewDomainError("Scorer.Score", domain.ErrTimeout,
				fmt.Sprintf("%s: analyzer timed out after %s", s.ID, a.timeout))
		}
		if ctx.Err() != nil {
			return domain.Score{}, domain.NewDomainError("Scorer.Score", domain.ErrCanceled, s.ID)
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return domain.Score{}, domain.NewDomainError("Scorer.Score", domain.ErrExecutionFailure,
			fmt.Sprintf("%s: %s", s.ID, detail))
	}

	out := stdout.String()
	if a.stream == "stderr" {
		out = stderr.String()
	}
	return a.parse(s, out)
}

// exitedCleanly reports whether the analyzer itself succeeded and only a
// grandchild held the pipes open past the kill grace.
func exitedCleanly(cmd *exec.Cmd, err error) bool {
	return errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success()
}

func (a *Analyzer) buildArgs(path string) ([]string, bool) {
	args := make([]string, len(a.args))
	referenced := false
	for i, arg := range a.args {
		if strings.Contains(arg, inputPlaceholder) {
			referenced = true
			arg = strings.ReplaceAll(arg, inputPlaceholder, path)
		}
		args[i] = arg
	}
	return args, referenced
}

// parse decodes the first JSON object in out; text around it is ignored.
func (a *Analyzer) parse(s domain.Subject, out string) (domain.Score, error) {
	start := strings.IndexByte(out, '{')
	if start < 0 {
		return domain.Score{}, domain.NewDomainError("Scorer.Score", domain.ErrScorerOutput,
			fmt.Sprintf("%s: no JSON object in %s", s.ID, a.stream))
	}
	var raw map[string]any
	if err := json.NewDecoder(strings.NewReader(out[start:])).Decode(&raw); err != nil {
		return domain.Score{}, domain.NewDomainError("Scorer.Score", domain.ErrScorerOutput,
			fmt.Sprintf("%s: decode output: %v", s.ID, err))
	}

	if result := a.schema.Validate(raw); !result.IsValid() {
		return domain.Score{}, domain.NewDomainError("Scorer.Score", domain.ErrScorerOutput,
			fmt.Sprintf("%s: %s", s.ID, a.describeInvalid(raw)))
	}

	value, _ := raw[a.fields.Score].(float64)
	verdict, _ := raw[a.fields.Verdict].(string)
	rationale, _ := raw[a.fields.Rationale].(string)
	return domain.Score{
		SubjectID: s.ID,
		Name:      s.Name,
		Value:     value,
		Verdict:   verdict,
		Rationale: rationale,
	}, nil
}

// describeInvalid names each required field that is missing or mistyped.
func (a *Analyzer) describeInvalid(raw map[string]any) string {
	var problems []string
	check := func(name string, ok func(any) bool, kind string) {
		v, present := raw[name]
		switch {
		case !present:
			problems = append(problems, fmt.Sprintf("missing %q", name))
		case !ok(v):
			problems = append(problems, fmt.Sprintf("%q is not a %s", name, kind))
		}
	}
	check(a.fields.Score, isNumber, "number")
	check(a.fields.Verdict, isString, "string")
	check(a.fields.Rationale, isString, "string")
	if len(problems) == 0 {
		return "output failed schema validation"
	}
	return strings.Join(problems, ", ")
}

func isNumber(v any) bool {
	_, ok := v.(float64)
	return ok
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}
