package checker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/multierr"

	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

// ExternalProbeConfig describes a probe implemented by an executable.
type ExternalProbeConfig struct {
	ID             string            `json:"id"`
	Title          string            `json:"title"`
	Category       string            `json:"category"`
	Description    string            `json:"description"`
	Command        string            `json:"command"`
	Args           []string          `json:"args"`
	Env            map[string]string `json:"env"`
	TimeoutSeconds int               `json:"timeout"`
	// NeedsTarget/NeedsClient map to the probe's Requirement.
	NeedsTarget bool `json:"needs_target"`
	NeedsClient bool `json:"needs_client"`
}

// externalRequest is written to the command's stdin.
type externalRequest struct {
	Target     *TargetInfo   `json:"target,omitempty"`
	Client     *ClientReport `json:"client,omitempty"`
	ObservedIP string        `json:"observed_ip,omitempty"`
}

// externalResponse is read from the command's stdout.
type externalResponse struct {
	Status      Status                 `json:"status"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Remediation *Remediation           `json:"remediation,omitempty"`
}

// ExternalProbe runs a command that receives the run input as JSON on stdin
// and prints a verdict as JSON on stdout.
type ExternalProbe struct {
	probeInfo
	command string
	args    []string
	env     map[string]string
	timeout time.Duration
}

// NewExternalProbe validates cfg and builds the probe.
func NewExternalProbe(cfg ExternalProbeConfig) (*ExternalProbe, error) {
	id := strings.ToLower(strings.TrimSpace(cfg.ID))
	if id == "" || cfg.Command == "" {
		return nil, errors.New("external probe needs an id and a command")
	}
	if _, builtin := probeInfos[id]; builtin {
		return nil, fmt.Errorf("external probe id %q collides with a built-in probe", id)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	requires := RequiresNothing
	switch {
	case cfg.NeedsTarget && cfg.NeedsClient:
		requires = RequiresTargetOrClient
	case cfg.NeedsTarget:
		requires = RequiresTarget
	case cfg.NeedsClient:
		requires = RequiresClient
	}
	title := cfg.Title
	if title == "" {
		title = id
	}
	category := cfg.Category
	if category == "" {
		category = "External"
	}
	return &ExternalProbe{
		probeInfo: probeInfo{
			id:          id,
			title:       title,
			category:    category,
			description: cfg.Description,
			requires:    requires,
		},
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		env:     cfg.Env,
		timeout: timeout,
	}, nil
}

func (e *ExternalProbe) Run(ctx context.Context, in Input) Verdict {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(externalRequest{Target: in.Target, Client: in.Client, ObservedIP: in.ObservedIP})
	if err != nil {
		return failed(e.id, fmt.Sprintf("encode input: %v", err))
	}

	cmd := exec.CommandContext(runCtx, e.command, e.args...) // #nosec G204 -- command comes from operator configuration.
	cmd.Env = os.Environ()
	for k, v := range e.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stdin = bytes.NewReader(payload)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return failed(e.id, fmt.Sprintf("%s failed: %s", e.command, strings.TrimSpace(string(exitErr.Stderr))))
		}
		return failed(e.id, fmt.Sprintf("%s failed: %v", e.command, err))
	}

	var resp externalResponse
	if err := json.Unmarshal(output, &resp); err != nil {
		return failed(e.id, fmt.Sprintf("invalid probe output: %v", err))
	}
	if !resp.Status.Valid() {
		return failed(e.id, fmt.Sprintf("invalid probe status %q", resp.Status))
	}
	return Verdict{
		Status:      resp.Status,
		Message:     resp.Message,
		Details:     resp.Details,
		Remediation: resp.Remediation,
	}
}

// WithProbes returns a catalog with extra probes appended after the
// existing ones. A probe whose id is already taken is left out and
// reported in the returned error; the catalog is usable either way.
func (c *Catalog) WithProbes(extra ...Probe) (*Catalog, error) {
	probes := c.Probes()
	seen := make(map[string]struct{}, len(probes)+len(extra))
	for _, p := range probes {
		seen[p.ID()] = struct{}{}
	}
	var errs error
	for _, p := range extra {
		if _, dup := seen[p.ID()]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", sharedErrors.ErrDuplicateProbe, p.ID()))
			continue
		}
		seen[p.ID()] = struct{}{}
		probes = append(probes, p)
	}
	return NewCatalog(probes...), errs
}
