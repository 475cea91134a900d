// Package script provides a driver that converges resources by running a
// local command. A resource declares the command to run and, optionally,
// a marker path whose existence means the resource is already converged.
package script

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/cloudseed-io/seedctl/internal/logging"
	"github.com/cloudseed-io/seedctl/pkg/driver"
	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// Kind is the resource kind this driver registers under.
const Kind = "local/script"

// Driver runs shell commands as resource convergence steps.
//
// Recognized attributes:
//
//	command  - the command line to run (required)
//	creates  - path that, when present, means the resource exists and
//	           the command is skipped
//	workdir  - working directory for the command
//	env_*    - extra environment variables, with the env_ prefix stripped
//
// The command's trimmed stdout is exposed through any declared "stdout"
// output.
type Driver struct{}

func New() *Driver { return &Driver{} }

func (d *Driver) Kind() string { return Kind }

func (d *Driver) Apply(ctx context.Context, req driver.ApplyRequest) (driver.Outputs, error) {
	command, ok := stringAttr(req.Attributes, "command")
	if !ok || command == "" {
		return nil, errors.DriverError(Kind, req.Resource,
			fmt.Errorf("command attribute is required"), false)
	}

	marker, _ := stringAttr(req.Attributes, "creates")
	if marker != "" {
		if _, err := os.Stat(marker); err == nil {
			logging.Debug("script resource already converged",
				"resource", req.Resource, "creates", marker)
			return d.outputs(req, ""), nil
		}
	}

	if req.DryRun {
		logging.Info("dry run: would execute command",
			"resource", req.Resource, "command", command)
		return d.outputs(req, ""), nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workdir, ok := stringAttr(req.Attributes, "workdir"); ok && workdir != "" {
		cmd.Dir = workdir
	}

	cmd.Env = os.Environ()
	for k, v := range req.Attributes {
		if name, ok := strings.CutPrefix(k, "env_"); ok {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", name, fmt.Sprint(v)))
		}
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeCancelled, "script cancelled", ctx.Err())
		}
		trimmed := strings.TrimSpace(string(out))
		cause := fmt.Errorf("command failed: %w", err)
		if trimmed != "" {
			cause = fmt.Errorf("command failed: %w\n%s", err, trimmed)
		}
		// A non-zero exit could be transient (network fetches inside the
		// script); let the retry policy decide.
		return nil, errors.DriverError(Kind, req.Resource, cause, true)
	}

	return d.outputs(req, strings.TrimSpace(string(out))), nil
}

func (d *Driver) Read(ctx context.Context, resource string) (driver.Outputs, error) {
	return nil, errors.New(errors.ErrCodeNotFound,
		fmt.Sprintf("script resource %q has no readable state", resource))
}

// Delete is a no-op: script resources clean up through their own commands.
func (d *Driver) Delete(ctx context.Context, resource string) error {
	return nil
}

func (d *Driver) outputs(req driver.ApplyRequest, stdout string) driver.Outputs {
	outputs := make(driver.Outputs, len(req.Outputs))
	for _, name := range req.Outputs {
		if name == "stdout" {
			outputs[name] = stdout
			continue
		}
		if v, ok := req.Attributes[name]; ok {
			outputs[name] = v
		}
	}
	return outputs
}

func stringAttr(attrs map[string]interface{}, key string) (string, bool) {
	v, ok := attrs[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
