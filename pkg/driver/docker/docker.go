// Package docker provides a driver that converges resources onto local
// Docker containers. A resource maps to one container identified by its
// name; re-applying reuses the running container when its configuration
// still matches.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/cloudseed-io/seedctl/internal/logging"
	"github.com/cloudseed-io/seedctl/pkg/driver"
	"github.com/cloudseed-io/seedctl/pkg/errors"
)

// Kind is the resource kind this driver registers under.
const Kind = "container/docker"

// Driver converges Docker containers.
//
// Recognized attributes:
//
//	image  - container image reference (required)
//	name   - container name; defaults to the resource name
//	port   - container port to publish on a dynamic host port
//	env_*  - container environment, with the env_ prefix stripped
//
// Declared outputs:
//
//	container_id - the converged container's ID
//	host_port    - host port bound to the published container port
type Driver struct {
	cli *client.Client
}

// New creates the driver from the ambient Docker environment.
func New() (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDriver, "failed to create docker client", err)
	}
	return &Driver{cli: cli}, nil
}

func (d *Driver) Kind() string { return Kind }

func (d *Driver) Apply(ctx context.Context, req driver.ApplyRequest) (driver.Outputs, error) {
	img, ok := req.Attributes["image"].(string)
	if !ok || img == "" {
		return nil, errors.DriverError(Kind, req.Resource,
			fmt.Errorf("image attribute is required"), false)
	}

	name := req.Resource
	if n, ok := req.Attributes["name"].(string); ok && n != "" {
		name = n
	}

	existing, err := d.findByName(ctx, name)
	if err != nil {
		return nil, errors.DriverError(Kind, req.Resource, err, true)
	}

	if existing != "" && d.matches(ctx, existing, img, envFromAttrs(req.Attributes)) {
		logging.Debug("container already converged", "resource", req.Resource, "container", name)
		return d.outputsFor(ctx, req, existing)
	}

	if req.DryRun {
		action := "create"
		if existing != "" {
			action = "replace"
		}
		logging.Info("dry run: would "+action+" container",
			"resource", req.Resource, "container", name, "image", img)
		return driver.Outputs{}, nil
	}

	if existing != "" {
		if err := d.cli.ContainerRemove(ctx, existing, container.RemoveOptions{Force: true}); err != nil {
			return nil, errors.DriverError(Kind, req.Resource,
				fmt.Errorf("failed to remove stale container: %w", err), true)
		}
	}

	id, err := d.run(ctx, name, img, req.Attributes)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeCancelled, "container apply cancelled", ctx.Err())
		}
		return nil, errors.DriverError(Kind, req.Resource, err, true)
	}

	return d.outputsFor(ctx, req, id)
}

func (d *Driver) Read(ctx context.Context, resource string) (driver.Outputs, error) {
	id, err := d.findByName(ctx, resource)
	if err != nil {
		return nil, errors.DriverError(Kind, resource, err, true)
	}
	if id == "" {
		return nil, errors.New(errors.ErrCodeNotFound, fmt.Sprintf("container %q does not exist", resource))
	}
	return driver.Outputs{"container_id": id}, nil
}

func (d *Driver) Delete(ctx context.Context, resource string) error {
	id, err := d.findByName(ctx, resource)
	if err != nil {
		return errors.DriverError(Kind, resource, err, true)
	}
	if id == "" {
		return nil
	}
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return errors.DriverError(Kind, resource, err, true)
	}
	return nil
}

func (d *Driver) run(ctx context.Context, name, img string, attrs map[string]interface{}) (string, error) {
	if _, err := d.cli.ImageInspect(ctx, img); err != nil {
		reader, err := d.cli.ImagePull(ctx, img, image.PullOptions{})
		if err != nil {
			return "", fmt.Errorf("failed to pull image %s: %w", img, err)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	env := make([]string, 0)
	for k, v := range envFromAttrs(attrs) {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	config := &container.Config{Image: img, Env: env}
	hostConfig := &container.HostConfig{}

	if port, ok := attrs["port"]; ok {
		p := nat.Port(fmt.Sprintf("%s/tcp", fmt.Sprint(port)))
		config.ExposedPorts = nat.PortSet{p: struct{}{}}
		hostConfig.PortBindings = nat.PortMap{p: []nat.PortBinding{{HostPort: ""}}}
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	return resp.ID, nil
}

func (d *Driver) outputsFor(ctx context.Context, req driver.ApplyRequest, id string) (driver.Outputs, error) {
	outputs := driver.Outputs{}
	for _, name := range req.Outputs {
		switch name {
		case "container_id":
			outputs[name] = id
		case "host_port":
			info, err := d.cli.ContainerInspect(ctx, id)
			if err != nil {
				return nil, errors.DriverError(Kind, req.Resource, err, true)
			}
			for _, bindings := range info.NetworkSettings.Ports {
				if len(bindings) > 0 {
					outputs[name] = bindings[0].HostPort
					break
				}
			}
		default:
			if v, ok := req.Attributes[name]; ok {
				outputs[name] = v
			}
		}
	}
	return outputs, nil
}

func (d *Driver) findByName(ctx context.Context, name string) (string, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+name+"$")),
	})
	if err != nil {
		return "", err
	}
	for _, c := range containers {
		for _, n := range c.Names {
			if n == "/"+name || n == name {
				return c.ID, nil
			}
		}
	}
	return "", nil
}

// matches reports whether the running container already satisfies the
// desired image and environment. Dynamically assigned host ports are
// ignored because they always differ between runs.
func (d *Driver) matches(ctx context.Context, id, img string, env map[string]string) bool {
	info, err := d.cli.ContainerInspect(ctx, id)
	if err != nil || info.State == nil || !info.State.Running {
		return false
	}

	desired, err := d.cli.ImageInspect(ctx, img)
	if err != nil || info.Image != desired.ID {
		return false
	}

	current := make(map[string]string)
	for _, e := range info.Config.Env {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			current[parts[0]] = parts[1]
		}
	}
	for k, v := range env {
		if current[k] != v {
			return false
		}
	}
	return true
}

func envFromAttrs(attrs map[string]interface{}) map[string]string {
	env := make(map[string]string)
	for k, v := range attrs {
		if name, ok := strings.CutPrefix(k, "env_"); ok {
			env[name] = fmt.Sprint(v)
		}
	}
	return env
}
