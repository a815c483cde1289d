package remote

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Container delegates command and file operations into a Docker container on
// the remote host. It receives its Transport by construction and never
// creates one.
type Container struct {
	transport Transport
	name      string
}

// NewContainer creates a container adapter for the named container.
func NewContainer(transport Transport, name string) *Container {
	return &Container{transport: transport, name: name}
}

// Name returns the container name.
func (c *Container) Name() string {
	return c.name
}

// Running verifies the container is up.
func (c *Container) Running(ctx context.Context) error {
	cmd := fmt.Sprintf("docker inspect -f '{{.State.Running}}' %s", shellQuote(c.name))
	stdout, stderr, exit, err := c.transport.Run(ctx, cmd, nil, 15*time.Second)
	if err != nil {
		return err
	}
	if exit != 0 {
		return &Error{Kind: KindContainer, Message: fmt.Sprintf("container not found: %s", strings.TrimSpace(string(stderr))), Context: c.name}
	}
	if strings.TrimSpace(string(stdout)) != "true" {
		return &Error{Kind: KindContainer, Message: "container is not running", Context: c.name}
	}
	return nil
}

// Run executes a command inside the container.
func (c *Container) Run(ctx context.Context, cmd string, stdin []byte, timeout time.Duration) ([]byte, []byte, int, error) {
	wrapped := fmt.Sprintf("docker exec -i %s sh -c %s", shellQuote(c.name), shellQuote(cmd))
	return c.transport.Run(ctx, wrapped, stdin, timeout)
}

// CopyIn writes data to a path inside the container.
func (c *Container) CopyIn(ctx context.Context, data []byte, containerPath string) error {
	cmd := fmt.Sprintf("docker exec -i %s sh -c %s", shellQuote(c.name), shellQuote("cat > "+shellQuote(containerPath)))
	_, stderr, exit, err := c.transport.Run(ctx, cmd, data, 60*time.Second)
	if err != nil {
		return err
	}
	if exit != 0 {
		return &Error{Kind: KindContainer, Message: fmt.Sprintf("copy-in exited %d: %s", exit, strings.TrimSpace(string(stderr))), Context: containerPath}
	}
	return nil
}

// CopyOut reads a file from inside the container.
func (c *Container) CopyOut(ctx context.Context, containerPath string) ([]byte, error) {
	cmd := fmt.Sprintf("docker exec %s cat %s", shellQuote(c.name), shellQuote(containerPath))
	stdout, stderr, exit, err := c.transport.Run(ctx, cmd, nil, 60*time.Second)
	if err != nil {
		return nil, err
	}
	if exit != 0 {
		return nil, &Error{Kind: KindContainer, Message: fmt.Sprintf("copy-out exited %d: %s", exit, strings.TrimSpace(string(stderr))), Context: containerPath}
	}
	return stdout, nil
}

// Remove deletes a file inside the container. Best effort cleanup.
func (c *Container) Remove(ctx context.Context, containerPath string) error {
	cmd := fmt.Sprintf("docker exec %s rm -f %s", shellQuote(c.name), shellQuote(containerPath))
	_, _, _, err := c.transport.Run(ctx, cmd, nil, 15*time.Second)
	return err
}
