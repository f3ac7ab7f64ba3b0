// Package nomad talks to the platform running the per-user dev containers,
// one Nomad job per container.
package nomad

import (
	"context"
	"fmt"

	nomadapi "github.com/hashicorp/nomad/api"
)

type Client struct {
	api *nomadapi.Client
}

func NewClient(addr string) (*Client, error) {
	cfg := nomadapi.DefaultConfig()
	cfg.Address = addr

	client, err := nomadapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("nomad client: %w", err)
	}
	return &Client{api: client}, nil
}

// Healthy checks connectivity to Nomad.
func (c *Client) Healthy() error {
	_, err := c.api.Agent().NodeName()
	return err
}

// ContainerState reports the platform-level state of a container job as one
// of stopped, stopping, pending, running, healthy or stopped_with_code.
// States outside running/healthy all mean "not up" to the caller. A lookup
// error usually means the job has never been registered.
func (c *Client) ContainerState(ctx context.Context, containerID string) (string, error) {
	q := (&nomadapi.QueryOptions{}).WithContext(ctx)

	job, _, err := c.api.Jobs().Info(containerID, q)
	if err != nil {
		return "", fmt.Errorf("job info: %w", err)
	}

	status := "unknown"
	if job.Status != nil {
		status = *job.Status
	}
	stopping := job.Stop != nil && *job.Stop

	switch status {
	case "pending":
		return "pending", nil
	case "dead":
		if stopping {
			return "stopped", nil
		}
		if c.anyAllocFailed(containerID, q) {
			return "stopped_with_code", nil
		}
		return "stopped", nil
	case "running":
		if stopping {
			return "stopping", nil
		}
		if c.anyAllocHealthy(containerID, q) {
			return "healthy", nil
		}
		return "running", nil
	default:
		return "unknown", nil
	}
}

func (c *Client) anyAllocFailed(jobID string, q *nomadapi.QueryOptions) bool {
	allocs, _, err := c.api.Jobs().Allocations(jobID, false, q)
	if err != nil {
		return false
	}
	for _, a := range allocs {
		if a.ClientStatus == "failed" {
			return true
		}
	}
	return false
}

func (c *Client) anyAllocHealthy(jobID string, q *nomadapi.QueryOptions) bool {
	allocs, _, err := c.api.Jobs().Allocations(jobID, false, q)
	if err != nil {
		return false
	}
	for _, a := range allocs {
		if a.ClientStatus != "running" {
			continue
		}
		if a.DeploymentStatus != nil && a.DeploymentStatus.Healthy != nil && *a.DeploymentStatus.Healthy {
			return true
		}
	}
	return false
}
