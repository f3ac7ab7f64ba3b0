// Package consul resolves container service addresses from the Consul
// catalog. Each dev container registers itself as a service named after its
// container ID.
package consul

import (
	"fmt"

	consulapi "github.com/hashicorp/consul/api"
)

type Client struct {
	api *consulapi.Client
}

func NewClient(addr string) (*Client, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &Client{api: client}, nil
}

// Healthy checks connectivity to Consul.
func (c *Client) Healthy() error {
	_, err := c.api.Status().Leader()
	return err
}

// ServiceAddress returns host:port for the first registered instance of a
// service. Instances are not filtered by health: a container mid-boot has
// failing checks but its endpoints are exactly what the probes need to reach.
func (c *Client) ServiceAddress(service string) (string, error) {
	entries, _, err := c.api.Health().Service(service, "", false, nil)
	if err != nil {
		return "", fmt.Errorf("consul lookup %s: %w", service, err)
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("service %s not registered", service)
	}

	e := entries[0]
	addr := e.Service.Address
	if addr == "" {
		addr = e.Node.Address
	}
	return fmt.Sprintf("%s:%d", addr, e.Service.Port), nil
}
