package model

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// AccessPolicy is the desired member list for the Cloudflare Access
// application fronting the UI, kept in a yaml file next to the deployment.
type AccessPolicy struct {
	Application string   `yaml:"application"`
	Emails      []string `yaml:"emails"`
}

// LoadAccessPolicy reads and normalizes a policy file. Emails are lowercased,
// deduplicated and sorted so two loads of equivalent files compare equal.
func LoadAccessPolicy(path string) (*AccessPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read access policy: %w", err)
	}

	var p AccessPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse access policy: %w", err)
	}

	seen := map[string]bool{}
	var emails []string
	for _, e := range p.Emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		emails = append(emails, e)
	}
	sort.Strings(emails)
	p.Emails = emails

	if p.Application == "" {
		return nil, fmt.Errorf("access policy %s: application is required", path)
	}
	return &p, nil
}
