// Package access keeps the Cloudflare Access policy fronting the UI in line
// with a local yaml member list, so adding a user is a file edit plus one
// sync tick.
package access

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"reflect"
	"time"

	"github.com/nikolanovoselec/codeflare-sub001/model"
)

const defaultBaseURL = "https://api.cloudflare.com/client/v4"

// Syncer pushes the local access policy to the Cloudflare API whenever the
// member list drifts from what was last applied.
type Syncer struct {
	PolicyFile string
	AccountID  string
	AppID      string
	PolicyID   string
	APIToken   string
	Interval   time.Duration
	Client     *http.Client
	BaseURL    string

	applied []string // member list last pushed successfully
}

// Run starts the sync loop. It blocks until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	if s.Interval == 0 {
		s.Interval = 5 * time.Minute
	}
	if s.Client == nil {
		s.Client = &http.Client{Timeout: 15 * time.Second}
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sync once immediately on start.
	if err := s.SyncOnce(ctx); err != nil {
		log.Printf("access: sync error: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.SyncOnce(ctx); err != nil {
				log.Printf("access: sync error: %v", err)
			}
		}
	}
}

// SyncOnce loads the policy file and updates the Access policy if the member
// list changed since the last successful push.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	policy, err := model.LoadAccessPolicy(s.PolicyFile)
	if err != nil {
		return err
	}

	if reflect.DeepEqual(policy.Emails, s.applied) {
		return nil
	}

	if err := s.pushPolicy(ctx, policy.Emails); err != nil {
		return err
	}

	s.applied = policy.Emails
	log.Printf("access: policy %s updated with %d members", s.PolicyID, len(policy.Emails))
	return nil
}

func (s *Syncer) pushPolicy(ctx context.Context, emails []string) error {
	includes := make([]map[string]any, 0, len(emails))
	for _, e := range emails {
		includes = append(includes, map[string]any{
			"email": map[string]string{"email": e},
		})
	}

	body, err := json.Marshal(map[string]any{
		"name":     "codeflare members",
		"decision": "allow",
		"include":  includes,
	})
	if err != nil {
		return err
	}

	base := s.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	url := fmt.Sprintf("%s/accounts/%s/access/apps/%s/policies/%s",
		base, s.AccountID, s.AppID, s.PolicyID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("push policy: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cloudflare api returned %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode cloudflare response: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("cloudflare api reported failure")
	}
	return nil
}
