package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"uspguard.org/internal/compliance"
	"uspguard.org/internal/obs"
)

type client struct {
	base         string
	token        string
	bootstrapKey string
	http         *http.Client
}

func (c *client) call(method, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.base+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.bootstrapKey != "":
		req.Header.Set("X-Bootstrap-Key", c.bootstrapKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type options struct {
	baseURL      string
	pharmacy     string
	username     string
	bootstrapKey string
}

func run(opts options) error {
	pharmacy := opts.pharmacy
	c := &client{base: opts.baseURL, bootstrapKey: opts.bootstrapKey, http: &http.Client{Timeout: 5 * time.Second}}

	var tok struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	if err := c.call(http.MethodPost, "/v1/auth/token", map[string]any{"username": opts.username}, &tok); err != nil {
		return err
	}
	c.token = tok.Token

	var chapters struct {
		Items []compliance.Chapter `json:"items"`
	}
	if err := c.call(http.MethodGet, "/v1/chapters", nil, &chapters); err != nil {
		return err
	}
	if len(chapters.Items) == 0 {
		return errors.New("no chapters loaded")
	}

	var reqs struct {
		Items []compliance.Requirement `json:"items"`
	}
	q := url.Values{"chapter_id": {fmt.Sprint(chapters.Items[0].ID)}}
	if err := c.call(http.MethodGet, "/v1/requirements?"+q.Encode(), nil, &reqs); err != nil {
		return err
	}
	if len(reqs.Items) == 0 {
		return errors.New("chapter has no requirements")
	}

	var rec compliance.Compliance
	if err := c.call(http.MethodPost, "/v1/compliance", compliance.NewCompliance{
		RequirementID: reqs.Items[0].ID,
		PharmacyID:    pharmacy,
		Status:        compliance.StatusMet,
		Evidence:      "smoke test",
	}, &rec); err != nil {
		return err
	}

	var view compliance.DashboardView
	if err := c.call(http.MethodGet, "/v1/dashboard?"+url.Values{"pharmacy_id": {pharmacy}}.Encode(), nil, &view); err != nil {
		return err
	}
	if view.OverallCompliance <= 0 {
		return fmt.Errorf("expected positive overall compliance, got %d", view.OverallCompliance)
	}
	if len(view.RecentActivity) == 0 || view.RecentActivity[0].ResourceType != compliance.ResourceCompliance {
		return errors.New("compliance write missing from recent activity")
	}

	obs.Logger().Info().
		Int64("compliance_id", rec.ID).
		Int("overall", view.OverallCompliance).
		Str("pharmacy", pharmacy).
		Str("role", tok.Role).
		Msg("smoke test passed")
	return nil
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:          "uspguard-smoke",
		Short:        "Exercise a running API end to end",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&opts.pharmacy, "pharmacy", "smoke-"+time.Now().UTC().Format("20060102150405"), "pharmacy id to write to")
	cmd.Flags().StringVar(&opts.username, "user", "admin", "existing admin or pharmacist to act as")
	cmd.Flags().StringVar(&opts.bootstrapKey, "bootstrap-key", os.Getenv("AUTH_BOOTSTRAP_KEY"), "key sent as X-Bootstrap-Key to obtain the token")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
