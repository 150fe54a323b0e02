package memorycmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/strata/api"
	"github.com/papercomputeco/strata/pkg/utils"
)

// errNotFound is returned for 404 responses so callers can print a friendly
// message instead of failing.
var errNotFound = errors.New("not found")

type apiClient struct {
	target string
	http   *http.Client
}

func newAPIClient(target string) *apiClient {
	return &apiClient{
		target: strings.TrimRight(target, "/"),
		// Manual cycles can take a while on large tiers.
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// do sends a request and decodes a JSON body into dst. 2xx responses,
// including 207 for cycles that finished with errors, decode into dst; other
// statuses decode the error body.
func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, dst any) error {
	u, err := url.Parse(c.target + path)
	if err != nil {
		return fmt.Errorf("invalid API target %q: %w", c.target, err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", utils.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling strata API at %s: %w", c.target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %s", errNotFound, msg)
		}
		return fmt.Errorf("strata API returned %d: %s", resp.StatusCode, msg)
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
