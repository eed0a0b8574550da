package propublica

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

	"go.uber.org/zap"
)

const (
	defaultBaseURL        = "https://api.propublica.org/congress/v1"
	defaultTimeout        = 30 * time.Second
	defaultMaxRetries     = 3
	defaultInitialBackoff = 2 * time.Second
	apiKeyHeader          = "X-API-Key"
)

var (
	// ErrRateLimited is returned when every attempt was answered with HTTP 429.
	ErrRateLimited = errors.New("propublica: rate limited")
	// ErrUnauthorized is returned when the API key is missing or rejected.
	ErrUnauthorized = errors.New("propublica: unauthorized")
	// ErrUnexpectedStatus is returned for other non-200 responses.
	ErrUnexpectedStatus = errors.New("propublica: unexpected status")

	errMissingAPIKey = errors.New("propublica: api key is required")
)

// Config wires the client.
type Config struct {
	APIKey         string
	BaseURL        string
	Congress       int
	HTTPClient     *http.Client
	MaxRetries     int
	InitialBackoff time.Duration
	Logger         *zap.Logger
}

// Client talks to the ProPublica Congress API.
type Client struct {
	apiKey         string
	baseURL        string
	congress       int
	client         *http.Client
	maxRetries     int
	initialBackoff time.Duration
	logger         *zap.Logger
}

// NewClient validates the configuration and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errMissingAPIKey
	}
	if cfg.Congress <= 0 {
		return nil, fmt.Errorf("propublica: congress must be positive")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = defaultInitialBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        baseURL,
		congress:       cfg.Congress,
		client:         httpClient,
		maxRetries:     maxRetries,
		initialBackoff: backoff,
		logger:         logger,
	}, nil
}

// Congress reports the congress number the client is scoped to.
func (c *Client) Congress() int {
	return c.congress
}

type membersResponse struct {
	Results []struct {
		Members []Member `json:"members"`
	} `json:"results"`
}

// FetchMembers returns one page of the roster for a chamber ("house" or "senate").
func (c *Client) FetchMembers(ctx context.Context, chamber string, offset int) ([]Member, error) {
	endpoint := fmt.Sprintf("%s/%d/%s/members.json?offset=%d", c.baseURL, c.congress, url.PathEscape(chamber), offset)
	var resp membersResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch %s members: %w", chamber, err)
	}
	var members []Member
	for _, result := range resp.Results {
		members = append(members, result.Members...)
	}
	return members, nil
}

type billsResponse struct {
	Results []struct {
		Bills []BillRecord `json:"bills"`
	} `json:"results"`
}

// FetchBills returns one page of a ranked bill listing across both chambers.
func (c *Client) FetchBills(ctx context.Context, listType BillListType, offset int) ([]BillRecord, error) {
	endpoint := fmt.Sprintf("%s/%d/both/bills/%s.json?offset=%d", c.baseURL, c.congress, listType, offset)
	var resp billsResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch %s bills: %w", listType, err)
	}
	var bills []BillRecord
	for _, result := range resp.Results {
		bills = append(bills, result.Bills...)
	}
	return bills, nil
}

type subjectsResponse struct {
	Results []struct {
		Subjects []struct {
			Name    string `json:"name"`
			URLName string `json:"url_name"`
		} `json:"subjects"`
	} `json:"results"`
}

// FetchSubjectsForBill returns the subject tags of a bill.
func (c *Client) FetchSubjectsForBill(ctx context.Context, code string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/%d/bills/%s/subjects.json", c.baseURL, c.congress, url.PathEscape(code))
	var resp subjectsResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch subjects for %s: %w", code, err)
	}
	subjects := []string{}
	for _, result := range resp.Results {
		for _, subject := range result.Subjects {
			if name := strings.TrimSpace(subject.Name); name != "" {
				subjects = append(subjects, name)
			}
		}
	}
	return subjects, nil
}

type cosponsorsResponse struct {
	Results []struct {
		Cosponsors []CosponsorRecord `json:"cosponsors"`
	} `json:"results"`
}

// FetchCosponsorsForBill returns the cosponsors of a bill.
func (c *Client) FetchCosponsorsForBill(ctx context.Context, code string) ([]CosponsorRecord, error) {
	endpoint := fmt.Sprintf("%s/%d/bills/%s/cosponsors.json", c.baseURL, c.congress, url.PathEscape(code))
	var resp cosponsorsResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch cosponsors for %s: %w", code, err)
	}
	var cosponsors []CosponsorRecord
	for _, result := range resp.Results {
		cosponsors = append(cosponsors, result.Cosponsors...)
	}
	return cosponsors, nil
}

type billDetailResponse struct {
	Results []struct {
		Votes []VoteRecord `json:"votes"`
	} `json:"results"`
}

// FetchVotesForBill returns the roll-call votes recorded on a bill.
func (c *Client) FetchVotesForBill(ctx context.Context, code string) ([]VoteRecord, error) {
	endpoint := fmt.Sprintf("%s/%d/bills/%s.json", c.baseURL, c.congress, url.PathEscape(code))
	var resp billDetailResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch votes for %s: %w", code, err)
	}
	var votes []VoteRecord
	for _, result := range resp.Results {
		votes = append(votes, result.Votes...)
	}
	return votes, nil
}

type rollCallResponse struct {
	Results struct {
		Votes struct {
			Vote struct {
				Positions []PositionRecord `json:"positions"`
			} `json:"vote"`
		} `json:"votes"`
	} `json:"results"`
}

// FetchRepVotesForBillVote returns every member position on the roll call at apiURL.
func (c *Client) FetchRepVotesForBillVote(ctx context.Context, apiURL string) ([]PositionRecord, error) {
	var resp rollCallResponse
	if err := c.getJSON(ctx, apiURL, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch positions for %s: %w", apiURL, err)
	}
	return resp.Results.Votes.Vote.Positions, nil
}

type upcomingResponse struct {
	Results []struct {
		Bills []UpcomingBillRecord `json:"bills"`
	} `json:"results"`
}

// FetchUpcomingBills returns bills scheduled for the floor of a chamber.
func (c *Client) FetchUpcomingBills(ctx context.Context, chamber string) ([]UpcomingBillRecord, error) {
	endpoint := fmt.Sprintf("%s/bills/upcoming/%s.json", c.baseURL, url.PathEscape(chamber))
	var resp upcomingResponse
	if err := c.getJSON(ctx, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch upcoming %s bills: %w", chamber, err)
	}
	var bills []UpcomingBillRecord
	for _, result := range resp.Results {
		for _, bill := range result.Bills {
			if bill.Chamber == "" {
				bill.Chamber = chamber
			}
			bills = append(bills, bill)
		}
	}
	return bills, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	body, err := c.fetchWithRetry(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// fetchWithRetry performs an authenticated GET with exponential backoff.
// Authentication failures are returned immediately.
func (c *Client) fetchWithRetry(ctx context.Context, endpoint string) ([]byte, error) {
	var lastErr error
	backoff := c.initialBackoff

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying propublica request",
				zap.String("url", endpoint),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set(apiKeyHeader, c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w (HTTP %d)", ErrUnauthorized, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = ErrRateLimited
			continue
		case resp.StatusCode != http.StatusOK:
			lastErr = fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
			continue
		}

		return body, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.maxRetries, lastErr)
}
