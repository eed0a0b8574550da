// Package congress fetches published bill text from GovInfo.
package congress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Breakdown/breakdown-services-sub000/internal/billtext"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://www.govinfo.gov/content/pkg"
	defaultTimeout = 60 * time.Second
	maxBodyBytes   = 32 << 20
)

var (
	// ErrTextNotPublished is returned when GovInfo has no document for the bill yet.
	ErrTextNotPublished = errors.New("congress: bill text not published")
	// ErrUnsupportedBillType is returned for bill types without a text version suffix.
	ErrUnsupportedBillType = errors.New("congress: unsupported bill type")
)

// versionByType maps the fetchable bill types onto their introduced-version code.
var versionByType = map[string]string{
	"hr": "ih",
	"s":  "is",
}

// SupportedBillType reports whether text is fetched for billType.
func SupportedBillType(billType string) bool {
	_, ok := versionByType[strings.ToLower(billType)]
	return ok
}

// SupportedBillTypes lists the fetchable bill types.
func SupportedBillTypes() []string {
	return []string{"hr", "s"}
}

// Config wires the client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client downloads and flattens bill XML.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient builds a Client.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{baseURL: baseURL, client: httpClient, logger: logger}
}

// Document is the flattened text of one bill version.
type Document struct {
	SourceURL string
	Text      string
}

// BillTextURL builds the GovInfo XML location for a bill, for example
// {base}/BILLS-118hr100ih/xml/BILLS-118hr100ih.xml.
func (c *Client) BillTextURL(congress int, billType, code string) (string, error) {
	version, ok := versionByType[strings.ToLower(billType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedBillType, billType)
	}
	pkg := fmt.Sprintf("BILLS-%d%s%s", congress, strings.ToLower(code), version)
	return fmt.Sprintf("%s/%s/xml/%s.xml", c.baseURL, pkg, pkg), nil
}

// FetchBillText downloads, parses and flattens the introduced text of a bill.
func (c *Client) FetchBillText(ctx context.Context, congress int, billType, code string) (Document, error) {
	sourceURL, err := c.BillTextURL(congress, billType, code)
	if err != nil {
		return Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("failed to fetch bill text %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Document{}, fmt.Errorf("%w: %s", ErrTextNotPublished, sourceURL)
	}
	if resp.StatusCode != http.StatusOK {
		return Document{}, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, sourceURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Document{}, fmt.Errorf("failed to read bill text: %w", err)
	}

	text, err := billtext.ParseAndFlatten(body)
	if err != nil {
		return Document{}, fmt.Errorf("failed to parse bill text %s: %w", sourceURL, err)
	}

	c.logger.Debug("fetched bill text",
		zap.String("url", sourceURL),
		zap.Int("bytes", len(body)),
		zap.Int("text_length", len(text)))

	return Document{SourceURL: sourceURL, Text: text}, nil
}
