package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/AegisDefend/aegis-installer/internal/platform"
	"github.com/AegisDefend/aegis-installer/pkg/logger"
)

const packagesPath = "/web/api/v2.1/update/agent/packages"

// ErrUnauthorized is returned when the console rejects the API key, either
// with an HTTP auth status or with an errors field in the payload.
var ErrUnauthorized = errors.New("console rejected the API key")

// Client queries the console's package catalog. It issues exactly one GET per
// ListPackages call and never retries.
type Client struct {
	baseURL    string
	apiKey     string
	authScheme string
	httpClient *http.Client
	logger     *logger.Logger
}

// Query constrains the package listing.
type Query struct {
	PlatformType  string
	FileExtension string
	OSArches      string
	Status        string
	Limit         int
}

// QueryFor builds the listing query for a host descriptor and channel.
func QueryFor(desc platform.Descriptor, channel string, limit int) Query {
	return Query{
		PlatformType:  desc.PlatformType(),
		FileExtension: desc.FileExtension(),
		OSArches:      desc.OSArches(),
		Status:        channel,
		Limit:         limit,
	}
}

// NewClient creates a catalog client for the given console.
func NewClient(baseURL, apiKey, authScheme string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		authScheme: authScheme,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.NewLogger("catalog"),
	}
}

// ListPackages fetches the package listing, newest first. Server order is
// preserved in the returned slice.
func (c *Client) ListPackages(ctx context.Context, q Query) ([]PackageRecord, error) {
	endpoint := c.baseURL + packagesPath + "?" + q.values().Encode()
	c.logger.WithFields(logger.Fields{
		"platform": q.PlatformType,
		"status":   q.Status,
		"limit":    q.Limit,
	}).Info("Fetching package catalog")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.authScheme+" "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).Error("Failed to fetch package catalog")
		return nil, fmt.Errorf("failed to fetch package catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("catalog returned status %d: %w", resp.StatusCode, ErrUnauthorized)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d", resp.StatusCode)
	}

	var listResp listResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		c.logger.WithError(err).Error("Failed to decode catalog response")
		return nil, fmt.Errorf("failed to decode catalog response: %w", err)
	}

	if len(listResp.Errors) > 0 {
		c.logger.Error("Catalog response carries an errors field")
		return nil, fmt.Errorf("catalog response reported %d errors: %w", len(listResp.Errors), ErrUnauthorized)
	}

	c.logger.WithField("count", len(listResp.Data)).Info("Successfully fetched package catalog")
	return listResp.Data, nil
}

func (q Query) values() url.Values {
	values := url.Values{}
	values.Set("platformTypes", q.PlatformType)
	values.Set("fileExtension", q.FileExtension)
	if q.OSArches != "" {
		values.Set("osArches", q.OSArches)
	}
	if q.Status != "" {
		values.Set("status", q.Status)
	}
	values.Set("sortBy", "version")
	values.Set("sortOrder", "desc")
	values.Set("limit", strconv.Itoa(q.Limit))
	values.Set("countOnly", "false")
	return values
}
