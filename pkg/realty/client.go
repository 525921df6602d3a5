// Package realty wraps the realty-in-au RapidAPI service: property search,
// listing details, and agent listings, with results reshaped for spoken
// delivery.
package realty

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultHost = "realty-in-au.p.rapidapi.com"

	defaultPageSize = 10
	maxVoiceResults = 5
)

// StatusError is a non-2xx response from the lookup service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("realty: api error: %d", e.StatusCode)
}

// Client is a request/response client for the lookup service. It holds no
// per-session state and is safe for concurrent use.
type Client struct {
	apiKey     string
	host       string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(apiKey, host string, httpClient *http.Client, logger *slog.Logger) *Client {
	if strings.TrimSpace(host) == "" {
		host = DefaultHost
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{apiKey: apiKey, host: host, httpClient: httpClient, logger: logger}
}

// SearchQuery holds search filters. Zero-valued optional fields are omitted
// from the outbound request entirely.
type SearchQuery struct {
	Location     string
	Channel      string // BUY or RENT, defaults to BUY
	MinPrice     int
	MaxPrice     int
	MinBedrooms  int
	PropertyType string
	Page         int
	PageSize     int
}

// PropertySummary is one simplified listing, bounded for voice output.
type PropertySummary struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	Price        string `json:"price"`
	Bedrooms     string `json:"bedrooms"`
	Bathrooms    string `json:"bathrooms"`
	PropertyType string `json:"property_type"`
	Headline     string `json:"headline,omitempty"`
}

// SearchResult pairs a speakable summary with at most five listings.
type SearchResult struct {
	Summary    string            `json:"summary"`
	Properties []PropertySummary `json:"properties"`
}

// PropertyDetail is one simplified listing with bounded free-text fields.
type PropertyDetail struct {
	Address      string   `json:"address"`
	Price        string   `json:"price"`
	Bedrooms     string   `json:"bedrooms"`
	Bathrooms    string   `json:"bathrooms"`
	Parking      string   `json:"parking"`
	PropertyType string   `json:"property_type"`
	LandSize     string   `json:"land_size"`
	Description  string   `json:"description"`
	Features     []string `json:"features"`
}

// SearchProperties queries /properties/list. Optional filters are only sent
// when set.
func (c *Client) SearchProperties(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	channel := strings.TrimSpace(q.Channel)
	if channel == "" {
		channel = "BUY"
	}
	page := q.Page
	if page <= 0 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	params := url.Values{}
	params.Set("searchLocation", q.Location)
	params.Set("channel", channel)
	params.Set("page", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(pageSize))
	if q.MaxPrice > 0 {
		params.Set("maxPrice", strconv.Itoa(q.MaxPrice))
	}
	if q.MinPrice > 0 {
		params.Set("minPrice", strconv.Itoa(q.MinPrice))
	}
	if q.MinBedrooms > 0 {
		params.Set("minimumBedrooms", strconv.Itoa(q.MinBedrooms))
	}
	if strings.TrimSpace(q.PropertyType) != "" {
		params.Set("propertyTypes", q.PropertyType)
	}

	c.logger.Info("searching properties", "location", q.Location, "channel", channel)
	raw, err := c.get(ctx, "/properties/list", params)
	if err != nil {
		return nil, err
	}
	return formatSearchResults(raw), nil
}

// PropertyDetails queries /properties/detail for one listing.
func (c *Client) PropertyDetails(ctx context.Context, listingID string) (*PropertyDetail, error) {
	params := url.Values{}
	params.Set("id", listingID)

	c.logger.Info("fetching property details", "listing_id", listingID)
	raw, err := c.get(ctx, "/properties/detail", params)
	if err != nil {
		return nil, err
	}
	return formatPropertyDetail(raw), nil
}

// AgentListings queries /agents/get-listings for the given salespeople.
func (c *Client) AgentListings(ctx context.Context, agentIDs []string, channel string, page, pageSize int) (*SearchResult, error) {
	if strings.TrimSpace(channel) == "" {
		channel = "BUY"
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	params := url.Values{}
	params.Set("linkedSalespeopleIds", strings.Join(agentIDs, ","))
	params.Set("channel", channel)
	params.Set("page", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(pageSize))

	c.logger.Info("fetching agent listings", "agents", len(agentIDs), "channel", channel)
	raw, err := c.get(ctx, "/agents/get-listings", params)
	if err != nil {
		return nil, err
	}
	return formatSearchResults(raw), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	u := url.URL{
		Scheme:   "https",
		Host:     c.host,
		Path:     path,
		RawQuery: params.Encode(),
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("realty: build request: %w", err)
	}
	req.Header.Set("x-rapidapi-key", c.apiKey)
	req.Header.Set("x-rapidapi-host", c.host)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("realty: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("realty: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		c.logger.Error("realty api error", "status", resp.StatusCode, "body", snippet)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return json.RawMessage(body), nil
}
