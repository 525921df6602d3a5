package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/realtyvoice/voice-gateway/pkg/gateway/metrics"
	"github.com/realtyvoice/voice-gateway/pkg/realtime"
	"github.com/realtyvoice/voice-gateway/pkg/realty"
)

const (
	ToolSearchProperties   = "search_properties"
	ToolGetPropertyDetails = "get_property_details"

	errLookupNotConfigured = "Property lookup is not configured. Set VOICE_GATEWAY_RAPIDAPI_KEY to enable property search."
)

// PropertyLookup is the slice of the realty client the executors use.
type PropertyLookup interface {
	SearchProperties(ctx context.Context, q realty.SearchQuery) (*realty.SearchResult, error)
	PropertyDetails(ctx context.Context, listingID string) (*realty.PropertyDetail, error)
}

// RealtyExecutors returns the fixed executor set for the realty domain.
// lookup may be nil when the lookup service is unconfigured; the executors
// then answer with an error-marker result instead of failing at startup.
func RealtyExecutors(lookup PropertyLookup) []Executor {
	return []Executor{
		searchExecutor{lookup: lookup},
		detailExecutor{lookup: lookup},
	}
}

type searchExecutor struct {
	lookup PropertyLookup
}

func (searchExecutor) Name() string { return ToolSearchProperties }

func (searchExecutor) Declaration() realtime.ToolDef {
	return realtime.ToolDef{
		Type:        "function",
		Name:        ToolSearchProperties,
		Description: "Search for properties (houses, apartments, units) for sale or rent in Australia. Use this when the user asks about finding properties, homes, or real estate.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "The city, suburb, or postcode to search in (e.g., 'Sydney', 'Melbourne', '2000')",
				},
				"max_price": map[string]any{
					"type":        "integer",
					"description": "Maximum price in AUD",
				},
				"min_price": map[string]any{
					"type":        "integer",
					"description": "Minimum price in AUD",
				},
				"bedrooms": map[string]any{
					"type":        "integer",
					"description": "Minimum number of bedrooms",
				},
				"property_type": map[string]any{
					"type":        "string",
					"enum":        []string{"house", "apartment", "unit", "townhouse", "land"},
					"description": "Type of property",
				},
				"channel": map[string]any{
					"type":        "string",
					"enum":        []string{"BUY", "RENT"},
					"description": "Whether to buy or rent. Default is BUY.",
				},
			},
			"required": []string{"location"},
		},
	}
}

func (e searchExecutor) Execute(ctx context.Context, args map[string]any) (any, error) {
	if e.lookup == nil {
		return ErrorResult(errLookupNotConfigured), nil
	}

	q := realty.SearchQuery{
		Location:     stringArg(args, "location"),
		Channel:      stringArg(args, "channel"),
		MinPrice:     intArg(args, "min_price"),
		MaxPrice:     intArg(args, "max_price"),
		MinBedrooms:  intArg(args, "bedrooms"),
		PropertyType: stringArg(args, "property_type"),
	}

	start := time.Now()
	result, err := e.lookup.SearchProperties(ctx, q)
	metrics.LookupDuration.WithLabelValues("search").Observe(time.Since(start).Seconds())
	if err != nil {
		return searchFailure(err), nil
	}
	return result, nil
}

type detailExecutor struct {
	lookup PropertyLookup
}

func (detailExecutor) Name() string { return ToolGetPropertyDetails }

func (detailExecutor) Declaration() realtime.ToolDef {
	return realtime.ToolDef{
		Type:        "function",
		Name:        ToolGetPropertyDetails,
		Description: "Get detailed information about a specific property using its listing ID. Use this when the user wants more details about a property.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"listing_id": map[string]any{
					"type":        "string",
					"description": "The unique listing ID of the property",
				},
			},
			"required": []string{"listing_id"},
		},
	}
}

func (e detailExecutor) Execute(ctx context.Context, args map[string]any) (any, error) {
	if e.lookup == nil {
		return ErrorResult(errLookupNotConfigured), nil
	}

	start := time.Now()
	detail, err := e.lookup.PropertyDetails(ctx, stringArg(args, "listing_id"))
	metrics.LookupDuration.WithLabelValues("detail").Observe(time.Since(start).Seconds())
	if err != nil {
		return map[string]any{
			"error":   lookupErrorMessage(err),
			"summary": fmt.Sprintf("Sorry, I couldn't get property details: %s", lookupErrorMessage(err)),
		}, nil
	}
	return detail, nil
}

func searchFailure(err error) map[string]any {
	msg := lookupErrorMessage(err)
	return map[string]any{
		"error":      msg,
		"summary":    fmt.Sprintf("Sorry, I couldn't search properties: %s", msg),
		"properties": []any{},
	}
}

func lookupErrorMessage(err error) string {
	var statusErr *realty.StatusError
	if errors.As(err, &statusErr) {
		return fmt.Sprintf("API error: %d", statusErr.StatusCode)
	}
	return err.Error()
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
