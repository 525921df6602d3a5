package realty

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	maxDescriptionChars = 500
	maxFeatureCount     = 10
)

// listing mirrors the fields the voice layer needs from one upstream
// listing object. Numeric fields arrive as numbers or strings depending on
// the endpoint, so they decode through json.Number-tolerant wrappers.
type listing struct {
	ID        flexString `json:"id"`
	ListingID flexString `json:"listingId"`
	Address   struct {
		DisplayAddress string `json:"displayAddress"`
	} `json:"address"`
	Price struct {
		Display string `json:"display"`
	} `json:"price"`
	Bedrooms     flexString `json:"bedrooms"`
	Bathrooms    flexString `json:"bathrooms"`
	CarSpaces    flexString `json:"carSpaces"`
	PropertyType string     `json:"propertyType"`
	Headline     string     `json:"headline"`
	LandSize     flexString `json:"landSize"`
	Description  string     `json:"description"`
	Features     []string   `json:"features"`
}

// flexString decodes a JSON string, number, or null into a plain string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		// Objects and arrays have no speakable form.
		*f = ""
		return nil
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) or(def string) string {
	if strings.TrimSpace(string(f)) == "" {
		return def
	}
	return string(f)
}

func formatSearchResults(raw json.RawMessage) *SearchResult {
	var payload struct {
		Data     []listing `json:"data"`
		Listings []listing `json:"listings"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return &SearchResult{
			Summary:    "I didn't find any properties matching your criteria.",
			Properties: []PropertySummary{},
		}
	}
	items := payload.Data
	if len(items) == 0 {
		items = payload.Listings
	}
	if len(items) == 0 {
		return &SearchResult{
			Summary:    "I didn't find any properties matching your criteria.",
			Properties: []PropertySummary{},
		}
	}

	limit := len(items)
	if limit > maxVoiceResults {
		limit = maxVoiceResults
	}
	formatted := make([]PropertySummary, 0, limit)
	for _, item := range items[:limit] {
		id := item.ID.or(item.ListingID.or("unknown"))
		formatted = append(formatted, PropertySummary{
			ID:           id,
			Address:      orDefault(item.Address.DisplayAddress, "Address not available"),
			Price:        orDefault(item.Price.Display, "Price on application"),
			Bedrooms:     item.Bedrooms.or("N/A"),
			Bathrooms:    item.Bathrooms.or("N/A"),
			PropertyType: orDefault(item.PropertyType, "Property"),
			Headline:     item.Headline,
		})
	}

	return &SearchResult{
		Summary:    fmt.Sprintf("I found %d properties. Here are the top %d:", len(items), len(formatted)),
		Properties: formatted,
	}
}

func formatPropertyDetail(raw json.RawMessage) *PropertyDetail {
	var payload struct {
		Data *listing `json:"data"`
	}
	item := &listing{}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Data != nil {
		item = payload.Data
	} else if err := json.Unmarshal(raw, item); err != nil {
		item = &listing{}
	}

	description := item.Description
	if description == "" {
		description = "No description available"
	}
	if len(description) > maxDescriptionChars {
		description = description[:maxDescriptionChars]
	}
	features := item.Features
	if len(features) > maxFeatureCount {
		features = features[:maxFeatureCount]
	}
	if features == nil {
		features = []string{}
	}

	return &PropertyDetail{
		Address:      orDefault(item.Address.DisplayAddress, "Address not available"),
		Price:        orDefault(item.Price.Display, "Price on application"),
		Bedrooms:     item.Bedrooms.or("N/A"),
		Bathrooms:    item.Bathrooms.or("N/A"),
		Parking:      item.CarSpaces.or("N/A"),
		PropertyType: orDefault(item.PropertyType, "Property"),
		LandSize:     item.LandSize.or("N/A"),
		Description:  description,
		Features:     features,
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
