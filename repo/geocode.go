package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const defaultGeocodeURL = "https://geocode.arcgis.com/arcgis/rest/services/World/GeocodeServer/findAddressCandidates"

// AddressCandidate is one geocoder match for a free-text address.
type AddressCandidate struct {
	Address string  `json:"address"`
	Score   float64 `json:"score"`
}

type addressResponse struct {
	Candidates []AddressCandidate `json:"candidates"`
}

// GeoClient resolves free-text addresses against the ArcGIS world geocoder.
type GeoClient struct {
	BaseURL string
	Client  *http.Client
}

// NewGeoClient creates a geocoding client.
func NewGeoClient() *GeoClient {
	return &GeoClient{
		BaseURL: defaultGeocodeURL,
		Client:  http.DefaultClient,
	}
}

// FindAddress returns the best candidate for a single-line address query.
// The caller decides whether the candidate's score is good enough.
func (g *GeoClient) FindAddress(ctx context.Context, address string) (*AddressCandidate, error) {
	query := fmt.Sprintf("%s?f=json&SingleLine=%s", g.BaseURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, query, nil)
	if err != nil {
		return nil, fmt.Errorf("error building geocode request: %w", err)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error querying geocoder: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading geocoder response: %w", err)
	}

	var parsed addressResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("error unmarshaling geocoder response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("no address candidates found for: %s", address)
	}

	best := parsed.Candidates[0]
	for _, c := range parsed.Candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return &best, nil
}
