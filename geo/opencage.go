package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"geochat/models"
)

// OpenCage resolves locations with the OpenCage forward geocoding API.
type OpenCage struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewOpenCage(baseURL, apiKey string, timeout time.Duration) *OpenCage {
	return &OpenCage{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type openCageResponse struct {
	Status struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Results []struct {
		Formatted string `json:"formatted"`
		Geometry  struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"geometry"`
	} `json:"results"`
}

func (o *OpenCage) geocode(ctx context.Context, query string, limit int) (openCageResponse, error) {
	var body openCageResponse

	q := url.Values{}
	q.Set("q", query)
	q.Set("key", o.apiKey)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("no_annotations", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/geocode/v1/json?"+q.Encode(), nil)
	if err != nil {
		return body, fmt.Errorf("build geocode request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return body, fmt.Errorf("geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return body, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return body, fmt.Errorf("decode geocode response: %w", err)
	}
	return body, nil
}

func (o *OpenCage) Resolve(ctx context.Context, location string) (models.Coordinates, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return models.Coordinates{}, ErrNoMatch
	}
	body, err := o.geocode(ctx, location, 1)
	if err != nil {
		return models.Coordinates{}, err
	}
	if len(body.Results) == 0 {
		return models.Coordinates{}, ErrNoMatch
	}
	g := body.Results[0].Geometry
	return models.Coordinates{Lat: g.Lat, Lon: g.Lng}, nil
}

// Suggest returns the formatted names of the best matches for prefix.
func (o *OpenCage) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	names := []string{}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return names, nil
	}
	body, err := o.geocode(ctx, prefix, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range body.Results {
		if r.Formatted != "" {
			names = append(names, r.Formatted)
		}
	}
	return names, nil
}
