package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/flight-assistant/internal/llm"
)

// FareSearchToolName is the name the model uses to request a fare lookup.
const FareSearchToolName = "search_flights"

const (
	// RateLimitedWarning is returned when the fare service answers 429.
	RateLimitedWarning = "⚠️ La API de vuelos está saturada momentáneamente. Por favor, espera 1 minuto e inténtalo de nuevo."
	// ColdStartWarning is returned when the fare service answers 502 while waking up.
	ColdStartWarning = "⚠️ El servidor de vuelos se está reiniciando (Cold Start). Por favor, intenta la misma búsqueda en 30 segundos."
)

// IsColdStart reports whether a fare-search result signals the upstream is still starting.
// Only the cold-start warning or an error payload for HTTP 502 count, so fares such as
// flight FR502 or connection errors naming port 502xx do not match.
func IsColdStart(content string) bool {
	if content == ColdStartWarning || strings.Contains(content, "Cold Start") {
		return true
	}
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return false
	}
	return strings.HasPrefix(payload.Error, coldStartErrorPrefix)
}

var coldStartErrorPrefix = fmt.Sprintf("Error HTTP %d:", http.StatusBadGateway)

const maxFareResponseSize = 4 << 20

// FareSearchArgs are the arguments of a fare lookup.
type FareSearchArgs struct {
	Origin      string `json:"origin" jsonschema_description:"IATA code of the origin airport (e.g. MAD or BCN)"`
	Destination string `json:"destination" jsonschema_description:"IATA code of the destination airport (e.g. LON or PAR)"`
	Date        string `json:"date" jsonschema_description:"Departure date in YYYY-MM-DD format"`
	Currency    string `json:"currency,omitempty" jsonschema_description:"Currency code; defaults to EUR"`
}

// FareSearch queries the external fare-lookup service.
type FareSearch struct {
	baseURL string
	client  *http.Client
}

// NewFareSearch creates a fare adapter for the given endpoint.
func NewFareSearch(baseURL string, timeout time.Duration) *FareSearch {
	return &FareSearch{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Tool returns the registry entry for fare search.
func (f *FareSearch) Tool() Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        FareSearchToolName,
			Description: "Searches the cheapest Ryanair fares for a route and date. Airports must be IATA codes and the date YYYY-MM-DD.",
			InputSchema: llm.MustSchemaFor(&FareSearchArgs{}),
		},
		Handler: f.handle,
	}
}

func (f *FareSearch) handle(ctx context.Context, arguments map[string]any) (string, error) {
	var args FareSearchArgs
	if err := decodeArguments(arguments, &args); err != nil {
		return "", err
	}
	if args.Origin == "" || args.Destination == "" || args.Date == "" {
		return "", fmt.Errorf("origin, destination and date are required")
	}
	return f.Search(ctx, args), nil
}

// Search performs one lookup. Every failure is reported in the returned text.
func (f *FareSearch) Search(ctx context.Context, args FareSearchArgs) string {
	if args.Currency == "" {
		args.Currency = "EUR"
	}

	endpoint, err := url.Parse(f.baseURL)
	if err != nil {
		return errorJSON(fmt.Sprintf("Error inesperado: %v", err))
	}
	query := endpoint.Query()
	query.Set("from", args.Origin)
	query.Set("to", args.Destination)
	query.Set("date", args.Date)
	query.Set("currency", args.Currency)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return errorJSON(fmt.Sprintf("Error inesperado: %v", err))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return errorJSON(fmt.Sprintf("Error de conexión: %v", err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return RateLimitedWarning
	case http.StatusBadGateway:
		return ColdStartWarning
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFareResponseSize))
	if err != nil {
		return errorJSON(fmt.Sprintf("Error de conexión: %v", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = resp.Status
		}
		return errorJSON(fmt.Sprintf("Error HTTP %d: %s", resp.StatusCode, detail))
	}

	var compacted bytes.Buffer
	if err := json.Compact(&compacted, body); err != nil {
		return errorJSON(fmt.Sprintf("Error inesperado: %v", err))
	}
	return compacted.String()
}
