// Package tools defines the research and notification tools the travel
// workflow and the reminder agent can invoke, along with a registry that
// exposes registered tools to the model as function definitions.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/randalmurphal/traveops/internal/models"
	"github.com/randalmurphal/traveops/pkg/turnflow/registry"
)

// Wire names for the bound tools. The model and the config file refer to
// tools by these names.
const (
	ToolWeather  = "get_weather"
	ToolFlights  = "search_flights"
	ToolHotels   = "search_hotels"
	ToolWhatsApp = "send_whatsapp_message"
)

// ErrUnknownTool indicates an invocation of a name the registry has no
// binding for.
var ErrUnknownTool = errors.New("unknown tool")

// WeatherQuery asks for a daily forecast covering a date range. Dates are
// ISO 8601 (YYYY-MM-DD).
type WeatherQuery struct {
	Location  string `json:"location"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// FlightQuery searches flights under a total price ceiling.
type FlightQuery struct {
	Origin        string  `json:"origin"`
	Destination   string  `json:"destination"`
	DepartureDate string  `json:"departure_date"`
	ReturnDate    string  `json:"return_date,omitempty"`
	Adults        int     `json:"adults"`
	MaxPriceNPR   float64 `json:"max_price_npr"`
}

// HotelQuery searches hotels for a stay window under a nightly price
// ceiling.
type HotelQuery struct {
	CityCode            string  `json:"city_code"`
	CheckInDate         string  `json:"checkin_date"`
	CheckOutDate        string  `json:"checkout_date"`
	Adults              int     `json:"adults"`
	MaxPricePerNightNPR float64 `json:"max_price_npr"`
}

// WeatherTool produces a forecast for the queried range.
type WeatherTool interface {
	Forecast(ctx context.Context, q WeatherQuery) ([]models.WeatherDay, error)
}

// FlightTool searches for flight options.
type FlightTool interface {
	SearchFlights(ctx context.Context, q FlightQuery) ([]models.FlightOption, error)
}

// HotelTool searches for hotel options.
type HotelTool interface {
	SearchHotels(ctx context.Context, q HotelQuery) ([]models.HotelOption, error)
}

// Notifier delivers a message to a phone number.
type Notifier interface {
	Send(ctx context.Context, to, body string) error
}

// notifyArgs is the wire shape of a send_whatsapp_message invocation.
type notifyArgs struct {
	ToNumber string `json:"to_number"`
	Body     string `json:"body"`
}

// Registry holds the bound tool implementations keyed by wire name. The
// travel workflow pulls typed tools out; the reminder agent invokes them
// through JSON arguments the model produced.
type Registry struct {
	reg *registry.Registry[string, any]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{reg: registry.New[string, any]()}
}

// RegisterWeather binds the weather tool.
func (r *Registry) RegisterWeather(t WeatherTool) {
	r.reg.Register(ToolWeather, t)
}

// RegisterFlights binds the flight search tool.
func (r *Registry) RegisterFlights(t FlightTool) {
	r.reg.Register(ToolFlights, t)
}

// RegisterHotels binds the hotel search tool.
func (r *Registry) RegisterHotels(t HotelTool) {
	r.reg.Register(ToolHotels, t)
}

// RegisterNotifier binds the WhatsApp notifier.
func (r *Registry) RegisterNotifier(n Notifier) {
	r.reg.Register(ToolWhatsApp, n)
}

// Has reports whether a tool is registered under name.
func (r *Registry) Has(name string) bool {
	return r.reg.Has(name)
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	return r.reg.Keys()
}

// Weather returns the bound weather tool, if any.
func (r *Registry) Weather() (WeatherTool, bool) {
	v, ok := r.reg.Get(ToolWeather)
	if !ok {
		return nil, false
	}
	t, ok := v.(WeatherTool)
	return t, ok
}

// Flights returns the bound flight search tool, if any.
func (r *Registry) Flights() (FlightTool, bool) {
	v, ok := r.reg.Get(ToolFlights)
	if !ok {
		return nil, false
	}
	t, ok := v.(FlightTool)
	return t, ok
}

// Hotels returns the bound hotel search tool, if any.
func (r *Registry) Hotels() (HotelTool, bool) {
	v, ok := r.reg.Get(ToolHotels)
	if !ok {
		return nil, false
	}
	t, ok := v.(HotelTool)
	return t, ok
}

// Notifier returns the bound notifier, if any.
func (r *Registry) Notifier() (Notifier, bool) {
	v, ok := r.reg.Get(ToolWhatsApp)
	if !ok {
		return nil, false
	}
	n, ok := v.(Notifier)
	return n, ok
}

// Invoke executes a registered tool with model-provided JSON arguments and
// renders the result as a string for the conversation. Unknown names
// surface ErrUnknownTool.
func (r *Registry) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	switch name {
	case ToolWeather:
		t, ok := r.Weather()
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		var q WeatherQuery
		if err := json.Unmarshal(args, &q); err != nil {
			return "", fmt.Errorf("decode %s arguments: %w", name, err)
		}
		days, err := t.Forecast(ctx, q)
		if err != nil {
			return "", err
		}
		return marshalResult(days)

	case ToolFlights:
		t, ok := r.Flights()
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		var q FlightQuery
		if err := json.Unmarshal(args, &q); err != nil {
			return "", fmt.Errorf("decode %s arguments: %w", name, err)
		}
		flights, err := t.SearchFlights(ctx, q)
		if err != nil {
			return "", err
		}
		return marshalResult(flights)

	case ToolHotels:
		t, ok := r.Hotels()
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		var q HotelQuery
		if err := json.Unmarshal(args, &q); err != nil {
			return "", fmt.Errorf("decode %s arguments: %w", name, err)
		}
		hotels, err := t.SearchHotels(ctx, q)
		if err != nil {
			return "", err
		}
		return marshalResult(hotels)

	case ToolWhatsApp:
		n, ok := r.Notifier()
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
		}
		var a notifyArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return "", fmt.Errorf("decode %s arguments: %w", name, err)
		}
		if err := n.Send(ctx, a.ToNumber, a.Body); err != nil {
			return "", err
		}
		return marshalResult(map[string]string{"status": "sent", "to": a.ToNumber})

	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
}

func marshalResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(data), nil
}

// Definitions returns model-facing function definitions for every
// registered tool, in a stable order.
func (r *Registry) Definitions() []openai.ChatCompletionToolParam {
	var defs []openai.ChatCompletionToolParam
	for _, name := range []string{ToolWeather, ToolFlights, ToolHotels, ToolWhatsApp} {
		if !r.reg.Has(name) {
			continue
		}
		defs = append(defs, toolDefinitions[name])
	}
	return defs
}

var toolDefinitions = map[string]openai.ChatCompletionToolParam{
	ToolWeather: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        ToolWeather,
			Description: openai.String("Get a daily weather forecast for a location over a date range."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "City name or IATA airport code",
					},
					"start_date": map[string]any{
						"type":        "string",
						"description": "First forecast day, YYYY-MM-DD",
					},
					"end_date": map[string]any{
						"type":        "string",
						"description": "Last forecast day, YYYY-MM-DD",
					},
				},
				"required": []string{"location", "start_date"},
			},
		},
	},
	ToolFlights: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        ToolFlights,
			Description: openai.String("Search flight options between two airports under a total price ceiling."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"origin": map[string]any{
						"type":        "string",
						"description": "Origin IATA airport code",
					},
					"destination": map[string]any{
						"type":        "string",
						"description": "Destination IATA airport code",
					},
					"departure_date": map[string]any{
						"type":        "string",
						"description": "Departure date, YYYY-MM-DD",
					},
					"return_date": map[string]any{
						"type":        "string",
						"description": "Return date, YYYY-MM-DD, omit for one-way",
					},
					"adults": map[string]any{
						"type":        "integer",
						"description": "Number of adult travellers",
					},
					"max_price_npr": map[string]any{
						"type":        "number",
						"description": "Maximum total price in NPR",
					},
				},
				"required": []string{"origin", "destination", "departure_date"},
			},
		},
	},
	ToolHotels: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        ToolHotels,
			Description: openai.String("Search hotels in a city for a stay window under a nightly price ceiling."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"city_code": map[string]any{
						"type":        "string",
						"description": "IATA city code",
					},
					"checkin_date": map[string]any{
						"type":        "string",
						"description": "Check-in date, YYYY-MM-DD",
					},
					"checkout_date": map[string]any{
						"type":        "string",
						"description": "Check-out date, YYYY-MM-DD",
					},
					"adults": map[string]any{
						"type":        "integer",
						"description": "Number of adult guests",
					},
					"max_price_npr": map[string]any{
						"type":        "number",
						"description": "Maximum price per night in NPR",
					},
				},
				"required": []string{"city_code", "checkin_date", "checkout_date"},
			},
		},
	},
	ToolWhatsApp: {
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        ToolWhatsApp,
			Description: openai.String("Send a WhatsApp message to a phone number."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]any{
					"to_number": map[string]any{
						"type":        "string",
						"description": "Recipient phone number with country code",
					},
					"body": map[string]any{
						"type":        "string",
						"description": "Message text",
					},
				},
				"required": []string{"to_number", "body"},
			},
		},
	},
}
