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

	"github.com/MarcusD9722/Nova/core"
	"github.com/MarcusD9722/Nova/logging"
	"github.com/MarcusD9722/Nova/memory"
)

const (
	openWeatherURL = "https://api.openweathermap.org/data/2.5/weather"
	geocodeURL     = "https://maps.googleapis.com/maps/api/geocode/json"
	discordAPIURL  = "https://discord.com/api/v10"

	providerTimeout = 10 * time.Second

	// Discord rejects nonces longer than 25 characters.
	discordNonceLen = 25
)

// Credentials holds provider secrets. Missing values only fail the tools
// that need them, at call time.
type Credentials struct {
	OpenWeatherKey   string
	GoogleMapsKey    string
	DiscordToken     string
	DiscordChannelID string
}

// Providers builds the built-in tools.
type Providers struct {
	creds  Credentials
	memory *memory.Unifier
	client *http.Client

	weatherURL string
	geocodeURL string
	discordURL string
}

// NewProviders creates the providers. A nil unifier omits the memory tools.
func NewProviders(creds Credentials, mem *memory.Unifier) *Providers {
	return &Providers{
		creds:      creds,
		memory:     mem,
		client:     &http.Client{Timeout: providerTimeout},
		weatherURL: openWeatherURL,
		geocodeURL: geocodeURL,
		discordURL: discordAPIURL,
	}
}

// Tools returns every available tool.
func (p *Providers) Tools() []Tool {
	ts := []Tool{
		{
			Name:        "weather.current",
			Description: "Get current weather by city name using OpenWeather.",
			Schema: ObjectSchema(map[string]any{
				"city":  StringProperty("City name, optionally with country code (e.g. 'Lisbon,PT')"),
				"units": StringEnumProperty("Unit system (default: metric)", "metric", "imperial", "standard"),
			}, "city"),
			Idempotent: true,
			Network:    true,
			Fn:         p.currentWeather,
		},
		{
			Name:        "maps.geocode",
			Description: "Geocode an address using Google Maps Geocoding API.",
			Schema: ObjectSchema(map[string]any{
				"address": StringProperty("Free-form address or place name"),
			}, "address"),
			Idempotent: true,
			Network:    true,
			Fn:         p.geocode,
		},
		{
			Name:        "discord.send",
			Description: "Send a message to a Discord channel using a bot token.",
			Schema: ObjectSchema(map[string]any{
				"content":    StringProperty("Message text"),
				"channel_id": StringProperty("Target channel; defaults to the configured channel"),
			}, "content"),
			Network: true,
			Fn:      p.discordSend,
		},
	}

	if p.memory != nil {
		ts = append(ts,
			Tool{
				Name:        "memory.search",
				Description: "Search long-term memory (facts, people, events, recent turns).",
				Schema: ObjectSchema(map[string]any{
					"q":     StringProperty("Search query"),
					"limit": IntegerProperty("Maximum hits (default: 10)"),
				}, "q"),
				Idempotent: true,
				Fn:         p.memorySearch,
			},
			Tool{
				Name:        "memory.rebuild_index",
				Description: "Rebuild the semantic memory index from the durable store.",
				Schema:      ObjectSchema(map[string]any{}),
				Idempotent:  true,
				Fn:          p.memoryRebuild,
			},
		)
	}
	return ts
}

func requireCredential(key, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", fmt.Errorf("%w: missing required key: %s", core.ErrConfiguration, key)
	}
	return v, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func (p *Providers) currentWeather(ctx context.Context, args map[string]any) (any, error) {
	key, err := requireCredential("OPENWEATHER_API_KEY", p.creds.OpenWeatherKey)
	if err != nil {
		return nil, err
	}
	city := stringArg(args, "city")
	if city == "" {
		return nil, fmt.Errorf("weather.current requires 'city'")
	}
	units := stringArg(args, "units")
	if units == "" {
		units = "metric"
	}

	q := url.Values{"q": {city}, "appid": {key}, "units": {units}}
	var data struct {
		Main struct {
			Temp      *float64 `json:"temp"`
			FeelsLike *float64 `json:"feels_like"`
			Humidity  *float64 `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	}
	if err := p.getJSON(ctx, p.weatherURL+"?"+q.Encode(), &data); err != nil {
		return nil, fmt.Errorf("fetch weather: %w", err)
	}

	var desc string
	if len(data.Weather) > 0 {
		desc = data.Weather[0].Description
	}
	return map[string]any{
		"city":        city,
		"units":       units,
		"temp":        data.Main.Temp,
		"feels_like":  data.Main.FeelsLike,
		"humidity":    data.Main.Humidity,
		"description": desc,
	}, nil
}

func (p *Providers) geocode(ctx context.Context, args map[string]any) (any, error) {
	key, err := requireCredential("GOOGLE_MAPS_API_KEY", p.creds.GoogleMapsKey)
	if err != nil {
		return nil, err
	}
	address := stringArg(args, "address")
	if address == "" {
		return nil, fmt.Errorf("maps.geocode requires 'address'")
	}

	q := url.Values{"address": {address}, "key": {key}}
	var data struct {
		Status  string `json:"status"`
		Results []struct {
			FormattedAddress string `json:"formatted_address"`
			PlaceID          string `json:"place_id"`
			Geometry         struct {
				Location struct {
					Lat float64 `json:"lat"`
					Lng float64 `json:"lng"`
				} `json:"location"`
			} `json:"geometry"`
		} `json:"results"`
	}
	if err := p.getJSON(ctx, p.geocodeURL+"?"+q.Encode(), &data); err != nil {
		return nil, fmt.Errorf("geocode: %w", err)
	}

	if data.Status != "OK" || len(data.Results) == 0 {
		return map[string]any{"status": data.Status, "results": data.Results}, nil
	}
	top := data.Results[0]
	return map[string]any{
		"status":            data.Status,
		"formatted_address": top.FormattedAddress,
		"location":          map[string]any{"lat": top.Geometry.Location.Lat, "lng": top.Geometry.Location.Lng},
		"place_id":          top.PlaceID,
	}, nil
}

// discordSend posts a message. The router's idempotency key is sent as an
// enforced nonce so a retried attempt cannot post twice.
func (p *Providers) discordSend(ctx context.Context, args map[string]any) (any, error) {
	token, err := requireCredential("DISCORD_BOT_TOKEN", p.creds.DiscordToken)
	if err != nil {
		return nil, err
	}
	channel := stringArg(args, "channel_id")
	if channel == "" {
		channel = strings.TrimSpace(p.creds.DiscordChannelID)
	}
	if channel == "" {
		return nil, fmt.Errorf("%w: missing DISCORD_CHANNEL_ID (or pass channel_id)", core.ErrConfiguration)
	}
	content := stringArg(args, "content")
	if content == "" {
		return nil, fmt.Errorf("discord.send requires 'content'")
	}

	body := map[string]any{"content": content}
	if nonce := IdempotencyKey(ctx); nonce != "" {
		if len(nonce) > discordNonceLen {
			nonce = nonce[:discordNonceLen]
		}
		body["nonce"] = nonce
		body["enforce_nonce"] = true
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.discordURL+"/channels/"+url.PathEscape(channel)+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+token)
	req.Header.Set("Content-Type", "application/json")

	var data struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}
	if err := p.doJSON(req, &data); err != nil {
		return nil, fmt.Errorf("send discord message: %w", err)
	}
	return map[string]any{"id": data.ID, "channel_id": channel, "content": data.Content}, nil
}

func (p *Providers) memorySearch(ctx context.Context, args map[string]any) (any, error) {
	q := stringArg(args, "q")
	limit := 10
	if f, ok := toFloat(args["limit"]); ok && f > 0 {
		limit = int(f)
	}
	hits, err := p.memory.Search(ctx, q, "", limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"q": q, "hits": hits}, nil
}

func (p *Providers) memoryRebuild(ctx context.Context, _ map[string]any) (any, error) {
	counts, err := p.memory.RebuildSemanticIndex(ctx)
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (p *Providers) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return p.doJSON(req, out)
}

func (p *Providers) doJSON(req *http.Request, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, logging.Truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
