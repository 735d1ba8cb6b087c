package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcusD9722/Nova/core"
)

func TestWeatherMissingKeyIsConfigurationError(t *testing.T) {
	p := NewProviders(Credentials{}, nil)

	_, err := p.currentWeather(context.Background(), map[string]any{"city": "Lisbon"})
	if !errors.Is(err, core.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestWeatherCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "Lisbon" || q.Get("appid") != "k" || q.Get("units") != "metric" {
			t.Errorf("query = %v", q)
		}
		w.Write([]byte(`{"main":{"temp":21.5,"feels_like":20,"humidity":60},"weather":[{"description":"clear sky"}]}`))
	}))
	defer srv.Close()

	p := NewProviders(Credentials{OpenWeatherKey: "k"}, nil)
	p.weatherURL = srv.URL

	out, err := p.currentWeather(context.Background(), map[string]any{"city": "Lisbon"})
	if err != nil {
		t.Fatalf("weather: %v", err)
	}
	m := out.(map[string]any)
	if m["description"] != "clear sky" || *m["temp"].(*float64) != 21.5 {
		t.Errorf("result = %v", m)
	}
}

func TestGeocodeNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	}))
	defer srv.Close()

	p := NewProviders(Credentials{GoogleMapsKey: "k"}, nil)
	p.geocodeURL = srv.URL

	out, err := p.geocode(context.Background(), map[string]any{"address": "nowhere"})
	if err != nil {
		t.Fatalf("geocode: %v", err)
	}
	if out.(map[string]any)["status"] != "ZERO_RESULTS" {
		t.Errorf("result = %v", out)
	}
}

func TestDiscordSendUsesNonceThroughRouter(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/42/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bot tok" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"m1","content":"hello"}`))
	}))
	defer srv.Close()

	p := NewProviders(Credentials{DiscordToken: "tok", DiscordChannelID: "42"}, nil)
	p.discordURL = srv.URL

	reg := NewRegistry()
	reg.MustRegister(p.Tools()...)
	res := NewRouter(reg).Execute(context.Background(),
		core.ToolCall{Name: "discord.send", Args: map[string]any{"content": "hello"}}, DefaultExecOptions())
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	nonce, _ := got["nonce"].(string)
	if len(nonce) != discordNonceLen || got["enforce_nonce"] != true {
		t.Errorf("body = %v", got)
	}
}

func TestMemoryToolsOmittedWithoutUnifier(t *testing.T) {
	for _, tool := range NewProviders(Credentials{}, nil).Tools() {
		if tool.Name == "memory.search" || tool.Name == "memory.rebuild_index" {
			t.Errorf("unexpected tool %s", tool.Name)
		}
	}
}
