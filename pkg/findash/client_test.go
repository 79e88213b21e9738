package findash

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
	if c.httpClient == nil {
		t.Fatal("expected non-nil httpClient")
	}
	if got := c.LiveURL("abc"); got != "ws://localhost:8080/api/sessions/abc/live" {
		t.Errorf("LiveURL = %q", got)
	}
}

func TestUpdateFilters(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"s1","filters":{"ticker":"AAPL","period":"1Y","tab":"metrics"},"panel":{"tab":"metrics","seq":1,"title":"AAPL (1Y)"}}`))
	}))
	defer ts.Close()

	ticker := "AAPL"
	s, err := NewClient(ts.URL).UpdateFilters(context.Background(), "s1", Patch{Ticker: &ticker})
	if err != nil {
		t.Fatalf("UpdateFilters: %v", err)
	}
	if gotMethod != "PUT" || gotPath != "/api/sessions/s1/filters" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotBody["ticker"] != "AAPL" {
		t.Errorf("body = %v", gotBody)
	}
	if s.Filters.Ticker != "AAPL" || s.Panel == nil || s.Panel.Title != "AAPL (1Y)" {
		t.Errorf("session = %+v", s)
	}
}

func TestErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"session x not found"}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL).Panel(context.Background(), "x")
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if e.Status != 404 || e.Message != "session x not found" {
		t.Errorf("error = %+v", e)
	}
}

func TestIndustryAndTooltipAt(t *testing.T) {
	var paths []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.RequestURI())
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/api/industries/Consumer Electronics" {
			w.Write([]byte(`{"name":"Consumer Electronics","companies":["AAPL","SONY"]}`))
			return
		}
		w.Write([]byte(`{"hoverLabel":"2023","entries":[],"position":{"x":900,"y":114}}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	ind, err := c.Industry(context.Background(), "Consumer Electronics")
	if err != nil {
		t.Fatalf("Industry: %v", err)
	}
	if len(ind.Companies) != 2 || ind.Companies[1] != "SONY" {
		t.Errorf("industry = %+v", ind)
	}

	tt, err := c.TooltipAt(context.Background(), "s1", 912.5, 1000, 500)
	if err != nil {
		t.Fatalf("TooltipAt: %v", err)
	}
	if tt.HoverLabel != "2023" || tt.Position.X != 900 {
		t.Errorf("tooltip = %+v", tt)
	}
	if len(paths) != 2 || paths[1] != "/api/sessions/s1/tooltip?height=500&width=1000&x=912.5" {
		t.Errorf("requests = %v", paths)
	}
}
