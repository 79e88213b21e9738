package domain

import (
	"encoding/json"
	"testing"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod(" 5y ")
	if err != nil {
		t.Fatalf("ParsePeriod: %v", err)
	}
	if p != Period5Y {
		t.Errorf("ParsePeriod = %q, want %q", p, Period5Y)
	}

	if _, err := ParsePeriod("6Y"); err == nil {
		t.Error("expected error for unsupported period 6Y")
	}
	if !Period20Y.Valid() {
		t.Error("Period20Y should be valid")
	}
	if DefaultPeriod != Period1Y {
		t.Errorf("DefaultPeriod = %q, want %q", DefaultPeriod, Period1Y)
	}
}

func TestParseCompany(t *testing.T) {
	c, err := ParseCompany("msft: Microsoft Corp.")
	if err != nil {
		t.Fatalf("ParseCompany: %v", err)
	}
	if c.Ticker != "MSFT" || c.Name != "Microsoft Corp." {
		t.Errorf("ParseCompany = %+v, want MSFT / Microsoft Corp.", c)
	}

	c, err = ParseCompany("GOOG")
	if err != nil {
		t.Fatalf("ParseCompany: %v", err)
	}
	if c.Ticker != "GOOG" || c.Name != "" {
		t.Errorf("ParseCompany = %+v, want GOOG with empty name", c)
	}

	if _, err := ParseCompany(" : Nameless"); err == nil {
		t.Error("expected error for empty ticker")
	}
}

func TestChartRowJSONKeepsNulls(t *testing.T) {
	row := ChartRow{
		Name:   "2020",
		Keys:   []string{"revenue", "netIncome"},
		Values: map[string]*float64{"revenue": Float(274.5)},
	}
	b, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"name":"2020","revenue":274.5,"netIncome":null}`
	if string(b) != want {
		t.Errorf("Marshal = %s, want %s", b, want)
	}

	var back ChartRow
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Name != "2020" {
		t.Errorf("Name = %q, want %q", back.Name, "2020")
	}
	if _, ok := back.Values["netIncome"]; !ok {
		t.Error("netIncome key missing after decode")
	}
	if _, ok := back.Value("netIncome"); ok {
		t.Error("netIncome should be undefined")
	}
	if v, ok := back.Value("revenue"); !ok || v != 274.5 {
		t.Errorf("revenue = %v/%v, want 274.5/true", v, ok)
	}
}

func TestPeerTickers(t *testing.T) {
	f := FilterState{Peers: []Company{{Ticker: "AAPL"}, {Ticker: "MSFT"}}}
	got := f.PeerTickers()
	if len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Errorf("PeerTickers = %v, want [AAPL MSFT]", got)
	}
}
