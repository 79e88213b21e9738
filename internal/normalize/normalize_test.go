package normalize

import (
	"encoding/json"
	"testing"

	"findash/internal/domain"
)

func pts(kv ...any) []domain.Point {
	var out []domain.Point
	for i := 0; i+1 < len(kv); i += 2 {
		p := domain.Point{Label: kv[i].(string)}
		if v, ok := kv[i+1].(float64); ok {
			p.Value = domain.Float(v)
		}
		out = append(out, p)
	}
	return out
}

func permutations(xs []string) [][]string {
	if len(xs) <= 1 {
		return [][]string{append([]string(nil), xs...)}
	}
	var out [][]string
	for i := range xs {
		rest := append(append([]string(nil), xs[:i]...), xs[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{xs[i]}, p...))
		}
	}
	return out
}

func TestMergeIsOrderIndependent(t *testing.T) {
	series := map[string][]domain.Point{
		"revenue":      pts("2020", 274.5, "2021", 365.8, "2022", 394.3),
		"netIncome":    pts("2021", 94.7, "2022", 99.8, "2023", 97.0),
		"freeCashFlow": pts("2019-2020", 58.9, "2022", 111.4),
	}
	keys := []string{"revenue", "netIncome", "freeCashFlow"}

	var want string
	for _, order := range permutations(keys) {
		table := NewTable(keys...)
		for _, k := range order {
			table.Merge(k, series[k])
		}
		b, err := json.Marshal(table.Rows())
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if want == "" {
			want = string(b)
			continue
		}
		if string(b) != want {
			t.Errorf("merge order %v produced %s, want %s", order, b, want)
		}
	}

	rows := MergeSeries(keys, series)
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want 5 distinct labels", len(rows))
	}
	for _, r := range rows {
		for _, k := range keys {
			if _, ok := r.Values[k]; !ok {
				t.Errorf("row %s missing key %s", r.Name, k)
			}
		}
	}
}

func TestMergeOverwritesOnlyOwnKey(t *testing.T) {
	table := NewTable("revenue", "netIncome")
	table.Merge("revenue", pts("2021", 1.0))
	table.Merge("netIncome", pts("2021", 2.0))
	table.Merge("revenue", pts("2021", 3.0))

	rows := table.Rows()
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if v, _ := rows[0].Value("revenue"); v != 3.0 {
		t.Errorf("revenue = %v, want 3", v)
	}
	if v, _ := rows[0].Value("netIncome"); v != 2.0 {
		t.Errorf("netIncome = %v, want 2", v)
	}
}

func TestRowsSortedByLeadingYear(t *testing.T) {
	rows := MergeSeries([]string{"m"}, map[string][]domain.Point{
		"m": pts("2022", 1.0, "2018-2020", 2.0, "2020", 3.0, "2019-2021", 4.0, "TTM", 5.0, "2021-23", 6.0),
	})
	want := []string{"2018-2020", "2019-2021", "2020", "2021-23", "2022", "TTM"}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i, r := range rows {
		if r.Name != want[i] {
			t.Errorf("rows[%d] = %q, want %q", i, r.Name, want[i])
		}
	}
	prev := -1
	for _, r := range rows {
		y, ok := LeadingYear(r.Name)
		if !ok {
			continue
		}
		if y <= prev {
			t.Errorf("leading year %d not ascending after %d", y, prev)
		}
		prev = y
	}
}

func TestSingleCompanyScenario(t *testing.T) {
	rows := MergeSeries([]string{"revenue", "netIncome"}, map[string][]domain.Point{
		"revenue":   pts("2020", 274.5, "2021", 365.8, "2022", 394.3, "2023", 383.3),
		"netIncome": pts("2021", 94.7, "2022", 99.8, "2023", 97.0),
	})
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want 4", len(rows))
	}
	if rows[0].Name != "2020" {
		t.Fatalf("rows[0] = %q, want 2020", rows[0].Name)
	}
	if _, ok := rows[0].Value("netIncome"); ok {
		t.Error("2020 netIncome should be null")
	}
	b, _ := json.Marshal(rows[0])
	if string(b) != `{"name":"2020","revenue":274.5,"netIncome":null}` {
		t.Errorf("2020 row = %s", b)
	}
}

func TestTickLabel(t *testing.T) {
	if got := TickLabel("2019-2021"); got != "2019" {
		t.Errorf("TickLabel = %q, want 2019", got)
	}
	if got := TickLabel("TTM"); got != "TTM" {
		t.Errorf("TickLabel = %q, want TTM", got)
	}
}

func TestUnits(t *testing.T) {
	reg := NewRegistry(map[string]Unit{"EarningsPerShare": {Scale: 1, Suffix: "$"}})

	if u := reg.Lookup("ReturnOnEquity"); u != Unscaled {
		t.Errorf("ReturnOnEquity unit = %+v, want unscaled", u)
	}
	if u := reg.Lookup("TotalRevenue"); u != Billions {
		t.Errorf("TotalRevenue unit = %+v, want billions", u)
	}
	if u := reg.Lookup("DebtToEquity"); u != Unscaled {
		t.Errorf("DebtToEquity unit = %+v, want unscaled", u)
	}
	if u := reg.Lookup("EarningsPerShare"); u.Suffix != "$" || u.Scale != 1 {
		t.Errorf("EarningsPerShare unit = %+v, want registry entry", u)
	}
	for _, m := range []string{"RevenueGrowth", "NetIncomeGrowthRate"} {
		if u := reg.Lookup(m); u != Unscaled {
			t.Errorf("%s unit = %+v, want unscaled growth rate", m, u)
		}
	}
	if u := reg.Lookup("EmployeeCount"); u != Unscaled {
		t.Errorf("EmployeeCount unit = %+v, want unscaled", u)
	}

	var nilReg *Registry
	if u := nilReg.Lookup("NetIncome"); u != Billions {
		t.Errorf("nil registry NetIncome = %+v, want billions", u)
	}
}

func TestBoxplot(t *testing.T) {
	series := Boxplot(
		[]string{"TotalRevenue", "ReturnOnEquity", "GrossMargin"},
		map[string][]float64{
			"TotalRevenue":   {383e9, 211e9},
			"ReturnOnEquity": {1.56, 0.38},
		},
		map[string][]string{
			"TotalRevenue":   {"AAPL", "MSFT"},
			"ReturnOnEquity": {"AAPL", "MSFT"},
		},
		NewRegistry(nil),
	)

	if len(series) != 3 {
		t.Fatalf("got %d series, want 3", len(series))
	}
	rev := series[0]
	if rev.Unit != "B" || rev.Values[0] != 383 || rev.Values[1] != 211 {
		t.Errorf("TotalRevenue = %+v, want [383 211] B", rev)
	}
	roe := series[1]
	if roe.Unit != "" || roe.Values[0] != 1.56 {
		t.Errorf("ReturnOnEquity = %+v, want unscaled", roe)
	}
	if len(series[2].Values) != 0 || series[2].Metric != "GrossMargin" {
		t.Errorf("GrossMargin = %+v, want empty series", series[2])
	}
}
