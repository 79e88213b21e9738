package normalize

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"findash/internal/domain"
)

// LeadingYear parses the integer before the first '-' of a period label:
// "2021" -> 2021, "2019-2021" -> 2019, "2020-24" -> 2020.
func LeadingYear(label string) (int, bool) {
	head, _, _ := strings.Cut(strings.TrimSpace(label), "-")
	head = strings.TrimSpace(head)
	if head == "" {
		return 0, false
	}
	for _, r := range head {
		if !unicode.IsDigit(r) {
			return 0, false
		}
	}
	y, err := strconv.Atoi(head)
	if err != nil {
		return 0, false
	}
	return y, true
}

// LabelLess orders labels ascending by leading year. Equal years fall back
// to string order; labels without a year sort last.
func LabelLess(a, b string) bool {
	ya, oka := LeadingYear(a)
	yb, okb := LeadingYear(b)
	switch {
	case oka && okb && ya != yb:
		return ya < yb
	case oka != okb:
		return oka
	default:
		return a < b
	}
}

// SortRows sorts rows in place by label.
func SortRows(rows []domain.ChartRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return LabelLess(rows[i].Name, rows[j].Name)
	})
}

// TickLabel is the x-axis label for a period: the leading year when one
// parses, otherwise the label itself.
func TickLabel(label string) string {
	if y, ok := LeadingYear(label); ok {
		return strconv.Itoa(y)
	}
	return label
}
