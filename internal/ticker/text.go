package ticker

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/Rei0925/MFWeb/internal/market"
)

// Segment is a run of ticker text drawn in one color.
type Segment struct {
	Text  string     `json:"text"`
	Color color.RGBA `json:"-"`
}

// newsSeparator sits between concatenated headlines.
const newsSeparator = " \u00a0\u00a0\u00a0\u00a0\u00a0 "

var (
	upColor   = market.Red
	downColor = market.Green
	flatColor = market.Gray
)

// prices is a snapshot of whole-yen prices keyed by company name.
type prices struct {
	average   int
	companies map[string]int
}

func snapshotPrices(src market.Source, fallbackAvg int) prices {
	p := prices{average: fallbackAvg, companies: make(map[string]int)}
	if avg := src.AverageHistory(1); len(avg) > 0 {
		p.average = int(avg[0].Value)
	}
	for _, c := range src.Companies() {
		p.companies[c.Name] = int(c.Price)
	}
	return p
}

// quoteSegments renders the aggregate and every company with its change
// against baseline. Companies missing from the baseline show no change.
func quoteSegments(companies []market.Company, current, baseline prices) []Segment {
	diff := current.average - baseline.average
	segs := []Segment{
		{Text: fmt.Sprintf("%s %d 円 ", market.AverageName, current.average), Color: market.White},
		{Text: formatDelta(diff) + " ", Color: deltaColor(diff)},
		{Text: "｜", Color: market.White},
	}

	for i, c := range companies {
		price := int(c.Price)
		old, ok := baseline.companies[c.Name]
		if !ok {
			old = price
		}
		d := price - old
		segs = append(segs,
			Segment{Text: fmt.Sprintf(" %s %d円 ", c.Name, price), Color: market.White},
			Segment{Text: formatDelta(d), Color: deltaColor(d)},
		)
		if i < len(companies)-1 {
			segs = append(segs, Segment{Text: "｜", Color: market.White})
		}
	}
	return segs
}

func newsSegments(items []market.NewsItem) []Segment {
	parts := make([]string, len(items))
	for i, n := range items {
		parts[i] = fmt.Sprintf("   【%s】 %s", n.Genre, n.Content)
	}
	return []Segment{{Text: strings.Join(parts, newsSeparator), Color: market.White}}
}

func formatDelta(d int) string {
	switch {
	case d > 0:
		return fmt.Sprintf("+%d", d)
	case d < 0:
		return fmt.Sprintf("-%d", -d)
	default:
		return "0"
	}
}

func deltaColor(d int) color.RGBA {
	switch {
	case d > 0:
		return upColor
	case d < 0:
		return downColor
	default:
		return flatColor
	}
}

// TextWidth is the drawn width of segs: every segment plus one space between
// neighbours.
func TextWidth(segs []Segment, measure func(string) int) int {
	if len(segs) == 0 {
		return 0
	}
	w := (len(segs) - 1) * measure(" ")
	for _, s := range segs {
		w += measure(s.Text)
	}
	return w
}
