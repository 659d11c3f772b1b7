// Package market defines the read-only market data the dashboard renders and an
// in-process simulator that produces it.
package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AverageName labels the market-wide average in charts and the ticker.
const AverageName = "国内平均"

// Company is a listed entity and its current price in yen.
type Company struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Point is one timestamped sample of a price series.
type Point struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// NewsItem is one headline shown in the ticker.
type NewsItem struct {
	Genre   string `json:"genre"`
	Content string `json:"content"`
}

// Source is the data the dashboard reads. Implementations must be safe for
// concurrent use; callers never mutate returned slices' backing state.
type Source interface {
	Companies() []Company
	PriceHistory(name string, n int) []Point
	AverageHistory(n int) []Point
	News() []NewsItem
}

// ParseCompanies parses "name=price" pairs.
func ParseCompanies(specs []string) ([]Company, error) {
	companies := make([]Company, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		name, priceStr, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("company %q: want name=price", s)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(priceStr), 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("company %q: invalid price", s)
		}
		if seen[name] {
			return nil, fmt.Errorf("company %q listed twice", name)
		}
		seen[name] = true
		companies = append(companies, Company{Name: name, Price: price})
	}
	return companies, nil
}

// DefaultCompanies seeds the simulator when no list is configured.
const DefaultCompanies = "マグ電機=1200,マグ銀行=850,マグ商事=2300,マグ製薬=1800,マグ通信=950,マグ建設=640,マグ食品=1500"

// ParseCompanyList parses a comma-separated list of "name=price" pairs.
func ParseCompanyList(list string) ([]Company, error) {
	var specs []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			specs = append(specs, s)
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no companies configured")
	}
	return ParseCompanies(specs)
}

// Pairs splits company names into consecutive groups of two; the last group
// may hold a single name.
func Pairs(companies []Company) [][]string {
	var pairs [][]string
	for i := 0; i < len(companies); i += 2 {
		end := min(i+2, len(companies))
		pair := make([]string, 0, 2)
		for _, c := range companies[i:end] {
			pair = append(pair, c.Name)
		}
		pairs = append(pairs, pair)
	}
	return pairs
}

func lastN(points []Point, n int) []Point {
	if n > 0 && len(points) > n {
		points = points[len(points)-n:]
	}
	out := make([]Point, len(points))
	copy(out, points)
	return out
}
