package market

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// SimulatorConfig tunes the random walk.
type SimulatorConfig struct {
	Companies  []Company
	History    int     // points kept per series
	Volatility float64 // max relative move per step
	NewsChance float64 // probability of a headline per step
	MaxNews    int     // pending headlines kept
	Seed       uint64
}

// Simulator is a random-walk Source.
type Simulator struct {
	mu        sync.RWMutex
	cfg       SimulatorConfig
	rng       *rand.Rand
	companies []Company
	history   map[string][]Point
	average   []Point
	news      []NewsItem
	now       func() time.Time
}

// NewSimulator seeds every series with the configured opening prices.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.History <= 0 {
		cfg.History = 500
	}
	if cfg.Volatility <= 0 {
		cfg.Volatility = 0.02
	}
	if cfg.MaxNews <= 0 {
		cfg.MaxNews = 8
	}
	s := &Simulator{
		cfg:       cfg,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		companies: append([]Company(nil), cfg.Companies...),
		history:   make(map[string][]Point, len(cfg.Companies)),
		now:       time.Now,
	}
	s.record(s.now())
	return s
}

// Step advances every price by one random move and may publish a headline.
func (s *Simulator) Step() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.companies {
		c := &s.companies[i]
		move := (s.rng.Float64()*2 - 1) * s.cfg.Volatility
		c.Price = math.Max(1, c.Price*(1+move))
	}
	s.record(s.now())

	if len(s.companies) > 0 && s.rng.Float64() < s.cfg.NewsChance {
		s.addNews(s.headline())
	}
}

// AddNews queues a headline, dropping the oldest past MaxNews.
func (s *Simulator) AddNews(item NewsItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addNews(item)
}

func (s *Simulator) addNews(item NewsItem) {
	s.news = append(s.news, item)
	if over := len(s.news) - s.cfg.MaxNews; over > 0 {
		s.news = append([]NewsItem(nil), s.news[over:]...)
	}
}

func (s *Simulator) record(at time.Time) {
	if len(s.companies) == 0 {
		return
	}
	var sum float64
	for _, c := range s.companies {
		s.history[c.Name] = trim(append(s.history[c.Name], Point{Time: at, Value: c.Price}), s.cfg.History)
		sum += c.Price
	}
	s.average = trim(append(s.average, Point{Time: at, Value: sum / float64(len(s.companies))}), s.cfg.History)
}

var genres = []string{"経済", "企業", "市場", "政策"}

func (s *Simulator) headline() NewsItem {
	c := s.companies[s.rng.IntN(len(s.companies))]
	genre := genres[s.rng.IntN(len(genres))]
	verb := "上昇"
	if s.rng.IntN(2) == 0 {
		verb = "下落"
	}
	return NewsItem{Genre: genre, Content: fmt.Sprintf("%sの株価が%sしています（%d円）", c.Name, verb, int(c.Price))}
}

func trim(points []Point, n int) []Point {
	if len(points) > n {
		return append(points[:0], points[len(points)-n:]...)
	}
	return points
}

// Companies implements Source.
func (s *Simulator) Companies() []Company {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Company(nil), s.companies...)
}

// PriceHistory implements Source.
func (s *Simulator) PriceHistory(name string, n int) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastN(s.history[name], n)
}

// AverageHistory implements Source.
func (s *Simulator) AverageHistory(n int) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastN(s.average, n)
}

// News implements Source.
func (s *Simulator) News() []NewsItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]NewsItem(nil), s.news...)
}
