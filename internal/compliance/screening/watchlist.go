package screening

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultMatchThreshold is the minimum token-sort score that counts as a hit
const DefaultMatchThreshold = 80.0

// DefaultSanctionsList is the built-in list used when no watchlist file is configured
var DefaultSanctionsList = []string{
	"Ivan Drago",
	"Gennady Golovkin",
	"North Korea State Bank",
	"Syrian General Intelligence",
	"Pablo Escobar",
	"Vladimir Makarov",
	"Osama Bin Laden",
}

// ScreeningResult is the outcome of screening one name
type ScreeningResult struct {
	Hit         bool    `json:"hit"`
	MatchedName string  `json:"matched_name,omitempty"`
	Score       float64 `json:"score"`
}

type watchlistEntry struct {
	name string
	key  string
}

// Watchlist screens names against an in-memory sanctions list
type Watchlist struct {
	logger  *zap.Logger
	matcher *FuzzyMatcher

	mu        sync.RWMutex
	entries   []watchlistEntry
	threshold float64
}

// NewWatchlist creates a watchlist over names. A non-positive threshold falls back to DefaultMatchThreshold.
func NewWatchlist(names []string, threshold float64, matcher *FuzzyMatcher, logger *zap.Logger) *Watchlist {
	if logger == nil {
		logger = zap.NewNop()
	}
	if matcher == nil {
		matcher = NewFuzzyMatcher(logger, DefaultFuzzyMatchConfig())
	}
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}

	w := &Watchlist{
		logger:    logger,
		matcher:   matcher,
		threshold: threshold,
	}
	w.Replace(names)
	return w
}

// Replace swaps the list contents atomically
func (w *Watchlist) Replace(names []string) {
	entries := make([]watchlistEntry, 0, len(names))
	for _, name := range names {
		key := w.matcher.SortedKey(name)
		if key == "" {
			continue
		}
		entries = append(entries, watchlistEntry{name: name, key: key})
	}

	w.mu.Lock()
	w.entries = entries
	threshold := w.threshold
	w.mu.Unlock()

	w.logger.Info("Watchlist loaded", zap.Int("entries", len(entries)), zap.Float64("threshold", threshold))
}

// SetThreshold changes the hit threshold. Non-positive values are ignored.
func (w *Watchlist) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	w.mu.Lock()
	w.threshold = threshold
	w.mu.Unlock()
}

// Names returns the names currently on the list, in list order
func (w *Watchlist) Names() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	names := make([]string, len(w.entries))
	for i, e := range w.entries {
		names[i] = e.name
	}
	return names
}

// Threshold returns the hit threshold
func (w *Watchlist) Threshold() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.threshold
}

// Screen scans the full list and returns the best-scoring candidate. Ties keep
// the earliest entry in list order.
func (w *Watchlist) Screen(ctx context.Context, name string) ScreeningResult {
	query := w.matcher.SortedKey(name)
	if query == "" {
		return ScreeningResult{}
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	var (
		bestName  string
		bestScore = -1.0
	)
	for _, e := range w.entries {
		score := w.matcher.score(query, e.key)
		if score > bestScore {
			bestScore = score
			bestName = e.name
		}
	}

	if bestScore >= w.threshold {
		w.logger.Info("Sanctions screening hit",
			zap.String("name", name),
			zap.String("matched_name", bestName),
			zap.Float64("score", bestScore))
		return ScreeningResult{Hit: true, MatchedName: bestName, Score: bestScore}
	}

	if bestScore < 0 {
		bestScore = 0
	}
	return ScreeningResult{Score: bestScore}
}

// WatchlistFile is the YAML layout of an external sanctions list
type WatchlistFile struct {
	Threshold float64  `yaml:"threshold"`
	Names     []string `yaml:"names"`
}

// LoadWatchlistFile reads a sanctions list from a YAML file
func LoadWatchlistFile(path string) (*WatchlistFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watchlist file: %w", err)
	}

	var file WatchlistFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse watchlist file %s: %w", path, err)
	}
	if len(file.Names) == 0 {
		return nil, fmt.Errorf("watchlist file %s contains no names", path)
	}
	return &file, nil
}
