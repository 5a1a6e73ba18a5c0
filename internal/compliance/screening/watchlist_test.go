package screening

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestWatchlist(names []string) *Watchlist {
	logger := zap.NewNop()
	return NewWatchlist(names, DefaultMatchThreshold, NewFuzzyMatcher(logger, DefaultFuzzyMatchConfig()), logger)
}

func TestTokenSortRatio_IgnoresTokenOrder(t *testing.T) {
	matcher := NewFuzzyMatcher(zap.NewNop(), DefaultFuzzyMatchConfig())

	assert.Equal(t, 100.0, matcher.TokenSortRatio("Doe John", "John Doe"))
	assert.Equal(t, 100.0, matcher.TokenSortRatio("JOHN  doe", "john, Doe"))
	assert.Equal(t, 100.0, matcher.TokenSortRatio("Mr John Doe Jr", "John Doe"))
	assert.Equal(t, 100.0, matcher.TokenSortRatio("José Müller", "Jose Muller"))
}

func TestTokenSortRatio_Bounds(t *testing.T) {
	matcher := NewFuzzyMatcher(zap.NewNop(), DefaultFuzzyMatchConfig())

	assert.Equal(t, 0.0, matcher.TokenSortRatio("", "Ivan Drago"))
	assert.Equal(t, 0.0, matcher.TokenSortRatio("!!!", "Ivan Drago"))

	score := matcher.TokenSortRatio("abc", "xyz")
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestWatchlist_MisspelledSanctionedName(t *testing.T) {
	w := newTestWatchlist(DefaultSanctionsList)

	result := w.Screen(context.Background(), "Ivan Dragg")

	assert.True(t, result.Hit)
	assert.Equal(t, "Ivan Drago", result.MatchedName)
	assert.GreaterOrEqual(t, result.Score, 80.0)
	assert.InDelta(t, 90.0, result.Score, 0.001)
}

func TestWatchlist_ReorderedName(t *testing.T) {
	w := newTestWatchlist(DefaultSanctionsList)

	result := w.Screen(context.Background(), "Escobar Pablo")

	assert.True(t, result.Hit)
	assert.Equal(t, "Pablo Escobar", result.MatchedName)
	assert.Equal(t, 100.0, result.Score)
}

func TestWatchlist_PartialNamesStillHit(t *testing.T) {
	w := newTestWatchlist(DefaultSanctionsList)

	tests := []struct {
		query   string
		matched string
		score   float64
	}{
		{"Osama Laden", "Osama Bin Laden", 84.615},
		{"Gennady Golovkina Ltd", "Gennady Golovkin", 86.486},
		{"Ivan Dragg", "Ivan Drago", 90.0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			result := w.Screen(context.Background(), tt.query)

			require.True(t, result.Hit)
			assert.Equal(t, tt.matched, result.MatchedName)
			assert.InDelta(t, tt.score, result.Score, 0.01)
		})
	}
}

func TestTokenSortRatio_LevenshteinScorerIsStricter(t *testing.T) {
	config := DefaultFuzzyMatchConfig()
	config.Scorer = ScorerLevenshtein
	strict := NewFuzzyMatcher(zap.NewNop(), config)
	indel := NewFuzzyMatcher(zap.NewNop(), DefaultFuzzyMatchConfig())

	// "laden osama" vs "bin laden osama": 4 deletions over 15 runes
	assert.InDelta(t, 73.333, strict.TokenSortRatio("Osama Laden", "Osama Bin Laden"), 0.01)
	assert.InDelta(t, 84.615, indel.TokenSortRatio("Osama Laden", "Osama Bin Laden"), 0.01)
	assert.Equal(t, 100.0, strict.TokenSortRatio("Doe John", "John Doe"))
}

func TestWatchlist_SetThreshold(t *testing.T) {
	w := newTestWatchlist(DefaultSanctionsList)
	require.True(t, w.Screen(context.Background(), "Osama Laden").Hit)

	w.SetThreshold(90)
	assert.Equal(t, 90.0, w.Threshold())
	assert.False(t, w.Screen(context.Background(), "Osama Laden").Hit)

	w.SetThreshold(0)
	assert.Equal(t, 90.0, w.Threshold())
}

func TestWatchlist_UnrelatedName(t *testing.T) {
	w := newTestWatchlist(DefaultSanctionsList)

	result := w.Screen(context.Background(), "Completely Unrelated Name")

	assert.False(t, result.Hit)
	assert.Empty(t, result.MatchedName)
	assert.Less(t, result.Score, 80.0)
}

func TestWatchlist_EmptyName(t *testing.T) {
	w := newTestWatchlist(DefaultSanctionsList)

	result := w.Screen(context.Background(), "   ")

	assert.False(t, result.Hit)
	assert.Zero(t, result.Score)
}

func TestWatchlist_TieKeepsFirstEntry(t *testing.T) {
	// Both candidates are one edit away from the query.
	w := newTestWatchlist([]string{"Anna Smitt", "Anna Smith", "Anna Smyth"})

	result := w.Screen(context.Background(), "Anna Smitx")

	require.True(t, result.Hit)
	assert.Equal(t, "Anna Smitt", result.MatchedName)
}

func TestWatchlist_Replace(t *testing.T) {
	w := newTestWatchlist([]string{"Ivan Drago"})
	require.True(t, w.Screen(context.Background(), "Ivan Drago").Hit)

	w.Replace([]string{"Someone Else"})

	assert.False(t, w.Screen(context.Background(), "Ivan Drago").Hit)
	assert.Equal(t, []string{"Someone Else"}, w.Names())
}

func TestLoadWatchlistFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: 85\nnames:\n  - Ivan Drago\n  - Pablo Escobar\n"), 0o600))

	file, err := LoadWatchlistFile(path)
	require.NoError(t, err)
	assert.Equal(t, 85.0, file.Threshold)
	assert.Equal(t, []string{"Ivan Drago", "Pablo Escobar"}, file.Names)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("names: []\n"), 0o600))
	_, err = LoadWatchlistFile(empty)
	assert.Error(t, err)

	_, err = LoadWatchlistFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestWatchFile_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watchlist.yaml")
	require.NoError(t, os.WriteFile(path, []byte("names:\n  - Ivan Drago\n"), 0o600))

	w := newTestWatchlist([]string{"Ivan Drago"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, WatchFile(ctx, path, w, zap.NewNop()))

	require.NoError(t, os.WriteFile(path, []byte("names:\n  - Pablo Escobar\n  - Ivan Drago\n"), 0o600))
	assert.Eventually(t, func() bool {
		return len(w.Names()) == 2
	}, 5*time.Second, 50*time.Millisecond)

	// A broken file keeps the last good list.
	require.NoError(t, os.WriteFile(path, []byte("names: [\n"), 0o600))
	time.Sleep(2 * reloadDebounce)
	assert.Equal(t, []string{"Pablo Escobar", "Ivan Drago"}, w.Names())

	// The file's threshold replaces the current one on reload.
	require.NoError(t, os.WriteFile(path, []byte("threshold: 95\nnames:\n  - Ivan Drago\n"), 0o600))
	assert.Eventually(t, func() bool {
		return w.Threshold() == 95.0 && len(w.Names()) == 1
	}, 5*time.Second, 50*time.Millisecond)
}
