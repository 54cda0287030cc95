package services

import (
	"fmt"
	"math/bits"
)

// SeedPair is one round-1 pairing: the better seed vs the worse seed.
type SeedPair struct {
	High int `json:"high"`
	Low  int `json:"low"`
}

// Canonical bracket tables for the supported field sizes. Order matters: the
// pair at index i becomes the matchup at index i, so seed 1's half of the
// bracket stays as easy as the table intends.
var seedTables = map[int][]SeedPair{
	2: {{1, 2}},
	4: {{1, 4}, {2, 3}},
	8: {{1, 8}, {4, 5}, {3, 6}, {2, 7}},
	16: {
		{1, 16}, {8, 9}, {5, 12}, {4, 13},
		{3, 14}, {6, 11}, {7, 10}, {2, 15},
	},
}

// GenerateSeedPairs lays out round 1 for n competitors. Sizes with a
// canonical table use it; any other even size falls back to pairing seed i+1
// with seed n-i. Odd or sub-2 fields are an input error.
func GenerateSeedPairs(n int) ([]SeedPair, error) {
	if n < 2 {
		return nil, invalidInput("need at least 2 competitors, got %d", n)
	}
	if n%2 != 0 {
		return nil, invalidInput("competitor count must be even, got %d", n)
	}

	if table, ok := seedTables[n]; ok {
		pairs := make([]SeedPair, len(table))
		copy(pairs, table)
		return pairs, nil
	}

	pairs := make([]SeedPair, 0, n/2)
	for i := 0; i < n/2; i++ {
		pairs = append(pairs, SeedPair{High: i + 1, Low: n - i})
	}
	return pairs, nil
}

// RoundCount returns ceil(log2(n)), the number of single-elimination rounds
// needed for n competitors.
func RoundCount(n int) (int, error) {
	if n < 2 {
		return 0, invalidInput("need at least 2 competitors, got %d", n)
	}
	return bits.Len(uint(n - 1)), nil
}

// RoundName maps a round to its display name by distance from the final:
// Championship, then Finals, Semifinals, Quarterfinals, else "Round N".
func RoundName(roundNumber, totalRounds int) string {
	switch totalRounds - roundNumber {
	case 0:
		return "Championship"
	case 1:
		return "Finals"
	case 2:
		return "Semifinals"
	case 3:
		return "Quarterfinals"
	default:
		return fmt.Sprintf("Round %d", roundNumber)
	}
}
