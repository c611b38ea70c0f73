// Package slugs generates URL-safe race room names like "dazzling-cactus-0352".
package slugs

import (
	"fmt"
	"math/rand"
	"strings"
)

var adjectives = []string{
	"adequate", "agreeable", "amazing", "artful", "bonus", "brainy",
	"brave", "calm", "casual", "chaotic", "clever", "comic", "crafty",
	"curious", "dapper", "daring", "dazzling", "disco", "dynamic", "eager",
	"elegant", "epic", "famous", "fancy", "fearless", "frantic", "fortunate",
	"gentle", "gnarly", "golden", "graceful", "grumpy", "helpful", "hungry",
	"hyper", "innocent", "intrepid", "jolly", "kind", "lawful", "lazy",
	"legendary", "lucky", "magic", "mega", "mysterious", "neutral", "nifty",
	"obedient", "odd", "outrageous", "overpowered", "perfect", "powerful",
	"priceless", "proud", "puzzled", "quick", "reliable", "salty", "saucy",
	"scrappy", "scruffy", "secret", "shiny", "silly", "sleepy", "smart",
	"snug", "speedy", "splendid", "sublime", "sunken", "superb", "swag",
	"tactical", "travelled", "trusty", "vanilla", "virtual", "wild", "witty",
}

var nouns = []string{
	"anchor", "banjo", "beacon", "biscuit", "bridge", "cactus", "canoe",
	"comet", "compass", "doodle", "dragon", "falcon", "fiddle", "galaxy",
	"glacier", "hammer", "harbor", "kettle", "lantern", "magnet", "meadow",
	"meteor", "mirror", "nebula", "noodle", "orchid", "otter", "parrot",
	"pepper", "pretzel", "pyramid", "raccoon", "rocket", "saddle", "sparrow",
	"sprout", "squirrel", "summit", "teapot", "temple", "thunder", "tiger",
	"trumpet", "tunnel", "turtle", "violin", "volcano", "waffle", "walrus",
	"wizard",
}

// Generator produces random race slugs from a word pool.
type Generator struct {
	words []string
	rng   *rand.Rand
}

// NewGenerator returns a generator drawing nouns from the given pool. A nil
// or empty pool falls back to the default nouns.
func NewGenerator(words []string) *Generator {
	cleaned := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			cleaned = append(cleaned, w)
		}
	}
	if len(cleaned) == 0 {
		cleaned = nouns
	}
	return &Generator{words: cleaned}
}

// WithRand sets a deterministic random source, for tests.
func (g *Generator) WithRand(rng *rand.Rand) *Generator {
	g.rng = rng
	return g
}

func (g *Generator) intn(n int) int {
	if g.rng != nil {
		return g.rng.Intn(n)
	}
	return rand.Intn(n)
}

// Generate returns one slug. Uniqueness is the caller's concern.
func (g *Generator) Generate() string {
	return fmt.Sprintf(
		"%s-%s-%04d",
		adjectives[g.intn(len(adjectives))],
		g.words[g.intn(len(g.words))],
		g.intn(10000),
	)
}

// PoolSize returns the number of distinct noun words available.
func (g *Generator) PoolSize() int {
	distinct := make(map[string]struct{}, len(g.words))
	for _, w := range g.words {
		distinct[w] = struct{}{}
	}
	return len(distinct)
}

// SplitWords parses a newline-separated custom word list.
func SplitWords(text string) []string {
	return strings.Split(text, "\n")
}
