package slugs

import (
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var slugPattern = regexp.MustCompile(`^[a-z]+-[a-z]+-\d{4}$`)

func TestGenerateShape(t *testing.T) {
	g := NewGenerator(nil).WithRand(rand.New(rand.NewSource(1)))

	for i := 0; i < 50; i++ {
		assert.Regexp(t, slugPattern, g.Generate())
	}
}

func TestCustomWordPool(t *testing.T) {
	g := NewGenerator([]string{"Mushroom", " star ", "", "mushroom"})

	assert.Equal(t, 2, g.PoolSize())
	for i := 0; i < 20; i++ {
		slug := g.Generate()
		assert.Regexp(t, `-(mushroom|star)-`, slug)
	}
}

func TestEmptyPoolFallsBack(t *testing.T) {
	g := NewGenerator([]string{" ", ""})
	assert.Greater(t, g.PoolSize(), 1)
	assert.Regexp(t, slugPattern, g.Generate())
}

func TestSplitWords(t *testing.T) {
	words := SplitWords("alpha\nbeta\ngamma")
	assert.Len(t, words, 3)
}
