package ids

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	id := uuid.New()

	external := Encode(id)
	assert.NotEmpty(t, external)
	assert.NotContains(t, external, id.String())

	decoded, err := Decode(external)
	assert.NoError(t, err)
	assert.Equal(t, id, decoded)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("not-a-valid-id!")
	assert.Error(t, err)

	// Valid base58 but wrong length.
	_, err = Decode("abc")
	assert.Error(t, err)
}
