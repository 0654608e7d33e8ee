package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type point struct {
	X, Y int
}

func TestGobRoundTrip(t *testing.T) {
	var c Gob[point]
	var buf bytes.Buffer
	require.NoError(t, c.Encode(point{X: 3, Y: 4}, &buf))

	got, err := c.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, point{X: 3, Y: 4}, got)
}

func TestJSONRoundTrip(t *testing.T) {
	var c JSON[point]
	var buf bytes.Buffer
	require.NoError(t, c.Encode(point{X: -1, Y: 9}, &buf))

	got, err := c.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, point{X: -1, Y: 9}, got)
}

func TestGobRoundTripPrimitive(t *testing.T) {
	var c Gob[string]
	var buf bytes.Buffer
	require.NoError(t, c.Encode("hello", &buf))

	got, err := c.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}
