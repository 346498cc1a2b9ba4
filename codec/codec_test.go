package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ID     string  `json:"id"`
	Offset []int64 `json:"offset"`
	Size   []int64 `json:"size"`
}

func TestCodecsInterchangeable(t *testing.T) {
	in := record{ID: "f1", Offset: []int64{0, 10}, Size: []int64{10, 100}}

	for _, name := range []string{"json", "go-json"} {
		t.Run(name, func(t *testing.T) {
			c, ok := ByName(name)
			require.True(t, ok)
			assert.Equal(t, name, c.Name())

			b, err := c.Marshal(in)
			require.NoError(t, err)

			// Either codec must decode the other's output.
			for _, other := range []Codec{JSON{}, GoJSON{}} {
				var out record
				require.NoError(t, other.Unmarshal(b, &out))
				assert.Equal(t, in, out)
			}
		})
	}
}

func TestByNameUnknown(t *testing.T) {
	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestMustMarshal(t *testing.T) {
	assert.JSONEq(t, `{"id":"x","offset":null,"size":null}`, string(MustMarshal(nil, record{ID: "x"})))
	assert.Panics(t, func() { MustMarshal(JSON{}, make(chan int)) })
}
