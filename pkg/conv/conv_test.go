package conv

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain integer", raw: "652", want: "652"},
		{name: "surrounding spaces", raw: "  31 ", want: "31"},
		{name: "float with zero fraction", raw: "652.0", want: "652"},
		{name: "exponent form", raw: "6.52e2", want: "652"},
		{name: "real fraction kept", raw: "1.5", want: "1.5"},
		{name: "non numeric kept", raw: "tt0114709", want: "tt0114709"},
		{name: "date-like junk kept", raw: "1997-08-20", want: "1997-08-20"},
		{name: "nan kept", raw: "NaN", want: "NaN"},
		{name: "empty", raw: "   ", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalID(tt.raw))
		})
	}
}

func TestConfigGetInt64(t *testing.T) {
	cfg := map[string]any{"a": 3, "b": 4.0, "c": int64(5), "d": "x"}
	assert.Equal(t, int64(3), ConfigGetInt64(cfg, "a", 0))
	assert.Equal(t, int64(4), ConfigGetInt64(cfg, "b", 0))
	assert.Equal(t, int64(5), ConfigGetInt64(cfg, "c", 0))
	assert.Equal(t, int64(9), ConfigGetInt64(cfg, "d", 9))
	assert.Equal(t, int64(9), ConfigGetInt64(nil, "a", 9))
}

func TestToFloat64(t *testing.T) {
	f, ok := ToFloat64(" 4.5 ")
	assert.True(t, ok)
	assert.Equal(t, 4.5, f)

	_, ok = ToFloat64("abc")
	assert.False(t, ok)

	f, ok = ToFloat64(int64(3))
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)
}
