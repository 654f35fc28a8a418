package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortsKeysAndSkipsHTMLEscaping(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{
		"b":      int64(2),
		"a":      []any{true, "x<y&z", 3},
		"\u00e9": "cafe\u0301",
	})
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":[true,\"x<y&z\",3],\"b\":2,\"\u00e9\":\"caf\u00e9\"}", string(out))
}

func TestMarshalCanonical_LineSeparatorsAreLiteral(t *testing.T) {
	out, err := MarshalCanonical("a\u2028b")
	require.NoError(t, err)
	assert.Equal(t, "\"a\u2028b\"", string(out))

	// A backslash followed by the text u2028 stays escaped.
	out, err = MarshalCanonical(`a\u2028b`)
	require.NoError(t, err)
	assert.Equal(t, `"a\\u2028b"`, string(out))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	for _, v := range []any{nil, 1.5, struct{}{}, map[string]any{"k": nil}} {
		_, err := MarshalCanonical(v)
		assert.Error(t, err, "%#v", v)
	}
}
