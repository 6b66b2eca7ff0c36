package b64url

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"ab",
		"abc",
		"abcd",
		`{"email":"a@b.com","name":"A"}`,
		"\xff\xfe\xfd binary with url-unsafe output ??>>",
	}

	for _, in := range inputs {
		encoded := Encode([]byte(in))
		assert.NotContains(t, encoded, "=")
		assert.NotContains(t, encoded, "+")
		assert.NotContains(t, encoded, "/")

		decoded, err := Decode(encoded)
		require.NoError(t, err, "Decode(%q)", encoded)
		assert.Equal(t, in, string(decoded))
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "unpadded", input: "eyJhIjoxfQ", expected: `{"a":1}`},
		{name: "already padded", input: "eyJhIjoxfQ==", expected: `{"a":1}`},
		{name: "url alphabet", input: "-_-_", expected: "\xfb\xff\xbf"},
		{name: "impossible length", input: "abcde", wantErr: true},
		{name: "invalid alphabet", input: "ab$d", wantErr: true},
		{name: "embedded dot", input: "ab.cd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Decode(tt.input)
			if tt.wantErr {
				var decodeErr *DecodeError
				require.Error(t, err)
				assert.True(t, errors.As(err, &decodeErr))
				assert.Equal(t, tt.input, decodeErr.Segment)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	obj, err := DecodeJSON(Encode([]byte(`{"zip":"Deflate","alg":"dir"}`)))
	require.NoError(t, err)
	assert.Equal(t, "Deflate", obj["zip"])

	_, err = DecodeJSON(Encode([]byte("not json")))
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, err.Error(), "invalid JSON")

	_, err = DecodeJSON(Encode([]byte("null")))
	require.ErrorAs(t, err, &decodeErr)
	assert.Contains(t, err.Error(), "not a JSON object")

	_, err = DecodeJSON(Encode([]byte(`["array"]`)))
	require.ErrorAs(t, err, &decodeErr)
}
