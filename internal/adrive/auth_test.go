package adrive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAccessToken(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "abc.def", "abc.def"},
		{"bearer prefix", "Bearer abc.def", "abc.def"},
		{"lowercase prefix", "bearer abc.def", "abc.def"},
		{"surrounding whitespace", "  Bearer   abc.def \n", "abc.def"},
		{"empty", "", ""},
		{"word not prefix", "Bearerabc", "Bearerabc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAccessToken(tt.in))
		})
	}
}

func TestStaticToken(t *testing.T) {
	src := StaticToken("Bearer tok-1", discardLogger())

	tok, err := src.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
}

func TestStaticToken_Empty(t *testing.T) {
	src := StaticToken("  ", discardLogger())

	_, err := src.Token()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
}
