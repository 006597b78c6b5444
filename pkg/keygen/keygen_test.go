package keygen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Shape(t *testing.T) {
	key := Generate()

	require.Len(t, key, Length)
	assert.True(t, strings.HasPrefix(key, Prefix))
	assert.True(t, Valid(key), "generated key %q should be valid", key)
}

func TestGenerate_Distinct(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		key := Random{}.Generate()
		_, dup := seen[key]
		require.False(t, dup, "duplicate key after %d draws", i)
		seen[key] = struct{}{}
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"generated", Generate(), true},
		{"empty", "", false},
		{"wrong prefix", "sk-a" + strings.Repeat("0", BodyLength+1), false},
		{"short body", Prefix + "abc", false},
		{"uppercase hex", Prefix + strings.Repeat("A", BodyLength), false},
		{"masked", Prefix + strings.Repeat("*", BodyLength), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Valid(tt.key))
		})
	}
}
