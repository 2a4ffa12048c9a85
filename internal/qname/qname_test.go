package qname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompare(t *testing.T) {
	assert.Negative(t, Compare(New("urn:a", "b"), New("urn:b", "a")))
	assert.Negative(t, Compare(New("urn:a", "b"), New("urn:a", "c")))
	assert.Zero(t, Compare(New("urn:a", "b"), New("urn:a", "b")))
}

func TestString(t *testing.T) {
	assert.Equal(t, "{urn:a}b", New("urn:a", "b").String())
	assert.Equal(t, "b", New("", "b").String())
	assert.True(t, QName{}.IsZero())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		prefix    string
		local     string
		hasPrefix bool
		wantErr   bool
	}{
		{name: "prefixed", in: "mi:Root", prefix: "mi", local: "Root", hasPrefix: true},
		{name: "bare", in: "single", local: "single"},
		{name: "trimmed", in: "  props:many ", prefix: "props", local: "many", hasPrefix: true},
		{name: "empty", in: "  ", wantErr: true},
		{name: "empty prefix", in: ":local", wantErr: true},
		{name: "empty local", in: "p:", wantErr: true},
		{name: "double colon", in: "a:b:c", wantErr: true},
		{name: "inner space", in: "a b", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, local, hasPrefix, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.prefix, prefix)
			assert.Equal(t, tt.local, local)
			assert.Equal(t, tt.hasPrefix, hasPrefix)
		})
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "mi:Root", Join("mi", "Root"))
	assert.Equal(t, "Root", Join("", "Root"))
}
