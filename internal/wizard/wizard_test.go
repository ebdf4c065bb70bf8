package wizard

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAskConceptName_ValidInput(t *testing.T) {
	in := strings.NewReader("  低空经济 \n")
	out := &bytes.Buffer{}

	name, err := AskConceptName(in, out)
	require.NoError(t, err)
	assert.Equal(t, "低空经济", name)
	assert.Equal(t, "Concept name: ", out.String())
}

func TestAskConceptName_NoTrailingNewline(t *testing.T) {
	name, err := AskConceptName(strings.NewReader("算力"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "算力", name)
}

func TestAskConceptName_EmptyName(t *testing.T) {
	_, err := AskConceptName(strings.NewReader("\n"), &bytes.Buffer{})
	assert.EqualError(t, err, "concept name is required")
}

func TestAskConceptName_UnexpectedEOF(t *testing.T) {
	_, err := AskConceptName(strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{"y\n", true, false},
		{"YES\n", true, false},
		{"n\n", false, false},
		{"no\n", false, false},
		{"\n", false, false},
		{"maybe\n", false, true},
		{"", false, true},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			out := &bytes.Buffer{}
			got, err := Confirm(strings.NewReader(tt.input), out, "Purge concept_1?")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Purge concept_1? [y/N]: ", out.String())
		})
	}
}

func TestIsTTY(t *testing.T) {
	assert.False(t, IsTTY(strings.NewReader("")))
}
