package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wardenlabs/warden/pkg/utils"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "already folded",
			input: "steve",
			want:  "steve",
		},
		{
			name:  "mixed case",
			input: "NoTcH",
			want:  "notch",
		},
		{
			name:  "accented characters",
			input: "Média",
			want:  "media",
		},
		{
			name:  "combining marks stripped",
			input: "Jörmungandr",
			want:  "jormungandr",
		},
		{
			name:  "fullwidth compatibility forms",
			input: "Ｓｔｅｖｅ",
			want:  "steve",
		},
		{
			name:  "ligature decomposed",
			input: "ﬁsher",
			want:  "fisher",
		},
		{
			name:  "cyrillic lowercased",
			input: "Иван",
			want:  "иван",
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  Herobrine  ",
			want:  "herobrine",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "only whitespace",
			input: "   ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := utils.NormalizeName(tt.input)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeNameStable(t *testing.T) {
	t.Parallel()

	// Folding an already-folded name must be a fixed point, otherwise
	// stored fold columns and query-time folds could disagree.
	inputs := []string{"NoTcH", "Média", "Ｓｔｅｖｅ", "Иван"}
	for _, input := range inputs {
		once := utils.NormalizeName(input)
		twice := utils.NormalizeName(once)
		assert.Equal(t, once, twice, "normalization of %q is not idempotent", input)
	}
}
