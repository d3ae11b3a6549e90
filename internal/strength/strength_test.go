package strength

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeighedEntropy(t *testing.T) {
	cases := []struct {
		password string
		entropy  float64
		weak     bool
	}{
		{"aaaaaaaa", 4 + 2*7, true},
		{"friendlygh", 4 + 2*7 + 2*1.5, true},
		{"aaaaaaaA", 4 + 2*7 + 3, true},
		{"aaaaaaA5", 4 + 2*7 + 3 + 3, true},
		{"jT123456", 4 + 2*7 + 3 + 3, true},
		{"bottlerocket", 4 + 2*7 + 4*1.5, true},
		{"Very$trong?", 4 + 2*7 + 3*1.5 + 3 + 3, false},
		{"Boxxy2Boxxy", 4 + 2*7 + 3*1.5 + 3 + 3, false},
		{"write way more code", 4 + 2*7 + 11*1.5 + 3, false},
		{"a really, really, really long one that is just so very long", 4 + 2*7 + 12*1.5 + 39 + 3, false},
	}

	for _, tc := range cases {
		t.Run(tc.password, func(t *testing.T) {
			assert.Equal(t, tc.entropy, WeighedEntropy(tc.password))
			assert.Equal(t, tc.weak, IsWeak(tc.password))
			assert.Equal(t, !tc.weak, IsStrong(tc.password))
		})
	}
}

func TestWeighedEntropy_Empty(t *testing.T) {
	assert.Zero(t, WeighedEntropy(""))
	assert.True(t, IsWeak(""))
}

func TestWeighedEntropy_CountsRunes(t *testing.T) {
	// 8 кириллических букв: считаем символы, а не байты; кириллица не a-z, отсюда +3
	assert.Equal(t, 4+2*7+3.0, WeighedEntropy("парольпа"))
}
