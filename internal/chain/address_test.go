package chain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"0x" + strings.Repeat("a", 40), true},
		{"0x1203DC6F5D10556449E194C0C14F167BB3D72208", true},
		{"0x1203dc6f5d10556449e194c0c14f167bb3d72208", true},
		{"1203dc6f5d10556449e194c0c14f167bb3d72208", false},
		{"0x" + strings.Repeat("a", 39), false},
		{"0x" + strings.Repeat("a", 41), false},
		{"0x" + strings.Repeat("g", 40), false},
		{" 0x" + strings.Repeat("a", 40), false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ValidateAddress(tc.in), tc.in)
	}
}

func TestValidateTxHash(t *testing.T) {
	assert.True(t, ValidateTxHash("0x"+strings.Repeat("b", 64)))
	assert.True(t, ValidateTxHash("0x"+strings.Repeat("B", 64)))
	assert.False(t, ValidateTxHash("0x"+strings.Repeat("b", 40)))
	assert.False(t, ValidateTxHash("0x"+strings.Repeat("b", 65)))
	assert.False(t, ValidateTxHash(strings.Repeat("b", 66)))
}

func TestSameAddressIgnoresCase(t *testing.T) {
	assert.True(t, SameAddress("0xABCDEF0000000000000000000000000000000001", "0xabcdef0000000000000000000000000000000001"))
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", Normalize(" 0xABCDEF0000000000000000000000000000000001"))
}
