package near

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNearAmount(t *testing.T) {
	tests := []struct {
		name  string
		yocto string
		want  string
	}{
		{"zero", "0", "0"},
		{"one yocto", "1", "0.000000000000000000000001"},
		{"storage cost", "1000000000000000000000", "0.001"},
		{"donation outcome", "2000000000000000000000", "0.002"},
		{"one near", "1000000000000000000000000", "1"},
		{"one and a half", "1500000000000000000000000", "1.5"},
		{"thousands grouped", "1234567000000000000000000000", "1,234.567"},
		{"millions grouped", "1000000000000000000000000000000", "1,000,000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatNearAmount(tt.yocto)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatNearAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "1.5", "1e24"} {
		t.Run(in, func(t *testing.T) {
			_, err := FormatNearAmount(in)
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func TestFormatNearAmountDigits(t *testing.T) {
	tests := []struct {
		name   string
		yocto  string
		digits int
		want   string
	}{
		{"rounds up", "1234500000000000000000000", 2, "1.23"},
		{"rounds half up", "1235000000000000000000000", 2, "1.24"},
		{"carries into whole", "999999000000000000000000", 2, "1"},
		{"whole only", "1600000000000000000000000", 0, "2"},
		{"tiny rounds to zero", "1", 5, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatNearAmountDigits(tt.yocto, tt.digits)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FormatNearAmountDigits("1", 25)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseNearAmount(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		want   string
	}{
		{"one", "1", "1000000000000000000000000"},
		{"fraction", "0.002", "2000000000000000000000"},
		{"leading dot", ".5", "500000000000000000000000"},
		{"trailing dot", "3.", "3000000000000000000000000"},
		{"commas", "1,000", "1000000000000000000000000000"},
		{"spaces", "  2.5 ", "2500000000000000000000000"},
		{"zero", "0", "0"},
		{"zero fraction", "0.000", "0"},
		{"full precision", "0.000000000000000000000001", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNearAmount(tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNearAmount_Invalid(t *testing.T) {
	tests := []string{
		"",
		"abc",
		"-1",
		"+1",
		"1.2.3",
		".",
		"1e3",
		"0.0000000000000000000000001",
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := ParseNearAmount(in)
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, yocto := range []string{
		"0",
		"1",
		"999",
		"1000000000000000000000",
		"2000000000000000000000",
		"1000000000000000000000000",
		"123456789012345678901234567890",
		"340282366920938463463374607431768211455",
	} {
		t.Run(yocto, func(t *testing.T) {
			formatted, err := FormatNearAmount(yocto)
			require.NoError(t, err)

			parsed, err := ParseNearAmount(formatted)
			require.NoError(t, err)
			assert.Equal(t, yocto, parsed)
		})
	}
}

func TestParseDeposit(t *testing.T) {
	max := "340282366920938463463374607431768211455"
	d, err := ParseDeposit(max)
	require.NoError(t, err)
	assert.Equal(t, max, d.Dec())

	_, err = ParseDeposit("340282366920938463463374607431768211456")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
