package normalizers

import (
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "formatted with area code", input: "(85) 99620-1636", expected: "85996201636"},
		{name: "digits only", input: "85996201636", expected: "85996201636"},
		{name: "space separated", input: "85 99620-1636", expected: "85996201636"},
		{name: "international prefix", input: "+55 (85) 99620-1636", expected: "5585996201636"},
		{name: "dots", input: "85.3224.1234", expected: "8532241234"},
		{name: "no digits", input: "n/a", expected: ""},
		{name: "empty", input: "", expected: ""},
		{name: "non-ascii digits ignored", input: "٨٥ 99620-1636", expected: "996201636"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhone(tt.input))
		})
	}
}

func TestIsValidPhone(t *testing.T) {
	assert.False(t, IsValidPhone("859962016"), "9 digits")
	assert.True(t, IsValidPhone("8532241234"), "10 digits")
	assert.True(t, IsValidPhone("85996201636"), "11 digits")
	assert.False(t, IsValidPhone("558599620163"), "12 digits")
	assert.False(t, IsValidPhone(""), "empty")
	assert.False(t, IsValidPhone("85-9962016"), "not normalized")
}

func TestParsePhone(t *testing.T) {
	normalized, err := ParsePhone("(85) 99620-1636")
	require.NoError(t, err)
	assert.Equal(t, "85996201636", normalized)

	_, err = ParsePhone("9962-1636")
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
	assert.Contains(t, err.Error(), "got 8")

	_, err = ParsePhone("   ")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestFormatPhone(t *testing.T) {
	assert.Equal(t, "(85) 99620-1636", FormatPhone("85996201636"))
	assert.Equal(t, "(85) 3224-1234", FormatPhone("8532241234"))
	assert.Equal(t, "123", FormatPhone("123"))
}

func TestPhoneVariants(t *testing.T) {
	assert.Equal(t,
		[]string{"85996201636", "5585996201636", "(85) 99620-1636"},
		PhoneVariants("85996201636"))

	assert.Equal(t,
		[]string{"08532241234", "8532241234", "558532241234", "(85) 3224-1234"},
		PhoneVariants("08532241234"))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "responsavel", Fold("  Responsável "))
	assert.Equal(t, "assoc_paciente", Fold("ASSOC_PACIENTE"))
	assert.Equal(t, "joao", Fold("João"))
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, "85996201636", Apply("(85) 99620-1636", "nphone"))
	assert.Equal(t, "Ana Costa", ApplyChain("  Ana   Costa ", "trim", "nname"))
	assert.Equal(t, "unchanged", Apply("unchanged", "does_not_exist"))

	Register("upper_test", func(s string) string { return s + "!" })
	fn, ok := Get("upper_test")
	require.True(t, ok)
	assert.Equal(t, "x!", fn("x"))
}

func TestNormalizeNationalID(t *testing.T) {
	assert.Equal(t, "12345678909", NormalizeNationalID("123.456.789-09"))
}
