package delivery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRules(t *testing.T) {
	calc := DefaultCalculator()
	cases := []struct {
		name     string
		city     string
		district string
		want     int64
	}{
		{"metro", "Uttara", "Dhaka", MetroFee},
		{"district rule without special city", "Joydebpur", "Gazipur", SpecialFee},
		{"special city inside dhaka district", "Savar Cantonment", "Dhaka", SpecialFee},
		{"special city case-insensitive", "  tongi ", "", SpecialFee},
		{"outside metro", "X", "Khulna", DefaultFee},
		{"district match is exact", "Mirpur", "Dhaka North", DefaultFee},
		{"district case and spacing", "Gulshan", " dhaka ", MetroFee},
		{"nothing selected", "", "", 0},
		{"whitespace only", "  ", "\t", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, calc.Fee(tc.city, tc.district))
		})
	}
}

func TestQuoteNamesRule(t *testing.T) {
	calc := DefaultCalculator()
	require.Equal(t, Quote{Fee: 70, Rule: "metro", Determined: true}, calc.Quote("Banani", "Dhaka"))
	require.Equal(t, Quote{Fee: 130, Rule: "default", Determined: true}, calc.Quote("", "Sylhet"))
	require.False(t, calc.Quote("", "").Determined)
}

func TestLoadRulesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_fee: 150
rules:
  - name: chattogram-metro
    fee: 80
    districts: [Chattogram]
  - name: port-area
    fee: 60
    cities_containing: [Agrabad]
`), 0o600))

	calc, err := LoadRules(path)
	require.NoError(t, err)
	require.Equal(t, int64(80), calc.Fee("Agrabad", "Chattogram"))
	require.Equal(t, int64(60), calc.Fee("Agrabad C/A", "Other"))
	require.Equal(t, int64(150), calc.Fee("Uttara", "Dhaka"))
}

func TestLoadRulesDefaultsAndErrors(t *testing.T) {
	calc, err := LoadRules("")
	require.NoError(t, err)
	require.Equal(t, DefaultCalculator(), calc)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = ParseRules([]byte("rules:\n  - name: empty\n    fee: -1\n"))
	require.ErrorContains(t, err, "fee must not be negative")
	require.ErrorContains(t, err, "needs cities_containing or districts")

	_, err = ParseRules([]byte("rules: [unterminated"))
	require.Error(t, err)
}
