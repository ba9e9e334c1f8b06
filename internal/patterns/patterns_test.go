package patterns

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func matchAll(text string) []string {
	var out []string
	for _, p := range Payment {
		out = append(out, p.Re.FindAllString(text, -1)...)
	}
	return out
}

func TestPaymentPatterns(t *testing.T) {
	t.Run("per acre rate", func(t *testing.T) {
		got := matchAll("Producers receive $15.50 per acre enrolled.")
		require.Equal(t, []string{"$15.50 per acre"}, got)
	})

	t.Run("range with unit suffix", func(t *testing.T) {
		got := matchAll("Rates run $4.00 to $9.50 per hundredweight (cwt) this year.")
		require.Contains(t, got, "$4.00 to $9.50 per hundredweight (cwt)")
	})

	t.Run("percentage of losses", func(t *testing.T) {
		got := matchAll("Covers 75% of losses above the trigger.")
		require.Equal(t, []string{"75% of losses"}, got)
	})

	t.Run("maximum cap", func(t *testing.T) {
		got := matchAll("Payments of up to $125,000 per person.")
		require.Contains(t, got, "up to $125,000")
	})

	t.Run("no match on plain prose", func(t *testing.T) {
		require.Empty(t, matchAll("Contact your county office for details."))
	})
}

func TestDeadlinePatterns(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{"deadline", "Deadline: March 15, 2024 for all producers.", "March 15, 2024"},
		{"apply by", "You must apply by June 1, 2024.", "June 1, 2024"},
		{"signup ends", "Signup ends: August 30, 2024.", "August 30, 2024"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			for _, re := range Deadline {
				if m := re.FindStringSubmatch(tc.text); m != nil {
					got = m[1]
					break
				}
			}
			require.Equal(t, tc.want, got)
		})
	}
}

func TestDollarAmount(t *testing.T) {
	got := DollarAmount.FindAllString("$4.00 to $9,500.25", -1)
	require.Equal(t, []string{"$4.00", "$9,500.25"}, got)
}

func TestParenCode(t *testing.T) {
	m := ParenCode.FindStringSubmatch("the Dairy Margin Coverage (DMC) program")
	require.NotNil(t, m)
	require.Equal(t, "DMC", m[1])
}

func TestCodeDenylist(t *testing.T) {
	_, denied := CodeDenylist["USDA"]
	require.True(t, denied)
	_, denied = CodeDenylist["DMC"]
	require.False(t, denied)
}
