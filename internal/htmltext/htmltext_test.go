package htmltext

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromString(t *testing.T) {
	t.Run("drops script and style", func(t *testing.T) {
		got := FromString(`<html><head><style>p{}</style></head><body><script>var x;</script><p>visible</p></body></html>`)
		require.Equal(t, "visible", got)
	})

	t.Run("block boundaries become newlines", func(t *testing.T) {
		got := FromString(`<h2>Payment Rate</h2><p>Up to $10 per acre.</p>`)
		require.Equal(t, "Payment Rate\nUp to $10 per acre.", got)
	})

	t.Run("collapses whitespace runs", func(t *testing.T) {
		got := FromString("<p>a   b\t c</p>")
		require.Equal(t, "a b c", got)
	})

	t.Run("empty input", func(t *testing.T) {
		require.Equal(t, "", FromString(""))
	})
}
