package flags

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func TestMarkRequired(t *testing.T) {
	set := []cli.Flag{
		cli.StringFlag{Name: "s"},
		cli.IntFlag{Name: "i"},
		cli.BoolFlag{Name: "b"},
		cli.StringFlag{Name: "other"},
		AddressFlag{Name: "a"},
		cli.Int64Flag{Name: "amount, n"},
		cli.UintFlag{Name: "u"},
	}
	res := MarkRequired(set, "s", "i", "b", "a", "n", "u")
	require.Len(t, res, len(set))
	require.True(t, res[0].(cli.StringFlag).Required)
	require.True(t, res[1].(cli.IntFlag).Required)
	require.True(t, res[2].(cli.BoolFlag).Required)
	require.False(t, res[3].(cli.StringFlag).Required)
	require.True(t, res[4].(AddressFlag).IsRequired())
	require.True(t, res[5].(cli.Int64Flag).Required)
	require.True(t, res[6].(cli.UintFlag).Required)
}

func TestHasName(t *testing.T) {
	require.True(t, hasName("amount, a", "amount"))
	require.True(t, hasName("amount, a", "a"))
	require.False(t, hasName("amount, a", "am"))
}
