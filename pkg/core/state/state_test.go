package state

import (
	"testing"

	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"github.com/stretchr/testify/require"
)

func TestAccountCopy(t *testing.T) {
	a := NewAccount(util.Uint160{1})
	a.Balance = 10
	c := a.Copy()
	c.Balance = 20
	require.Equal(t, int64(10), a.Balance)
	require.Equal(t, a.ID, c.ID)
}

func TestLeaseIsActive(t *testing.T) {
	l := &Lease{FromHeight: 10, ToHeight: 20}
	require.False(t, l.IsActive(9))
	require.True(t, l.IsActive(10))
	require.True(t, l.IsActive(19))
	require.False(t, l.IsActive(20))
}

func TestPollIsFinished(t *testing.T) {
	p := &Poll{FinishHeight: 5}
	require.False(t, p.IsFinished(4))
	require.True(t, p.IsFinished(5))
}
