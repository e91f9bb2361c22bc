package util_test

import (
	"encoding/json"
	"testing"

	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint160UnmarshalJSON(t *testing.T) {
	str := "0263c1de100292813b5e075e585acc1bae963b2d"
	expected, err := util.Uint160DecodeStringBE(str)
	require.NoError(t, err)

	var u1, u2 util.Uint160
	require.NoError(t, u1.UnmarshalJSON([]byte(`"`+str+`"`)))
	assert.True(t, expected.Equals(u1))

	data, err := json.Marshal(expected)
	require.NoError(t, err)
	require.Equal(t, `"0x`+str+`"`, string(data))
	require.NoError(t, json.Unmarshal(data, &u2))
	require.Equal(t, expected, u2)

	assert.Error(t, u2.UnmarshalJSON([]byte(`123`)))
}

func TestUInt160DecodeString(t *testing.T) {
	hexStr := "2d3b96ae1bcc5a585e075e3b81920210dec16302"
	val, err := util.Uint160DecodeStringBE(hexStr)
	require.NoError(t, err)
	assert.Equal(t, hexStr, val.String())
	assert.Equal(t, "0x"+hexStr, val.StringBE())

	_, err = util.Uint160DecodeStringBE(hexStr[1:])
	assert.Error(t, err)

	_, err = util.Uint160DecodeStringBE("zz3b96ae1bcc5a585e075e3b81920210dec16302")
	assert.Error(t, err)
}

func TestUint160Less(t *testing.T) {
	a := util.Uint160{1, 2, 3}
	b := util.Uint160{1, 2, 4}
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
	assert.True(t, util.Uint160{}.IsZero())
	assert.False(t, a.IsZero())
}
