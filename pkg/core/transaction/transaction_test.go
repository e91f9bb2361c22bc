package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/hash"
	"github.com/nspcc-dev/ledgerpool/pkg/crypto/keys"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *keys.PrivateKey {
	priv, err := keys.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func newPayment(t *testing.T, priv *keys.PrivateKey, apps ...Appendix) *Transaction {
	b := NewBuilder(&OrdinaryPayment{}).
		Timestamp(1000).
		Deadline(10).
		Recipient(util.Uint160{1, 2, 3}).
		Amount(100).
		Fee(10).
		ECBlock(5, 0xdeadbeef)
	for _, a := range apps {
		b.Append(a)
	}
	tx, err := b.BuildSigned(priv, []byte("seed"))
	require.NoError(t, err)
	return tx
}

func TestEncodeDecodeSigned(t *testing.T) {
	priv := newKey(t)
	announced := newKey(t).PublicKey()
	tx := newPayment(t, priv,
		NewPrunablePlainMessage([]byte("big data"), false),
		NewTextMessage("hello"),
		NewEncryptedMessage([]byte("secret"), true),
		&PublicKeyAnnouncement{PublicKey: announced},
	)
	require.True(t, tx.VerifySignature())
	for i := 1; i < len(tx.Appendices); i++ {
		require.Less(t, tx.Appendices[i-1].Flag(), tx.Appendices[i].Flag())
	}

	data := tx.Bytes()
	require.NotNil(t, data)
	actual, err := NewTransactionFromBytes(data)
	require.NoError(t, err)

	require.Equal(t, tx.ID(), actual.ID())
	require.Equal(t, tx.FullHash(), actual.FullHash())
	require.Equal(t, tx.Size(), actual.Size())
	require.Equal(t, tx.FullSize(), actual.FullSize())
	require.Equal(t, priv.GetScriptHash(), actual.Sender())
	require.Equal(t, tx.Recipient, actual.Recipient)
	require.Equal(t, tx.Amount, actual.Amount)
	require.Equal(t, tx.Fee, actual.Fee)
	require.Equal(t, uint32(5), actual.ECBlockHeight)
	require.Equal(t, uint64(0xdeadbeef), actual.ECBlockID)
	require.Equal(t, OrdinaryPaymentKind, actual.Kind())
	require.True(t, actual.VerifySignature())
	require.Len(t, actual.Appendices, 4)

	msg := actual.GetAppendix(MessageFlag).(*Message)
	require.Equal(t, "hello", string(msg.Data))

	enc := actual.GetAppendix(EncryptedMessageFlag).(*EncryptedMessage)
	require.True(t, enc.IsEncrypted())
	plain, err := enc.Decrypt([]byte("seed"))
	require.NoError(t, err)
	require.Equal(t, []byte("secret"), plain)
	_, err = enc.Decrypt([]byte("wrong"))
	require.Error(t, err)

	pk := actual.GetAppendix(PublicKeyAnnouncementFlag).(*PublicKeyAnnouncement)
	require.True(t, announced.Equal(pk.PublicKey))

	pm := actual.GetAppendix(PrunablePlainMessageFlag).(*PrunablePlainMessage)
	d, ok := pm.Data()
	require.True(t, ok)
	require.Equal(t, []byte("big data"), d)
	require.Equal(t, hash.Blake3([]byte("big data")), pm.Commitment())
}

func TestPhasingRoundTrip(t *testing.T) {
	priv := newKey(t)
	tx := newPayment(t, priv, &Phasing{FinishHeight: 100, Params: PhasingParams{
		VotingModel: VotingModelAccount,
		Quorum:      1,
		Whitelist:   []util.Uint160{{9}},
	}})
	actual, err := NewTransactionFromBytes(tx.Bytes())
	require.NoError(t, err)
	p := actual.Phasing()
	require.NotNil(t, p)
	require.Equal(t, uint32(100), p.FinishHeight)
	require.Equal(t, []util.Uint160{{9}}, p.Params.Whitelist)
}

func TestIDDependsOnSignature(t *testing.T) {
	priv := newKey(t)
	tx := newPayment(t, priv)
	unsigned, err := tx.UnsignedBytes()
	require.NoError(t, err)
	sigHash := hash.Sha256(tx.Signature)
	expected := hash.Sha256(append(unsigned, sigHash[:]...))
	require.Equal(t, expected, tx.FullHash())

	other := newPayment(t, newKey(t))
	require.NotEqual(t, tx.ID(), other.ID())
}

func TestNewTransactionFromBytesMalformed(t *testing.T) {
	tx := newPayment(t, newKey(t))
	data := tx.Bytes()

	t.Run("garbage", func(t *testing.T) {
		_, err := NewTransactionFromBytes([]byte{1, 2, 3})
		require.ErrorIs(t, err, ErrMalformed)
	})
	t.Run("truncated", func(t *testing.T) {
		_, err := NewTransactionFromBytes(data[:len(data)-1])
		require.ErrorIs(t, err, ErrMalformed)
	})
	t.Run("trailing", func(t *testing.T) {
		_, err := NewTransactionFromBytes(append(data, 0))
		require.ErrorIs(t, err, ErrMalformed)
	})
	t.Run("unknown kind", func(t *testing.T) {
		bad := append([]byte{}, data...)
		bad[0] = 0x7f
		_, err := NewTransactionFromBytes(bad)
		require.ErrorIs(t, err, ErrMalformed)
	})
	t.Run("unknown appendix", func(t *testing.T) {
		bad := append([]byte{}, data...)
		// type, subtype, version, timestamp, deadline, key, recipient,
		// amount, fee, ec height, ec id, then flags.
		off := 1 + 1 + 1 + 4 + 2 + keys.PublicKeySize + util.Uint160Size + 8 + 8 + 4 + 8
		bad[off+3] = 0x80
		_, err := NewTransactionFromBytes(bad)
		require.ErrorIs(t, err, ErrMalformed)
	})
}

func TestTamperedSignature(t *testing.T) {
	tx := newPayment(t, newKey(t))
	data := tx.Bytes()
	// Amount is right after the recipient.
	off := 1 + 1 + 1 + 4 + 2 + keys.PublicKeySize + util.Uint160Size
	data[off]++
	actual, err := NewTransactionFromBytes(data)
	require.NoError(t, err)
	require.False(t, actual.VerifySignature())
	require.NotEqual(t, tx.ID(), actual.ID())
}

func TestBuilderErrors(t *testing.T) {
	priv := newKey(t)
	var nv *NotValidError

	t.Run("no attachment", func(t *testing.T) {
		_, err := NewBuilder(nil).BuildSigned(priv, nil)
		require.True(t, errors.As(err, &nv))
	})
	t.Run("no sender", func(t *testing.T) {
		_, err := NewBuilder(&OrdinaryPayment{}).Build()
		require.True(t, errors.As(err, &nv))
	})
	t.Run("duplicate appendix", func(t *testing.T) {
		_, err := NewBuilder(&OrdinaryPayment{}).
			Append(NewTextMessage("a")).
			Append(NewTextMessage("b")).
			BuildSigned(priv, nil)
		require.True(t, errors.As(err, &nv))
	})
	t.Run("payload too big", func(t *testing.T) {
		l := limits.Default()
		l.MaxPayloadSize = 10
		_, err := NewBuilder(&OrdinaryPayment{}).
			Limits(l).
			Append(NewTextMessage("0123456789")).
			BuildSigned(priv, nil)
		require.True(t, errors.As(err, &nv))
	})
	t.Run("unencrypted on Build", func(t *testing.T) {
		_, err := NewBuilder(&OrdinaryPayment{}).
			SenderPublicKey(priv.PublicKey()).
			Append(NewEncryptedMessage([]byte{1}, false)).
			Build()
		require.True(t, errors.As(err, &nv))
	})
	t.Run("no seed", func(t *testing.T) {
		_, err := NewBuilder(&OrdinaryPayment{}).
			Append(NewEncryptedMessage([]byte{1}, false)).
			BuildSigned(priv, nil)
		require.True(t, errors.As(err, &nv))
	})
	t.Run("signer mismatch", func(t *testing.T) {
		_, err := NewBuilder(&OrdinaryPayment{}).
			SenderPublicKey(newKey(t).PublicKey()).
			BuildSigned(priv, nil)
		require.True(t, errors.As(err, &nv))
	})
	t.Run("unsigned ok", func(t *testing.T) {
		tx, err := NewBuilder(&OrdinaryPayment{}).
			SenderPublicKey(priv.PublicKey()).
			Build()
		require.NoError(t, err)
		require.False(t, tx.VerifySignature())
		require.NoError(t, tx.Sign(priv))
		require.True(t, tx.VerifySignature())
	})
}

func TestExpiration(t *testing.T) {
	tx := newPayment(t, newKey(t))
	require.Equal(t, uint32(1000+10*60), tx.Expiration())
	require.False(t, tx.IsExpired(tx.Expiration()))
	require.True(t, tx.IsExpired(tx.Expiration()+1))
	require.Equal(t, int64(110), tx.Cost())
	require.Equal(t, tx.Fee/int64(tx.Size()), tx.FeePerByte())
}

func TestStatusOnce(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		tx := newPayment(t, newKey(t))
		require.NoError(t, tx.SetConfirmed(10, 20, 1))
		require.ErrorIs(t, tx.SetConfirmed(11, 21, 2), ErrStatusSet)
		require.ErrorIs(t, tx.MarkFailed("x"), ErrStatusSet)
		st := tx.GetStatus()
		require.Equal(t, uint32(10), st.Height)
		require.False(t, tx.Failed())
	})
	t.Run("failed", func(t *testing.T) {
		tx := newPayment(t, newKey(t))
		require.NoError(t, tx.MarkFailed(""))
		require.True(t, tx.Failed())
		require.NotEmpty(t, tx.ErrorMessage())
		require.ErrorIs(t, tx.SetConfirmed(1, 1, 1), ErrStatusSet)
	})
}

type prunableSourceStub map[util.Uint256][]byte

func (s prunableSourceStub) GetPrunable(_ context.Context, c util.Uint256) ([]byte, error) {
	if d, ok := s[c]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

func TestPrunableMaterialize(t *testing.T) {
	tx := newPayment(t, newKey(t), NewPrunablePlainMessage([]byte("payload"), true))
	require.False(t, tx.HasPrunedData())
	data := tx.PrunableData()
	require.Len(t, data, 1)

	pruned := tx.Pruned()
	require.True(t, pruned.HasPrunedData())
	require.Equal(t, tx.ID(), pruned.ID())
	require.Less(t, len(pruned.Bytes()), len(tx.Bytes()))
	require.Equal(t, tx.FullSize(), pruned.FullSize())

	decoded, err := NewTransactionFromBytes(pruned.Bytes())
	require.NoError(t, err)
	require.True(t, decoded.HasPrunedData())
	require.True(t, decoded.VerifySignature())

	ctx := context.Background()
	t.Run("restored", func(t *testing.T) {
		full, err := decoded.Materialize(ctx, prunableSourceStub(data), 100, 1050)
		require.NoError(t, err)
		require.False(t, full.HasPrunedData())
		require.Equal(t, tx.ID(), full.ID())
		m := full.GetAppendix(PrunablePlainMessageFlag).(*PrunablePlainMessage)
		d, ok := m.Data()
		require.True(t, ok)
		require.Equal(t, []byte("payload"), d)
		// The original is untouched.
		require.True(t, decoded.HasPrunedData())
	})
	t.Run("window passed", func(t *testing.T) {
		_, err := decoded.Materialize(ctx, prunableSourceStub(data), 100, 1101)
		require.ErrorIs(t, err, ErrPrunableUnavailable)
	})
	t.Run("no data", func(t *testing.T) {
		_, err := decoded.Materialize(ctx, prunableSourceStub{}, 100, 1050)
		require.ErrorIs(t, err, ErrPrunableUnavailable)
	})
	t.Run("wrong data", func(t *testing.T) {
		src := prunableSourceStub{}
		for k := range data {
			src[k] = []byte("another")
		}
		_, err := decoded.Materialize(ctx, src, 100, 1050)
		require.ErrorIs(t, err, ErrPrunableUnavailable)
	})
	t.Run("nothing to do", func(t *testing.T) {
		same, err := tx.Materialize(ctx, nil, 0, 0)
		require.NoError(t, err)
		require.Same(t, tx, same)
	})
}

func TestMarshalJSON(t *testing.T) {
	tx := newPayment(t, newKey(t), NewTextMessage("hi"), NewPrunablePlainMessage([]byte{1, 2}, false))
	require.NoError(t, tx.MarkFailed("boom"))
	data, err := json.Marshal(tx)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, tx.IDString(), m["id"])
	assert.Equal(t, "OrdinaryPayment", m["kind"])
	assert.Equal(t, tx.FullHash().StringBE(), m["fullHash"])
	apps := m["appendices"].(map[string]any)
	assert.Contains(t, apps, "Message")
	assert.Contains(t, apps, "PrunablePlainMessage")
	assert.Equal(t, "boom", m["status"].(map[string]any)["errorMessage"])
}

func TestErrorKinds(t *testing.T) {
	nv := NotValidf("bad %d", 1)
	ncv := NotCurrentlyValidf("later")
	require.True(t, IsPermanent(nv))
	require.False(t, IsTransient(nv))
	require.True(t, IsTransient(ncv))
	require.False(t, IsPermanent(ncv))
	require.True(t, IsPermanent(ErrMalformed))
	require.False(t, IsDeferred(ncv))
	require.False(t, IsDeferred(nv))

	nyv := NotYetValidf("ahead by %d", 5)
	require.True(t, IsTransient(nyv))
	require.True(t, IsDeferred(nyv))
	require.True(t, IsDeferred(fmt.Errorf("wrapped: %w", nyv)))
	require.Equal(t, "not currently valid: ahead by 5", nyv.Error())
	require.Contains(t, nv.Error(), "bad 1")
	require.Contains(t, ncv.Error(), "later")
}
