package transaction

import (
	"encoding/hex"
	"encoding/json"

	"github.com/nspcc-dev/ledgerpool/pkg/encoding/address"
)

type (
	transactionJSON struct {
		ID              string                     `json:"id"`
		FullHash        string                     `json:"fullHash"`
		Type            uint8                      `json:"type"`
		Subtype         uint8                      `json:"subtype"`
		Kind            string                     `json:"kind"`
		Version         uint8                      `json:"version"`
		Timestamp       uint32                     `json:"timestamp"`
		Deadline        uint16                     `json:"deadline"`
		Expiration      uint32                     `json:"expiration"`
		SenderPublicKey string                     `json:"senderPublicKey"`
		Sender          string                     `json:"sender"`
		Recipient       string                     `json:"recipient,omitempty"`
		Amount          int64                      `json:"amount"`
		Fee             int64                      `json:"fee"`
		ECBlockHeight   uint32                     `json:"ecBlockHeight"`
		ECBlockID       uint64                     `json:"ecBlockId,string"`
		Attachment      Attachment                 `json:"attachment"`
		Appendices      map[string]json.RawMessage `json:"appendices,omitempty"`
		Signature       string                     `json:"signature"`
		Size            int                        `json:"size"`
		FullSize        int                        `json:"fullSize"`
		Status          *statusJSON                `json:"status,omitempty"`
	}

	statusJSON struct {
		Height       uint32 `json:"height,omitempty"`
		BlockID      uint64 `json:"blockId,string,omitempty"`
		Index        uint16 `json:"index,omitempty"`
		ErrorMessage string `json:"errorMessage,omitempty"`
	}

	prunableJSON struct {
		IsText     bool   `json:"isText"`
		Length     uint32 `json:"length"`
		Commitment string `json:"commitment"`
		Data       string `json:"data,omitempty"`
	}
)

// MarshalJSON implements the json.Marshaler interface.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	k := t.Kind()
	tx := transactionJSON{
		ID:            t.IDString(),
		FullHash:      t.FullHash().StringBE(),
		Type:          k.Type,
		Subtype:       k.Subtype,
		Kind:          k.String(),
		Version:       t.Version,
		Timestamp:     t.Timestamp,
		Deadline:      t.Deadline,
		Expiration:    t.Expiration(),
		Sender:        address.Uint160ToString(t.Sender()),
		Amount:        t.Amount,
		Fee:           t.Fee,
		ECBlockHeight: t.ECBlockHeight,
		ECBlockID:     t.ECBlockID,
		Attachment:    t.Attachment,
		Signature:     hex.EncodeToString(t.Signature),
		Size:          t.Size(),
		FullSize:      t.FullSize(),
	}
	if t.SenderPublicKey != nil {
		tx.SenderPublicKey = t.SenderPublicKey.String()
	}
	if t.HasRecipient() {
		tx.Recipient = address.Uint160ToString(t.Recipient)
	}
	if len(t.Appendices) != 0 {
		tx.Appendices = make(map[string]json.RawMessage, len(t.Appendices))
		for _, a := range t.Appendices {
			var v any = a
			if m, ok := a.(*PrunablePlainMessage); ok {
				pj := prunableJSON{IsText: m.IsText, Length: m.Length, Commitment: m.Commitment().StringBE()}
				if data, ok := m.Data(); ok {
					pj.Data = hex.EncodeToString(data)
				}
				v = pj
			}
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			tx.Appendices[a.Flag().String()] = raw
		}
	}
	st := t.GetStatus()
	if st.Confirmed || st.Failed {
		tx.Status = &statusJSON{
			Height:       st.Height,
			BlockID:      st.BlockID,
			Index:        st.Index,
			ErrorMessage: st.ErrorMessage,
		}
	}
	return json.Marshal(tx)
}
