package transaction

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
)

// AssetIssuance creates a new asset owned by the sender, its id is the id
// of the transaction.
type AssetIssuance struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	Decimals    uint8  `json:"decimals"`
}

// Kind implements the Attachment interface.
func (*AssetIssuance) Kind() Kind { return AssetIssuanceKind }

// Version implements the Body interface.
func (*AssetIssuance) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (a *AssetIssuance) Size() int {
	return 1 + io.GetVarBytesSize(len(a.Name)) + io.GetVarBytesSize(len(a.Description)) + 8 + 1
}

// FullSize implements the Body interface.
func (a *AssetIssuance) FullSize() int { return a.Size() }

// IsPhasable implements the Body interface.
func (*AssetIssuance) IsPhasable() bool { return true }

// EncodeBinary implements the io.Serializable interface.
func (a *AssetIssuance) EncodeBinary(w *io.BinWriter) {
	writeVersion(w)
	w.WriteString(a.Name)
	w.WriteString(a.Description)
	w.WriteU64LE(uint64(a.Quantity))
	w.WriteB(a.Decimals)
}

// DecodeBinary implements the io.Serializable interface.
func (a *AssetIssuance) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	a.Name = r.ReadString(maxFieldSize)
	a.Description = r.ReadString(maxFieldSize)
	a.Quantity = int64(r.ReadU64LE())
	a.Decimals = r.ReadB()
}

// Verify implements the Body interface.
func (a *AssetIssuance) Verify(l *limits.Limits) error {
	if len(a.Name) < l.MinAssetNameLength || len(a.Name) > l.MaxAssetNameLength {
		return fmt.Errorf("invalid asset name length %d", len(a.Name))
	}
	if !isAlphanumeric(a.Name) {
		return fmt.Errorf("asset name %q is not alphanumeric", a.Name)
	}
	if len(a.Description) > l.MaxAssetDescriptionLength {
		return fmt.Errorf("asset description is too long: %d > %d", len(a.Description), l.MaxAssetDescriptionLength)
	}
	if a.Quantity <= 0 || a.Quantity > limits.MaxAssetQuantity {
		return fmt.Errorf("invalid asset quantity %d", a.Quantity)
	}
	if a.Decimals > l.MaxAssetDecimals {
		return fmt.Errorf("too many decimals: %d > %d", a.Decimals, l.MaxAssetDecimals)
	}
	return nil
}

// AssetTransfer moves asset units from the sender to the recipient.
type AssetTransfer struct {
	AssetID  uint64 `json:"asset"`
	Quantity int64  `json:"quantity"`
}

// Kind implements the Attachment interface.
func (*AssetTransfer) Kind() Kind { return AssetTransferKind }

// Version implements the Body interface.
func (*AssetTransfer) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (*AssetTransfer) Size() int { return 1 + 8 + 8 }

// FullSize implements the Body interface.
func (a *AssetTransfer) FullSize() int { return a.Size() }

// IsPhasable implements the Body interface.
func (*AssetTransfer) IsPhasable() bool { return true }

// EncodeBinary implements the io.Serializable interface.
func (a *AssetTransfer) EncodeBinary(w *io.BinWriter) {
	writeVersion(w)
	w.WriteU64LE(a.AssetID)
	w.WriteU64LE(uint64(a.Quantity))
}

// DecodeBinary implements the io.Serializable interface.
func (a *AssetTransfer) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	a.AssetID = r.ReadU64LE()
	a.Quantity = int64(r.ReadU64LE())
}

// Verify implements the Body interface.
func (a *AssetTransfer) Verify(*limits.Limits) error {
	if a.AssetID == 0 {
		return errors.New("asset id is not set")
	}
	if a.Quantity <= 0 || a.Quantity > limits.MaxAssetQuantity {
		return fmt.Errorf("invalid asset quantity %d", a.Quantity)
	}
	return nil
}
