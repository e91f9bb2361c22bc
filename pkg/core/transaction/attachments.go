package transaction

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
)

// OrdinaryPayment transfers Amount from the sender to the recipient.
type OrdinaryPayment struct {
	emptyBody
}

// Kind implements the Attachment interface.
func (*OrdinaryPayment) Kind() Kind { return OrdinaryPaymentKind }

// IsPhasable implements the Body interface.
func (*OrdinaryPayment) IsPhasable() bool { return true }

// ArbitraryMessage carries no data itself, the message is in appendices.
type ArbitraryMessage struct {
	emptyBody
}

// Kind implements the Attachment interface.
func (*ArbitraryMessage) Kind() Kind { return ArbitraryMessageKind }

// IsPhasable implements the Body interface.
func (*ArbitraryMessage) IsPhasable() bool { return true }

// AliasAssignment sets (or updates) an alias owned by the sender.
type AliasAssignment struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// Kind implements the Attachment interface.
func (*AliasAssignment) Kind() Kind { return AliasAssignmentKind }

// Version implements the Body interface.
func (*AliasAssignment) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (a *AliasAssignment) Size() int {
	return 1 + io.GetVarBytesSize(len(a.Name)) + io.GetVarBytesSize(len(a.URI))
}

// FullSize implements the Body interface.
func (a *AliasAssignment) FullSize() int { return a.Size() }

// IsPhasable implements the Body interface.
func (*AliasAssignment) IsPhasable() bool { return true }

// EncodeBinary implements the io.Serializable interface.
func (a *AliasAssignment) EncodeBinary(w *io.BinWriter) {
	writeVersion(w)
	w.WriteString(a.Name)
	w.WriteString(a.URI)
}

// DecodeBinary implements the io.Serializable interface.
func (a *AliasAssignment) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	a.Name = r.ReadString(maxFieldSize)
	a.URI = r.ReadString(maxFieldSize)
}

// Verify implements the Body interface.
func (a *AliasAssignment) Verify(l *limits.Limits) error {
	if len(a.Name) == 0 || len(a.Name) > l.MaxAliasLength {
		return fmt.Errorf("invalid alias length %d", len(a.Name))
	}
	if !isAlphanumeric(a.Name) {
		return fmt.Errorf("alias %q is not alphanumeric", a.Name)
	}
	if len(a.URI) > l.MaxAliasURILength {
		return fmt.Errorf("alias URI is too long: %d > %d", len(a.URI), l.MaxAliasURILength)
	}
	return nil
}

// AccountInfo sets the sender account name and description.
type AccountInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Kind implements the Attachment interface.
func (*AccountInfo) Kind() Kind { return AccountInfoKind }

// Version implements the Body interface.
func (*AccountInfo) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (a *AccountInfo) Size() int {
	return 1 + io.GetVarBytesSize(len(a.Name)) + io.GetVarBytesSize(len(a.Description))
}

// FullSize implements the Body interface.
func (a *AccountInfo) FullSize() int { return a.Size() }

// IsPhasable implements the Body interface.
func (*AccountInfo) IsPhasable() bool { return true }

// EncodeBinary implements the io.Serializable interface.
func (a *AccountInfo) EncodeBinary(w *io.BinWriter) {
	writeVersion(w)
	w.WriteString(a.Name)
	w.WriteString(a.Description)
}

// DecodeBinary implements the io.Serializable interface.
func (a *AccountInfo) DecodeBinary(r *io.BinReader) {
	readVersion(r)
	a.Name = r.ReadString(maxFieldSize)
	a.Description = r.ReadString(maxFieldSize)
}

// Verify implements the Body interface.
func (a *AccountInfo) Verify(l *limits.Limits) error {
	if len(a.Name) > l.MaxAccountNameLength {
		return fmt.Errorf("account name is too long: %d > %d", len(a.Name), l.MaxAccountNameLength)
	}
	if len(a.Description) > l.MaxAccountDescriptionLength {
		return fmt.Errorf("account description is too long: %d > %d", len(a.Description), l.MaxAccountDescriptionLength)
	}
	if !utf8.ValidString(a.Name) || !utf8.ValidString(a.Description) {
		return errors.New("account info is not valid UTF-8")
	}
	return nil
}

func isAlphanumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}
