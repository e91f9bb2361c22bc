package transaction

import (
	"fmt"
	"math/bits"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/io"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// Flag is an appendix bit in the transaction appendix set. Appendices are
// serialized in ascending flag order.
type Flag uint32

// Appendix flags.
const (
	MessageFlag Flag = 1 << iota
	EncryptedMessageFlag
	PublicKeyAnnouncementFlag
	PhasingFlag
	PrunablePlainMessageFlag

	knownFlags = MessageFlag | EncryptedMessageFlag | PublicKeyAnnouncementFlag |
		PhasingFlag | PrunablePlainMessageFlag
)

// bodyVersion is the only supported version of appendices and attachments.
const bodyVersion = 1

// maxFieldSize limits variable-length fields while decoding, precise limits
// are checked by Verify.
const maxFieldSize = 64 * 1024

// String implements the fmt.Stringer interface.
func (f Flag) String() string {
	switch f {
	case MessageFlag:
		return "Message"
	case EncryptedMessageFlag:
		return "EncryptedMessage"
	case PublicKeyAnnouncementFlag:
		return "PublicKeyAnnouncement"
	case PhasingFlag:
		return "Phasing"
	case PrunablePlainMessageFlag:
		return "PrunablePlainMessage"
	default:
		return fmt.Sprintf("Flag(0x%x)", uint32(f))
	}
}

// Body is a common part of attachments and appendices.
type Body interface {
	io.Serializable
	// Version returns the version of the serialized form.
	Version() uint8
	// Size returns the number of bytes this body occupies in the signed
	// transaction data.
	Size() int
	// FullSize is Size plus the size of prunable data (if any).
	FullSize() int
	// IsPhasable tells whether this body can be a part of a phased
	// transaction.
	IsPhasable() bool
	// Verify checks structural limits.
	Verify(l *limits.Limits) error
}

// Appendix is an optional typed sub-payload of a transaction, at most one of
// each kind.
type Appendix interface {
	Body
	Flag() Flag
}

// Attachment is the mandatory primary operation of a transaction.
type Attachment interface {
	Body
	Kind() Kind
}

// Encryptable appendices carry data that is encrypted with a symmetric seed
// before signing.
type Encryptable interface {
	Appendix
	IsEncrypted() bool
	Encrypt(seed []byte) error
	Decrypt(seed []byte) ([]byte, error)
}

// Prunable appendices sign only a commitment to their payload, the payload
// itself may be dropped after some retention period.
type Prunable interface {
	Appendix
	Commitment() util.Uint256
	HasPrunableData() bool
	encodePrunable(w *io.BinWriter)
	decodePrunable(r *io.BinReader)
}

func newAppendix(f Flag) (Appendix, error) {
	switch f {
	case MessageFlag:
		return &Message{}, nil
	case EncryptedMessageFlag:
		return &EncryptedMessage{}, nil
	case PublicKeyAnnouncementFlag:
		return &PublicKeyAnnouncement{}, nil
	case PhasingFlag:
		return &Phasing{}, nil
	case PrunablePlainMessageFlag:
		return &PrunablePlainMessage{}, nil
	default:
		return nil, fmt.Errorf("unknown appendix %s", f)
	}
}

// flagsOf returns a bit set of the given appendices.
func flagsOf(apps []Appendix) Flag {
	var res Flag
	for _, a := range apps {
		res |= a.Flag()
	}
	return res
}

// decodeAppendices reads appendices for every bit of flags in ascending
// order.
func decodeAppendices(r *io.BinReader, flags Flag) []Appendix {
	if flags&^knownFlags != 0 {
		r.Err = fmt.Errorf("unknown appendix flags 0x%x", uint32(flags&^knownFlags))
		return nil
	}
	res := make([]Appendix, 0, bits.OnesCount32(uint32(flags)))
	for f := Flag(1); f <= flags && f != 0; f <<= 1 {
		if flags&f == 0 {
			continue
		}
		a, err := newAppendix(f)
		if err != nil {
			r.Err = err
			return nil
		}
		a.DecodeBinary(r)
		if r.Err != nil {
			return nil
		}
		res = append(res, a)
	}
	return res
}

func readVersion(r *io.BinReader) {
	v := r.ReadB()
	if r.Err == nil && v != bodyVersion {
		r.Err = fmt.Errorf("%w %d", ErrInvalidVersion, v)
	}
}

func writeVersion(w *io.BinWriter) {
	w.WriteB(bodyVersion)
}

// emptyBody is embedded into attachments with no extra data.
type emptyBody struct{}

// Version implements the Body interface.
func (emptyBody) Version() uint8 { return bodyVersion }

// Size implements the Body interface.
func (emptyBody) Size() int { return 1 }

// FullSize implements the Body interface.
func (emptyBody) FullSize() int { return 1 }

// EncodeBinary implements the io.Serializable interface.
func (emptyBody) EncodeBinary(w *io.BinWriter) { writeVersion(w) }

// DecodeBinary implements the io.Serializable interface.
func (*emptyBody) DecodeBinary(r *io.BinReader) { readVersion(r) }

// Verify implements the Body interface.
func (emptyBody) Verify(*limits.Limits) error { return nil }
