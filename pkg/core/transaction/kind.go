package transaction

import "fmt"

// Kind is a (type, subtype) pair identifying the primary operation of a
// transaction.
type Kind struct {
	Type    uint8
	Subtype uint8
}

// Known transaction kinds.
var (
	OrdinaryPaymentKind         = Kind{0, 0}
	ArbitraryMessageKind        = Kind{1, 0}
	AliasAssignmentKind         = Kind{1, 1}
	PollCreationKind            = Kind{1, 2}
	VoteCastingKind             = Kind{1, 3}
	AccountInfoKind             = Kind{1, 5}
	AssetIssuanceKind           = Kind{2, 0}
	AssetTransferKind           = Kind{2, 1}
	EffectiveBalanceLeasingKind = Kind{4, 0}
	SetPhasingOnlyKind          = Kind{4, 1}
)

var kindNames = map[Kind]string{
	OrdinaryPaymentKind:         "OrdinaryPayment",
	ArbitraryMessageKind:        "ArbitraryMessage",
	AliasAssignmentKind:         "AliasAssignment",
	PollCreationKind:            "PollCreation",
	VoteCastingKind:             "VoteCasting",
	AccountInfoKind:             "AccountInfo",
	AssetIssuanceKind:           "AssetIssuance",
	AssetTransferKind:           "AssetTransfer",
	EffectiveBalanceLeasingKind: "EffectiveBalanceLeasing",
	SetPhasingOnlyKind:          "SetPhasingOnly",
}

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown(%d,%d)", k.Type, k.Subtype)
}

// newAttachment returns an empty attachment for the given kind.
func newAttachment(k Kind) (Attachment, error) {
	switch k {
	case OrdinaryPaymentKind:
		return &OrdinaryPayment{}, nil
	case ArbitraryMessageKind:
		return &ArbitraryMessage{}, nil
	case AliasAssignmentKind:
		return &AliasAssignment{}, nil
	case PollCreationKind:
		return &PollCreation{}, nil
	case VoteCastingKind:
		return &VoteCasting{}, nil
	case AccountInfoKind:
		return &AccountInfo{}, nil
	case AssetIssuanceKind:
		return &AssetIssuance{}, nil
	case AssetTransferKind:
		return &AssetTransfer{}, nil
	case EffectiveBalanceLeasingKind:
		return &EffectiveBalanceLeasing{}, nil
	case SetPhasingOnlyKind:
		return &SetPhasingOnly{}, nil
	default:
		return nil, fmt.Errorf("unknown transaction kind %s", k)
	}
}
