package txtype

import (
	"strconv"
	"strings"

	"github.com/nspcc-dev/ledgerpool/pkg/config/limits"
	"github.com/nspcc-dev/ledgerpool/pkg/core/blockchainer"
	"github.com/nspcc-dev/ledgerpool/pkg/core/state"
	"github.com/nspcc-dev/ledgerpool/pkg/core/transaction"
	"github.com/nspcc-dev/ledgerpool/pkg/util"
)

// Duplicate key prefixes.
const (
	accountControlKey = "accountControl:"
	accountInfoKey    = "accountInfo:"
	aliasKey          = "alias:"
	leasingKey        = "leasing:"
	voteKey           = "vote:"
)

// All behaviors sorted by kind, keep 'em this way, please.
func defaultBehaviors() []*Behavior {
	return []*Behavior{
		{Kind: transaction.OrdinaryPaymentKind, MustHaveRecipient: true},
		{Kind: transaction.ArbitraryMessageKind, CanHaveRecipient: true, ZeroAmount: true,
			Check: checkArbitraryMessage},
		{Kind: transaction.AliasAssignmentKind, ZeroAmount: true,
			Validate: validateAlias, Apply: applyAlias, DuplicateKeys: aliasKeys},
		{Kind: transaction.PollCreationKind, ZeroAmount: true,
			Validate: validatePoll, Apply: applyPoll},
		{Kind: transaction.VoteCastingKind, ZeroAmount: true,
			Validate: validateVote, Apply: applyVote, DuplicateKeys: voteKeys},
		{Kind: transaction.AccountInfoKind, ZeroAmount: true,
			Apply: applyAccountInfo, DuplicateKeys: accountInfoKeys},
		{Kind: transaction.AssetIssuanceKind, ZeroAmount: true,
			Apply: applyAssetIssuance},
		{Kind: transaction.AssetTransferKind, MustHaveRecipient: true, ZeroAmount: true,
			Validate: validateAssetTransfer, Apply: applyAssetTransfer},
		{Kind: transaction.EffectiveBalanceLeasingKind, MustHaveRecipient: true, ZeroAmount: true,
			Check: checkLeasing, Validate: validateLeasing, Apply: applyLeasing, DuplicateKeys: leasingKeys},
		{Kind: transaction.SetPhasingOnlyKind, ZeroAmount: true,
			Validate: validateSetPhasingOnly, Apply: applySetPhasingOnly, DuplicateKeys: setPhasingOnlyKeys},
	}
}

func checkArbitraryMessage(tx *transaction.Transaction, _ *limits.Limits) error {
	for _, f := range []transaction.Flag{
		transaction.MessageFlag,
		transaction.EncryptedMessageFlag,
		transaction.PrunablePlainMessageFlag,
	} {
		if tx.GetAppendix(f) != nil {
			return nil
		}
	}
	return transaction.NotValidf("message transaction without a message")
}

func validateAlias(l blockchainer.Ledger, _ uint32, tx *transaction.Transaction) error {
	att := tx.Attachment.(*transaction.AliasAssignment)
	a := l.GetAlias(strings.ToLower(att.Name))
	if a != nil && !a.Owner.Equals(tx.Sender()) {
		return transaction.NotCurrentlyValidf("alias %s is owned by another account", att.Name)
	}
	return nil
}

func applyAlias(w blockchainer.StateWriter, _ uint32, tx *transaction.Transaction, sender, _ util.Uint160) error {
	att := tx.Attachment.(*transaction.AliasAssignment)
	w.PutAlias(&state.Alias{
		Name:  strings.ToLower(att.Name),
		URI:   att.URI,
		Owner: sender,
	})
	return nil
}

func aliasKeys(tx *transaction.Transaction, _ *state.PhasingControl) []string {
	att := tx.Attachment.(*transaction.AliasAssignment)
	return []string{aliasKey + strings.ToLower(att.Name)}
}

func validatePoll(l blockchainer.Ledger, height uint32, tx *transaction.Transaction) error {
	att := tx.Attachment.(*transaction.PollCreation)
	if att.FinishHeight <= height {
		return transaction.NotCurrentlyValidf("poll finish height %d is not above current height %d", att.FinishHeight, height)
	}
	if att.HoldingAsset != 0 && l.GetAsset(att.HoldingAsset) == nil {
		return transaction.NotCurrentlyValidf("poll asset %d doesn't exist", att.HoldingAsset)
	}
	return nil
}

func applyPoll(w blockchainer.StateWriter, _ uint32, tx *transaction.Transaction, sender, _ util.Uint160) error {
	att := tx.Attachment.(*transaction.PollCreation)
	w.PutPoll(&state.Poll{
		ID:                 tx.ID(),
		Creator:            sender,
		Name:               att.Name,
		Options:            att.Options,
		FinishHeight:       att.FinishHeight,
		VotingModel:        int8(att.VotingModel),
		MinNumberOfOptions: att.MinNumberOfOptions,
		MaxNumberOfOptions: att.MaxNumberOfOptions,
		MinRangeValue:      att.MinRangeValue,
		MaxRangeValue:      att.MaxRangeValue,
		MinBalance:         att.MinBalance,
		HoldingAsset:       att.HoldingAsset,
	})
	return nil
}

func validateVote(l blockchainer.Ledger, height uint32, tx *transaction.Transaction) error {
	att := tx.Attachment.(*transaction.VoteCasting)
	p := l.GetPoll(att.PollID)
	if p == nil {
		return transaction.NotCurrentlyValidf("poll %d doesn't exist", att.PollID)
	}
	if p.IsFinished(height) {
		return transaction.NotValidf("poll %d is finished", att.PollID)
	}
	if len(att.Votes) != len(p.Options) {
		return transaction.NotValidf("%d votes for %d options", len(att.Votes), len(p.Options))
	}
	var n int
	for _, v := range att.Votes {
		if v == transaction.NoVote {
			continue
		}
		if v < p.MinRangeValue || v > p.MaxRangeValue {
			return transaction.NotValidf("vote %d is out of range [%d, %d]", v, p.MinRangeValue, p.MaxRangeValue)
		}
		n++
	}
	if n < int(p.MinNumberOfOptions) || n > int(p.MaxNumberOfOptions) {
		return transaction.NotValidf("%d options voted, expected [%d, %d]", n, p.MinNumberOfOptions, p.MaxNumberOfOptions)
	}
	if l.HasVoted(att.PollID, tx.Sender()) {
		return transaction.NotValidf("double vote in poll %d", att.PollID)
	}
	return nil
}

func applyVote(w blockchainer.StateWriter, _ uint32, tx *transaction.Transaction, sender, _ util.Uint160) error {
	w.AddVote(tx.Attachment.(*transaction.VoteCasting).PollID, sender)
	return nil
}

func voteKeys(tx *transaction.Transaction, _ *state.PhasingControl) []string {
	att := tx.Attachment.(*transaction.VoteCasting)
	return []string{voteKey + tx.Sender().String() + ":" + strconv.FormatUint(att.PollID, 10)}
}

func applyAccountInfo(w blockchainer.StateWriter, _ uint32, tx *transaction.Transaction, sender, _ util.Uint160) error {
	att := tx.Attachment.(*transaction.AccountInfo)
	w.SetAccountInfo(sender, att.Name, att.Description)
	return nil
}

func accountInfoKeys(tx *transaction.Transaction, _ *state.PhasingControl) []string {
	return []string{accountInfoKey + tx.Sender().String()}
}

func applyAssetIssuance(w blockchainer.StateWriter, height uint32, tx *transaction.Transaction, sender, _ util.Uint160) error {
	att := tx.Attachment.(*transaction.AssetIssuance)
	w.PutAsset(&state.Asset{
		ID:          tx.ID(),
		Issuer:      sender,
		Name:        att.Name,
		Description: att.Description,
		Quantity:    att.Quantity,
		Decimals:    att.Decimals,
		Height:      height,
	})
	return w.AddAssetBalance(sender, tx.ID(), att.Quantity)
}

func validateAssetTransfer(l blockchainer.Ledger, _ uint32, tx *transaction.Transaction) error {
	att := tx.Attachment.(*transaction.AssetTransfer)
	a := l.GetAsset(att.AssetID)
	if a == nil {
		return transaction.NotCurrentlyValidf("asset %d doesn't exist", att.AssetID)
	}
	if att.Quantity > a.Quantity {
		return transaction.NotValidf("quantity %d exceeds asset total %d", att.Quantity, a.Quantity)
	}
	if b := l.GetAssetBalance(tx.Sender(), att.AssetID); b < att.Quantity {
		return transaction.NotCurrentlyValidf("insufficient asset balance: %d < %d", b, att.Quantity)
	}
	return nil
}

func applyAssetTransfer(w blockchainer.StateWriter, _ uint32, tx *transaction.Transaction, sender, recipient util.Uint160) error {
	att := tx.Attachment.(*transaction.AssetTransfer)
	if err := w.AddAssetBalance(sender, att.AssetID, -att.Quantity); err != nil {
		return err
	}
	return w.AddAssetBalance(recipient, att.AssetID, att.Quantity)
}

func checkLeasing(tx *transaction.Transaction, _ *limits.Limits) error {
	if tx.Recipient.Equals(tx.Sender()) {
		return transaction.NotValidf("can't lease to self")
	}
	return nil
}

func validateLeasing(l blockchainer.Ledger, _ uint32, tx *transaction.Transaction) error {
	acc := l.GetAccount(tx.Recipient)
	if acc == nil || acc.PublicKey == nil {
		if tx.GetAppendix(transaction.PublicKeyAnnouncementFlag) == nil {
			return transaction.NotCurrentlyValidf("lessee %s has no public key", tx.Recipient.StringBE())
		}
	}
	return nil
}

func applyLeasing(w blockchainer.StateWriter, height uint32, tx *transaction.Transaction, sender, recipient util.Uint160) error {
	att := tx.Attachment.(*transaction.EffectiveBalanceLeasing)
	w.PutLease(&state.Lease{
		Lessor:     sender,
		Lessee:     recipient,
		FromHeight: height + 1,
		ToHeight:   height + 1 + uint32(att.Period),
	})
	return nil
}

func leasingKeys(tx *transaction.Transaction, control *state.PhasingControl) []string {
	res := []string{leasingKey + tx.Sender().String()}
	if control != nil {
		res = append(res, accountControlKey+tx.Sender().String())
	}
	return res
}

func validateSetPhasingOnly(l blockchainer.Ledger, _ uint32, tx *transaction.Transaction) error {
	att := tx.Attachment.(*transaction.SetPhasingOnly)
	if att.RemovesControl() && l.GetPhasingControl(tx.Sender()) == nil {
		return transaction.NotCurrentlyValidf("account has no phasing control to remove")
	}
	return nil
}

func applySetPhasingOnly(w blockchainer.StateWriter, _ uint32, tx *transaction.Transaction, sender, _ util.Uint160) error {
	att := tx.Attachment.(*transaction.SetPhasingOnly)
	if att.RemovesControl() {
		w.SetPhasingControl(sender, nil)
		return nil
	}
	w.SetPhasingControl(sender, &state.PhasingControl{
		Account:     sender,
		VotingModel: int8(att.Params.VotingModel),
		Quorum:      att.Params.Quorum,
		MinBalance:  att.Params.MinBalance,
		Whitelist:   att.Params.Whitelist,
		MaxFees:     att.MaxFees,
		MinDuration: att.MinDuration,
		MaxDuration: att.MaxDuration,
	})
	return nil
}

func setPhasingOnlyKeys(tx *transaction.Transaction, _ *state.PhasingControl) []string {
	return []string{accountControlKey + tx.Sender().String()}
}
