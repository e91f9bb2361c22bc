/*
Package limits contains structural limits for transactions and their
appendices. They are consumed by the transaction model and validation code and
can be overridden by the protocol configuration.
*/
package limits

const (
	// MaxBalance is the upper bound for any single amount or account balance.
	MaxBalance = 100_000_000 * 100_000_000 * 10
	// MaxAssetQuantity is the maximum total quantity of an asset.
	MaxAssetQuantity = 1_000_000_000 * 100_000_000
)

// Limits is a set of structural transaction limits. Zero values are not
// valid, use Default to get a filled one.
type Limits struct {
	// MaxPayloadSize is the maximum total size of the attachment and all
	// appendices of a single transaction.
	MaxPayloadSize int `yaml:"MaxPayloadSize"`
	// MaxDeadline is the maximum transaction deadline in minutes.
	MaxDeadline uint16 `yaml:"MaxDeadline"`

	MaxMessageLength          int `yaml:"MaxMessageLength"`
	MaxEncryptedMessageLength int `yaml:"MaxEncryptedMessageLength"`
	MaxPrunableMessageLength  int `yaml:"MaxPrunableMessageLength"`

	MaxAliasLength    int `yaml:"MaxAliasLength"`
	MaxAliasURILength int `yaml:"MaxAliasURILength"`

	MaxAccountNameLength        int `yaml:"MaxAccountNameLength"`
	MaxAccountDescriptionLength int `yaml:"MaxAccountDescriptionLength"`

	MaxPollNameLength        int    `yaml:"MaxPollNameLength"`
	MaxPollDescriptionLength int    `yaml:"MaxPollDescriptionLength"`
	MinPollOptionCount       int    `yaml:"MinPollOptionCount"`
	MaxPollOptionCount       int    `yaml:"MaxPollOptionCount"`
	MaxPollOptionLength      int    `yaml:"MaxPollOptionLength"`
	MaxPollDuration          uint32 `yaml:"MaxPollDuration"`
	MaxVoteValue             int8   `yaml:"MaxVoteValue"`

	MinAssetNameLength        int   `yaml:"MinAssetNameLength"`
	MaxAssetNameLength        int   `yaml:"MaxAssetNameLength"`
	MaxAssetDescriptionLength int   `yaml:"MaxAssetDescriptionLength"`
	MaxAssetDecimals          uint8 `yaml:"MaxAssetDecimals"`

	MaxPhasingWhitelistSize int    `yaml:"MaxPhasingWhitelistSize"`
	MaxPhasingDuration      uint32 `yaml:"MaxPhasingDuration"`

	MinLeasingPeriod uint16 `yaml:"MinLeasingPeriod"`
	MaxLeasingPeriod uint16 `yaml:"MaxLeasingPeriod"`
}

// Default returns the standard set of limits.
func Default() Limits {
	return Limits{
		MaxPayloadSize: 44 * 1024,
		MaxDeadline:    1440,

		MaxMessageLength:          1000,
		MaxEncryptedMessageLength: 1000,
		MaxPrunableMessageLength:  42 * 1024,

		MaxAliasLength:    100,
		MaxAliasURILength: 1000,

		MaxAccountNameLength:        100,
		MaxAccountDescriptionLength: 1000,

		MaxPollNameLength:        100,
		MaxPollDescriptionLength: 1000,
		MinPollOptionCount:       2,
		MaxPollOptionCount:       100,
		MaxPollOptionLength:      100,
		MaxPollDuration:          14 * 1440,
		MaxVoteValue:             1,

		MinAssetNameLength:        3,
		MaxAssetNameLength:        10,
		MaxAssetDescriptionLength: 1000,
		MaxAssetDecimals:          8,

		MaxPhasingWhitelistSize: 10,
		MaxPhasingDuration:      14 * 1440,

		MinLeasingPeriod: 1440,
		MaxLeasingPeriod: 65535,
	}
}

// ApplyDefaults fills zero fields of l with default values.
func (l *Limits) ApplyDefaults() {
	d := Default()
	setInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	setInt(&l.MaxPayloadSize, d.MaxPayloadSize)
	setInt(&l.MaxMessageLength, d.MaxMessageLength)
	setInt(&l.MaxEncryptedMessageLength, d.MaxEncryptedMessageLength)
	setInt(&l.MaxPrunableMessageLength, d.MaxPrunableMessageLength)
	setInt(&l.MaxAliasLength, d.MaxAliasLength)
	setInt(&l.MaxAliasURILength, d.MaxAliasURILength)
	setInt(&l.MaxAccountNameLength, d.MaxAccountNameLength)
	setInt(&l.MaxAccountDescriptionLength, d.MaxAccountDescriptionLength)
	setInt(&l.MaxPollNameLength, d.MaxPollNameLength)
	setInt(&l.MaxPollDescriptionLength, d.MaxPollDescriptionLength)
	setInt(&l.MinPollOptionCount, d.MinPollOptionCount)
	setInt(&l.MaxPollOptionCount, d.MaxPollOptionCount)
	setInt(&l.MaxPollOptionLength, d.MaxPollOptionLength)
	setInt(&l.MinAssetNameLength, d.MinAssetNameLength)
	setInt(&l.MaxAssetNameLength, d.MaxAssetNameLength)
	setInt(&l.MaxAssetDescriptionLength, d.MaxAssetDescriptionLength)
	setInt(&l.MaxPhasingWhitelistSize, d.MaxPhasingWhitelistSize)
	if l.MaxDeadline == 0 {
		l.MaxDeadline = d.MaxDeadline
	}
	if l.MaxPollDuration == 0 {
		l.MaxPollDuration = d.MaxPollDuration
	}
	if l.MaxVoteValue == 0 {
		l.MaxVoteValue = d.MaxVoteValue
	}
	if l.MaxAssetDecimals == 0 {
		l.MaxAssetDecimals = d.MaxAssetDecimals
	}
	if l.MaxPhasingDuration == 0 {
		l.MaxPhasingDuration = d.MaxPhasingDuration
	}
	if l.MinLeasingPeriod == 0 {
		l.MinLeasingPeriod = d.MinLeasingPeriod
	}
	if l.MaxLeasingPeriod == 0 {
		l.MaxLeasingPeriod = d.MaxLeasingPeriod
	}
}
