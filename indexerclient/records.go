package indexerclient

// UpdateRecord is the tagged variant the unshieldedTransactions
// subscription yields (spec.md §4.6): either a Transaction record or a
// cursor-advancing Progress record.
type UpdateRecord struct {
	// Kind discriminates which fields are populated.
	Kind RecordKind

	// Transaction fields (Kind == KindTransaction).
	ID            uint64
	TxHash        [32]byte
	CreatedUTXOs  []CreatedUTXO
	SpentUTXORefs []SpentRef
	BlockHeight   uint64
	Timestamp     int64
	Finalized     bool
	ForkOf        *uint64 // non-nil when this record signals a rollback to the given id

	// Progress fields (Kind == KindProgress).
	LastID uint64
}

// RecordKind discriminates the UpdateRecord tagged variant.
type RecordKind uint8

const (
	KindTransaction RecordKind = iota
	KindProgress
)

// CreatedUTXO is one output created by a Transaction record.
type CreatedUTXO struct {
	OutputIndex uint32
	Owner       string // bech32m address string, network already embedded
	Token       [32]byte
	Value       uint64
}

// SpentRef identifies a UTXO consumed by a Transaction record.
type SpentRef struct {
	IntentHash  [32]byte
	OutputIndex uint32
}
