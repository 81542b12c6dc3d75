package badger

import (
	"github.com/poiesic/lectern/core"
)

// Key prefixes for different data types
const (
	vectorPrefix = "vec:"
	ledgerPrefix = "ledger:"
	dimensionKey = "meta:dimension"
	keySeparator = ":"
)

// makeVectorKey generates the key of one index entry.
// Format: vec:documentID:passageID
func makeVectorKey(documentID, passageID core.ID) []byte {
	return []byte(vectorPrefix + string(documentID) + keySeparator + string(passageID))
}

// makeVectorScanPrefix returns the prefix covering one document's entries,
// or every entry when documentID is empty.
func makeVectorScanPrefix(documentID core.ID) []byte {
	if documentID == "" {
		return []byte(vectorPrefix)
	}
	return []byte(vectorPrefix + string(documentID) + keySeparator)
}

// makeLedgerKey generates the key of a settled identifier.
func makeLedgerKey(key string) []byte {
	return []byte(ledgerPrefix + key)
}
