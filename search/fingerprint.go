package search

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// computeFingerprint generates a stable hash of the document slice.
// The fingerprint changes when document content changes, enabling
// IndexService to skip services whose operations are unchanged.
func computeFingerprint(docs []OperationDoc) string {
	h := sha256.New()

	for _, doc := range docs {
		h.Write([]byte(doc.ID))
		h.Write([]byte{0}) // separator

		h.Write([]byte(doc.Service))
		h.Write([]byte{0})
		h.Write([]byte(doc.Name))
		h.Write([]byte{0})
		h.Write([]byte(doc.Description))
		h.Write([]byte{0})

		// Params keep declaration order; reordering them is a change.
		h.Write([]byte(strings.Join(doc.Params, "\x01")))
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
