package badger

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/poiesic/querysafe/core"
)

// Key prefixes for different data types
const (
	documentPrefix     = "docrec"
	documentHashPrefix = "dochash"
	documentIDSeq      = "docrecseq"
	tenantPrefix       = "tenrec"
	conversationPrefix = "convrec"
	messagePrefix      = "msgrec"
	messageIDSeq       = "msgrecseq"
)

// Tenant IDs are restricted to [A-Za-z0-9_-], so ':' is a safe separator
// after them. Free-form components that follow are length prefixed.

// makeTenantScope returns "prefix:tenant:".
func makeTenantScope(prefix string, tenant core.TenantID) []byte {
	buf := make([]byte, 0, len(prefix)+len(tenant)+2)
	buf = append(buf, prefix...)
	buf = append(buf, ':')
	buf = append(buf, tenant...)
	return append(buf, ':')
}

// makeDocumentKey generates a key for a document.
// Format: prefix:tenant:id. The ID is big endian so key order is upload order.
func makeDocumentKey(tenant core.TenantID, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(makeTenantScope(documentPrefix, tenant), uint64(id))
}

// makeDocumentHashKey generates a key for the content hash index.
// Format: prefix:tenant:hash
func makeDocumentHashKey(tenant core.TenantID, hash string) []byte {
	return append(makeTenantScope(documentHashPrefix, tenant), hash...)
}

// tenantFromScopedKey extracts the tenant component of a "prefix:tenant:..." key.
func tenantFromScopedKey(prefix string, key []byte) (core.TenantID, bool) {
	rest := key[len(prefix)+1:]
	end := bytes.IndexByte(rest, ':')
	if end <= 0 {
		return "", false
	}
	return core.TenantID(rest[:end]), true
}

// makeTenantKey generates a key for tenant state.
func makeTenantKey(tenant core.TenantID) []byte {
	return append([]byte(tenantPrefix+":"), tenant...)
}

// makeConversationKey generates a key for a conversation.
// Format: prefix:tenant:conversationID
func makeConversationKey(tenant core.TenantID, id string) []byte {
	return append(makeTenantScope(conversationPrefix, tenant), id...)
}

// makePartialMessageKey generates the prefix shared by every message of a
// conversation. Format: prefix:tenant:len(conversation):conversation
func makePartialMessageKey(tenant core.TenantID, conversation string) []byte {
	buf := makeTenantScope(messagePrefix, tenant)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(conversation)))
	return append(buf, conversation...)
}

// makeMessageKey generates a composite key for a message.
// Format: partial:timestamp:id
func makeMessageKey(tenant core.TenantID, conversation string, timestamp time.Time, id core.ID) []byte {
	buf := makePartialMessageKey(tenant, conversation)
	// Write in BigEndian order so lexicographic sort works correctly
	buf = binary.BigEndian.AppendUint64(buf, uint64(timestamp.UnixMicro()))
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}
