package store

import "strings"

const (
	indexKeySuffix = ".index"
	metaKeySuffix  = "_meta.msgpack"
)

// IndexKey returns the artifact key of a table's similarity index.
func IndexKey(tableID string) string {
	return "table_" + escapeTableID(tableID) + indexKeySuffix
}

// MetaKey returns the artifact key of a table's metadata records.
func MetaKey(tableID string) string {
	return "table_" + escapeTableID(tableID) + metaKeySuffix
}

// escapeTableID maps an opaque table id to a string safe for file names and
// object keys. Bytes outside [A-Za-z0-9._-] are percent-encoded, so the
// mapping is injective.
func escapeTableID(id string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', c == '.', c == '_', c == '-':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0F])
		}
	}
	return b.String()
}
