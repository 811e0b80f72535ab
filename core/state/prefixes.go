package state

var (
	balancePrefix = []byte("bank/balance/")
)

// Key joins a namespace prefix with the raw id bytes.
func Key(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return buf
}
