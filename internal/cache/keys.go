package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Key namespaces. Namespaced keys keep unrelated domains from
// colliding in the shared tier.
const (
	NSAccount = "account"
	NSEvents  = "events"
	NSTxCount = "txcount"
	NSPrice   = "price"
	NSWallet  = "wallet"
)

// Key builds a namespaced cache key (namespace:part:part...).
func Key(namespace string, parts ...string) string {
	return namespace + ":" + strings.Join(parts, ":")
}

// ArgsKey builds a deterministic key from a namespace, an identifier
// and arbitrary call arguments. Arguments are JSON-encoded and hashed
// so the key stays short and stable regardless of argument size.
func ArgsKey(namespace, id string, args ...any) string {
	if len(args) == 0 {
		return Key(namespace, id)
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		// Marshal of plain values cannot realistically fail; fall
		// back to the unhashed form rather than panic.
		return Key(namespace, id)
	}
	sum := sha256.Sum256(encoded)
	return Key(namespace, id, hex.EncodeToString(sum[:8]))
}
