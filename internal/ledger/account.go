package ledger

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeHolder AccountScope = iota
	AccountScopeSystem
)

// Symbol identifies a token issued on the book ("USDT", "yvUSDT").
type Symbol string

// System account names
const (
	// SystemIssuance is the contra account every mint is credited to and
	// every burn is debited from. Its balance is -totalSupply.
	SystemIssuance = "issuance"
)

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // holder UUID, or the system account name
	Token    Symbol
}

// NewHolderAccountKey creates a key for a holder (user, vault, strategy)
func NewHolderAccountKey(holder uuid.UUID, token Symbol) AccountKey {
	return AccountKey{
		Scope:    AccountScopeHolder,
		EntityID: holder,
		Token:    token,
	}
}

// NewSystemAccountKey creates a key for system accounts. Names longer
// than 16 bytes are truncated.
func NewSystemAccountKey(name string, token Symbol) AccountKey {
	var entityID [16]byte
	copy(entityID[:], []byte(name))
	return AccountKey{
		Scope:    AccountScopeSystem,
		EntityID: entityID,
		Token:    token,
	}
}

// Holder returns the holder id for holder-scoped keys.
func (k AccountKey) Holder() (uuid.UUID, bool) {
	if k.Scope != AccountScopeHolder {
		return uuid.Nil, false
	}
	return uuid.UUID(k.EntityID), true
}

func (k AccountKey) systemName() string {
	return string(bytes.TrimRight(k.EntityID[:], "\x00"))
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeHolder:
		return fmt.Sprintf("holder:%s:%s", uuid.UUID(k.EntityID).String(), k.Token)
	case AccountScopeSystem:
		return fmt.Sprintf("system:%s:%s", k.systemName(), k.Token)
	}
	return "unknown"
}

// ParseAccountPath is the inverse of AccountPath.
func ParseAccountPath(path string) (AccountKey, error) {
	parts := strings.SplitN(path, ":", 3)
	if len(parts) != 3 || parts[2] == "" {
		return AccountKey{}, fmt.Errorf("malformed account path %q", path)
	}

	switch parts[0] {
	case "holder":
		id, err := uuid.Parse(parts[1])
		if err != nil {
			return AccountKey{}, fmt.Errorf("account path %q: %w", path, err)
		}
		return NewHolderAccountKey(id, Symbol(parts[2])), nil
	case "system":
		if len(parts[1]) == 0 || len(parts[1]) > 16 {
			return AccountKey{}, fmt.Errorf("account path %q: bad system name", path)
		}
		return NewSystemAccountKey(parts[1], Symbol(parts[2])), nil
	default:
		return AccountKey{}, fmt.Errorf("account path %q: unknown scope %q", path, parts[0])
	}
}
