// Package plan maps provider prices onto the internal subscription tiers
// and their monthly credit quotas.
package plan

// Key identifies a subscription tier independent of the payment provider's
// price and product ids.
type Key string

const (
	KeyNone  Key = "none"
	KeyTier1 Key = "tier1"
	KeyTier2 Key = "tier2"
	KeyTier3 Key = "tier3"
)

// Rank orders plans for upgrade detection: none < tier1 < tier2 < tier3.
func (k Key) Rank() int {
	switch k {
	case KeyTier1:
		return 1
	case KeyTier2:
		return 2
	case KeyTier3:
		return 3
	default:
		return 0
	}
}

// Valid reports whether k is a known plan key.
func (k Key) Valid() bool {
	switch k {
	case KeyNone, KeyTier1, KeyTier2, KeyTier3:
		return true
	default:
		return false
	}
}
