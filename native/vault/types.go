package vault

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
)

// Vault custodies one partner's collateral and tracks how much of it backs
// currently outstanding points. All collateral values are whole collateral
// units; point values are whole points.
type Vault struct {
	ID                     [32]byte
	Partner                [20]byte
	CollateralBalance      uint64
	ReservedForBacking     uint64
	AvailableForWithdrawal uint64
	LifetimeQuotaPoints    uint64
	OutstandingPoints      uint64
	Locked                 bool
	CreatedAt              uint64
}

// AuthToken binds one partner identity to one vault and carries the per-day
// issuance window.
type AuthToken struct {
	Partner           [20]byte
	VaultID           [32]byte
	DailyQuotaPoints  uint64
	DailyQuotaUsed    uint64
	LastQuotaResetDay uint64
	Paused            bool
}

// QuotaState is the day-aware view of a token's issuance window.
type QuotaState struct {
	DailyQuotaPoints uint64
	DailyQuotaUsed   uint64
	Paused           bool
}

var vaultIDSalt = []byte("nectar/vault/v1")

// DeriveVaultID computes the deterministic vault identifier for a partner.
func DeriveVaultID(partner [20]byte) [32]byte {
	var id [32]byte
	copy(id[:], crypto.Keccak256(vaultIDSalt, partner[:]))
	return id
}

// ParseVaultID decodes a hex-encoded vault identifier.
func ParseVaultID(encoded string) ([32]byte, error) {
	var id [32]byte
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, ErrVaultNotFound
	}
	copy(id[:], raw)
	return id, nil
}

var vaultIndexKey = []byte("vault/index")

func vaultKey(id [32]byte) []byte {
	return []byte("vault/record/" + hex.EncodeToString(id[:]))
}

func tokenKey(id [32]byte) []byte {
	return []byte("vault/token/" + hex.EncodeToString(id[:]))
}

type storedVault struct {
	ID                     [32]byte
	Partner                [20]byte
	CollateralBalance      uint64
	ReservedForBacking     uint64
	AvailableForWithdrawal uint64
	LifetimeQuotaPoints    uint64
	OutstandingPoints      uint64
	Locked                 bool
	CreatedAt              uint64
}

type storedToken struct {
	Partner           [20]byte
	VaultID           [32]byte
	DailyQuotaPoints  uint64
	DailyQuotaUsed    uint64
	LastQuotaResetDay uint64
	Paused            bool
}

func (v *Vault) toStored() storedVault {
	return storedVault(*v)
}

func (s storedVault) toVault() *Vault {
	v := Vault(s)
	return &v
}

func (t *AuthToken) toStored() storedToken {
	return storedToken(*t)
}

func (s storedToken) toToken() *AuthToken {
	t := AuthToken(s)
	return &t
}
