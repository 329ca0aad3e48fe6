package events

import (
	"encoding/hex"
	"strconv"

	"nectar/core/types"
)

const (
	// TypeVaultOnboarded is emitted when a partner vault and its token are created.
	TypeVaultOnboarded = "vault.onboarded"
	// TypePointsIssued is emitted when the coordinator mints against a vault quota.
	TypePointsIssued = "vault.points_issued"
	// TypeCollateralWithdrawn is emitted after a successful collateral withdrawal.
	TypeCollateralWithdrawn = "vault.collateral_withdrawn"
	// TypeRevenueCredited is emitted when redemption proceeds return to a vault.
	TypeRevenueCredited = "vault.revenue_credited"
	// TypeBackingReleased is emitted when a burn releases reserved collateral.
	TypeBackingReleased = "vault.backing_released"
	// TypeVaultLocked is emitted when a vault is administratively frozen.
	TypeVaultLocked = "vault.locked"
	// TypeVaultUnlocked is emitted when an administrative freeze is lifted.
	TypeVaultUnlocked = "vault.unlocked"
	// TypeTokenPaused is emitted when an authorization token is paused.
	TypeTokenPaused = "vault.token_paused"
	// TypeTokenResumed is emitted when an authorization token resumes.
	TypeTokenResumed = "vault.token_resumed"
)

func vaultAttrs(id [32]byte, partner [20]byte) map[string]string {
	return map[string]string{
		"vault":   hex.EncodeToString(id[:]),
		"partner": hex.EncodeToString(partner[:]),
	}
}

// VaultOnboarded announces a newly created vault together with its derived quotas.
type VaultOnboarded struct {
	ID                  [32]byte
	Partner             [20]byte
	CollateralDeposit   uint64
	LifetimeQuotaPoints uint64
	DailyQuotaPoints    uint64
}

func (VaultOnboarded) EventType() string { return TypeVaultOnboarded }

// Event renders the onboarding event.
func (e VaultOnboarded) Event() *types.Event {
	attrs := vaultAttrs(e.ID, e.Partner)
	attrs["collateral"] = strconv.FormatUint(e.CollateralDeposit, 10)
	attrs["lifetimeQuota"] = strconv.FormatUint(e.LifetimeQuotaPoints, 10)
	attrs["dailyQuota"] = strconv.FormatUint(e.DailyQuotaPoints, 10)
	return &types.Event{Type: TypeVaultOnboarded, Attributes: attrs}
}

// PointsIssued records a quota-gated mint with the collateral newly reserved
// to back it.
type PointsIssued struct {
	ID              [32]byte
	Partner         [20]byte
	Holder          [20]byte
	Amount          uint64
	BackingReserved uint64
	Outstanding     uint64
}

func (PointsIssued) EventType() string { return TypePointsIssued }

// Event renders the issuance event.
func (e PointsIssued) Event() *types.Event {
	attrs := vaultAttrs(e.ID, e.Partner)
	attrs["holder"] = hex.EncodeToString(e.Holder[:])
	attrs["amount"] = strconv.FormatUint(e.Amount, 10)
	attrs["backingReserved"] = strconv.FormatUint(e.BackingReserved, 10)
	attrs["outstanding"] = strconv.FormatUint(e.Outstanding, 10)
	return &types.Event{Type: TypePointsIssued, Attributes: attrs}
}

// CollateralWithdrawn records a safety-buffered withdrawal of surplus collateral.
type CollateralWithdrawn struct {
	ID        [32]byte
	Partner   [20]byte
	Amount    uint64
	Remaining uint64
}

func (CollateralWithdrawn) EventType() string { return TypeCollateralWithdrawn }

// Event renders the withdrawal event.
func (e CollateralWithdrawn) Event() *types.Event {
	attrs := vaultAttrs(e.ID, e.Partner)
	attrs["amount"] = strconv.FormatUint(e.Amount, 10)
	attrs["remaining"] = strconv.FormatUint(e.Remaining, 10)
	return &types.Event{Type: TypeCollateralWithdrawn, Attributes: attrs}
}

// RevenueCredited records redemption proceeds flowing back into a vault.
type RevenueCredited struct {
	ID      [32]byte
	Partner [20]byte
	Amount  uint64
	Balance uint64
}

func (RevenueCredited) EventType() string { return TypeRevenueCredited }

// Event renders the revenue credit event.
func (e RevenueCredited) Event() *types.Event {
	attrs := vaultAttrs(e.ID, e.Partner)
	attrs["amount"] = strconv.FormatUint(e.Amount, 10)
	attrs["balance"] = strconv.FormatUint(e.Balance, 10)
	return &types.Event{Type: TypeRevenueCredited, Attributes: attrs}
}

// BackingReleased records reserved collateral freed by a burn.
type BackingReleased struct {
	ID          [32]byte
	Partner     [20]byte
	Amount      uint64
	Outstanding uint64
	Reserved    uint64
}

func (BackingReleased) EventType() string { return TypeBackingReleased }

// Event renders the release event.
func (e BackingReleased) Event() *types.Event {
	attrs := vaultAttrs(e.ID, e.Partner)
	attrs["amount"] = strconv.FormatUint(e.Amount, 10)
	attrs["outstanding"] = strconv.FormatUint(e.Outstanding, 10)
	attrs["reserved"] = strconv.FormatUint(e.Reserved, 10)
	return &types.Event{Type: TypeBackingReleased, Attributes: attrs}
}

// VaultFlag captures lock/pause style administrative transitions.
type VaultFlag struct {
	Type    string
	ID      [32]byte
	Partner [20]byte
	Caller  [20]byte
}

func (e VaultFlag) EventType() string { return e.Type }

// Event renders the administrative flag event.
func (e VaultFlag) Event() *types.Event {
	attrs := vaultAttrs(e.ID, e.Partner)
	attrs["caller"] = hex.EncodeToString(e.Caller[:])
	return &types.Event{Type: e.Type, Attributes: attrs}
}
