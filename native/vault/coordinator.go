package vault

import (
	"errors"
	"fmt"
	"math"

	"nectar/core/events"
	"nectar/native/common"
	"nectar/native/points"
)

// IssueResult reports the state observed immediately after a quota-gated
// mint commits.
type IssueResult struct {
	Receipt         points.Receipt
	BackingReserved uint64
	Outstanding     uint64
	DailyQuotaUsed  uint64
}

// WithdrawResult reports the collateral position after a withdrawal.
type WithdrawResult struct {
	Withdrawn              uint64
	CollateralBalance      uint64
	AvailableForWithdrawal uint64
}

// Onboard creates a vault and its authorization token for a new partner. The
// lifetime quota rounds the deposit down into whole units before applying the
// conversion rate; the daily window is a basis-point fraction of the lifetime
// quota.
func (e *Engine) Onboard(partner [20]byte, collateralDeposit uint64) (Vault, AuthToken, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.params.Load()
	if err != nil {
		return Vault{}, AuthToken{}, fmt.Errorf("vault: load params: %w", err)
	}
	if collateralDeposit < cfg.MinimumVaultDeposit {
		return Vault{}, AuthToken{}, ErrBelowMinimumDeposit
	}
	if _, exists := e.byPartner[partner]; exists {
		return Vault{}, AuthToken{}, ErrVaultExists
	}

	lifetime, err := lifetimeQuota(collateralDeposit, cfg.PointsPerCollateralUnit)
	if err != nil {
		return Vault{}, AuthToken{}, err
	}
	daily := dailyQuota(lifetime, cfg.DailyQuotaFractionBps)

	id := DeriveVaultID(partner)
	now := e.now().UTC().Unix()
	if now < 0 {
		now = 0
	}
	v := &Vault{
		ID:                     id,
		Partner:                partner,
		CollateralBalance:      collateralDeposit,
		ReservedForBacking:     0,
		AvailableForWithdrawal: collateralDeposit,
		LifetimeQuotaPoints:    lifetime,
		OutstandingPoints:      0,
		CreatedAt:              uint64(now),
	}
	t := &AuthToken{
		Partner:          partner,
		VaultID:          id,
		DailyQuotaPoints: daily,
	}

	if err := e.persistVaultLocked(v); err != nil {
		return Vault{}, AuthToken{}, err
	}
	if err := e.persistTokenLocked(t); err != nil {
		return Vault{}, AuthToken{}, err
	}
	if err := e.store.KVAppend(vaultIndexKey, id[:]); err != nil {
		return Vault{}, AuthToken{}, fmt.Errorf("vault: persist index: %w", err)
	}
	e.vaults[id] = v
	e.tokens[id] = t
	e.byPartner[partner] = id

	e.emitter.Emit(events.VaultOnboarded{
		ID:                  id,
		Partner:             partner,
		CollateralDeposit:   collateralDeposit,
		LifetimeQuotaPoints: lifetime,
		DailyQuotaPoints:    daily,
	})
	return *v, *t, nil
}

// Issue is the quota coordinator: it validates every cap before any counter
// changes, reserves the collateral backing the new points, and mints through
// the ledger. A ledger rejection unwinds the vault and token mutations so the
// whole operation is all-or-nothing.
func (e *Engine) Issue(caller [20]byte, vaultID [32]byte, holder [20]byte, amount uint64) (IssueResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.params.Load()
	if err != nil {
		return IssueResult{}, fmt.Errorf("vault: load params: %w", err)
	}
	if cfg.GloballyPaused || cfg.MintingPaused {
		return IssueResult{}, ErrMintingPaused
	}

	v, t, err := e.vaultPairLocked(vaultID)
	if err != nil {
		return IssueResult{}, err
	}
	if t.Paused {
		return IssueResult{}, ErrTokenPaused
	}
	if v.Locked {
		return IssueResult{}, ErrVaultLocked
	}
	if err := Authorize(caller, t, vaultID); err != nil {
		return IssueResult{}, err
	}
	if amount == 0 {
		return IssueResult{}, ErrInvalidAmount
	}

	day := e.currentDay()
	usage := common.QuotaNow{PointsUsed: t.DailyQuotaUsed, Day: t.LastQuotaResetDay}
	nextUsage, err := common.CheckQuota(
		common.Quota{MaxPointsPerDay: t.DailyQuotaPoints},
		day, usage, 0, amount,
	)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrQuotaPointsExceeded):
			return IssueResult{}, ErrDailyQuotaExceeded
		case errors.Is(err, common.ErrQuotaCounterOverflow):
			return IssueResult{}, ErrArithmeticOverflow
		default:
			return IssueResult{}, err
		}
	}

	if v.OutstandingPoints > math.MaxUint64-amount {
		return IssueResult{}, ErrArithmeticOverflow
	}
	if v.OutstandingPoints+amount > v.LifetimeQuotaPoints {
		return IssueResult{}, ErrLifetimeQuotaExceeded
	}

	required, err := backingRequirement(amount, cfg.PointsPerCollateralUnit)
	if err != nil {
		return IssueResult{}, err
	}
	if v.ReservedForBacking > math.MaxUint64-required {
		return IssueResult{}, ErrArithmeticOverflow
	}
	if v.CollateralBalance < v.ReservedForBacking+required {
		return IssueResult{}, ErrInsufficientCollateral
	}

	prevVault := *v
	prevToken := *t

	t.DailyQuotaUsed = nextUsage.PointsUsed
	t.LastQuotaResetDay = nextUsage.Day
	v.OutstandingPoints += amount
	v.ReservedForBacking += required
	v.AvailableForWithdrawal = v.CollateralBalance - v.ReservedForBacking

	unwind := func() {
		*v = prevVault
		*t = prevToken
	}
	if err := e.persistVaultLocked(v); err != nil {
		unwind()
		return IssueResult{}, err
	}
	if err := e.persistTokenLocked(t); err != nil {
		unwind()
		if perr := e.persistVaultLocked(v); perr != nil {
			return IssueResult{}, errors.Join(err, perr)
		}
		return IssueResult{}, err
	}

	receipt, err := e.ledger.Mint(holder, amount, events.CategoryReward)
	if err != nil {
		unwind()
		if perr := e.persistVaultLocked(v); perr != nil {
			return IssueResult{}, errors.Join(err, perr)
		}
		if perr := e.persistTokenLocked(t); perr != nil {
			return IssueResult{}, errors.Join(err, perr)
		}
		return IssueResult{}, err
	}

	e.emitter.Emit(events.PointsIssued{
		ID:              vaultID,
		Partner:         v.Partner,
		Holder:          holder,
		Amount:          amount,
		BackingReserved: required,
		Outstanding:     v.OutstandingPoints,
	})
	return IssueResult{
		Receipt:         receipt,
		BackingReserved: v.ReservedForBacking,
		Outstanding:     v.OutstandingPoints,
		DailyQuotaUsed:  t.DailyQuotaUsed,
	}, nil
}

// Withdraw releases surplus collateral to the partner. The safety buffer
// bounds this single withdrawal only; the cached available figure stays
// buffer-free.
func (e *Engine) Withdraw(caller [20]byte, vaultID [32]byte, amount uint64) (WithdrawResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.params.Load()
	if err != nil {
		return WithdrawResult{}, fmt.Errorf("vault: load params: %w", err)
	}
	v, t, err := e.vaultPairLocked(vaultID)
	if err != nil {
		return WithdrawResult{}, err
	}
	if t.Paused {
		return WithdrawResult{}, ErrTokenPaused
	}
	if v.Locked {
		return WithdrawResult{}, ErrVaultLocked
	}
	if err := Authorize(caller, t, vaultID); err != nil {
		return WithdrawResult{}, err
	}
	if amount == 0 {
		return WithdrawResult{}, ErrInvalidAmount
	}

	required, err := backingRequirement(v.OutstandingPoints, cfg.PointsPerCollateralUnit)
	if err != nil {
		return WithdrawResult{}, err
	}
	buffered, err := bufferedBacking(required, cfg.SafetyBufferBps)
	if err != nil {
		return WithdrawResult{}, err
	}
	var trulyAvailable uint64
	if v.CollateralBalance > buffered {
		trulyAvailable = v.CollateralBalance - buffered
	}
	if amount > trulyAvailable {
		return WithdrawResult{}, ErrExcessiveWithdrawal
	}

	prev := *v
	v.CollateralBalance -= amount
	v.AvailableForWithdrawal = v.CollateralBalance - v.ReservedForBacking
	if err := e.persistVaultLocked(v); err != nil {
		*v = prev
		return WithdrawResult{}, err
	}

	e.emitter.Emit(events.CollateralWithdrawn{
		ID:        vaultID,
		Partner:   v.Partner,
		Amount:    amount,
		Remaining: v.CollateralBalance,
	})
	return WithdrawResult{
		Withdrawn:              amount,
		CollateralBalance:      v.CollateralBalance,
		AvailableForWithdrawal: v.AvailableForWithdrawal,
	}, nil
}

// CreditRevenue returns redemption proceeds to a vault. Quotas are untouched:
// revenue raises backing capacity, never issuance rights.
func (e *Engine) CreditRevenue(vaultID [32]byte, amount uint64) (Vault, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, _, err := e.vaultPairLocked(vaultID)
	if err != nil {
		return Vault{}, err
	}
	if amount == 0 {
		return Vault{}, ErrInvalidAmount
	}
	if v.CollateralBalance > math.MaxUint64-amount {
		return Vault{}, ErrArithmeticOverflow
	}

	prev := *v
	v.CollateralBalance += amount
	v.AvailableForWithdrawal = v.CollateralBalance - v.ReservedForBacking
	if err := e.persistVaultLocked(v); err != nil {
		*v = prev
		return Vault{}, err
	}

	e.emitter.Emit(events.RevenueCredited{
		ID:      vaultID,
		Partner: v.Partner,
		Amount:  amount,
		Balance: v.CollateralBalance,
	})
	return *v, nil
}

// ReleaseOnBurn shrinks a vault's outstanding points after a burn attributed
// to it, and lowers the reserved collateral to the recomputed requirement.
func (e *Engine) ReleaseOnBurn(vaultID [32]byte, amount uint64) (Vault, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v, _, err := e.vaultPairLocked(vaultID)
	if err != nil {
		return Vault{}, err
	}
	if amount == 0 {
		return Vault{}, ErrInvalidAmount
	}

	cfg, err := e.params.Load()
	if err != nil {
		return Vault{}, fmt.Errorf("vault: load params: %w", err)
	}

	outstanding := v.OutstandingPoints
	if amount >= outstanding {
		outstanding = 0
	} else {
		outstanding -= amount
	}
	required, err := backingRequirement(outstanding, cfg.PointsPerCollateralUnit)
	if err != nil {
		return Vault{}, err
	}

	prev := *v
	v.OutstandingPoints = outstanding
	if required < v.ReservedForBacking {
		v.ReservedForBacking = required
	}
	v.AvailableForWithdrawal = v.CollateralBalance - v.ReservedForBacking
	if err := e.persistVaultLocked(v); err != nil {
		*v = prev
		return Vault{}, err
	}

	e.emitter.Emit(events.BackingReleased{
		ID:          vaultID,
		Partner:     v.Partner,
		Amount:      amount,
		Outstanding: v.OutstandingPoints,
		Reserved:    v.ReservedForBacking,
	})
	return *v, nil
}
