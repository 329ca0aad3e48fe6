// Package params holds the protocol-wide configuration consumed by the point
// ledger and vault engines: conversion rate, pause flags, caps and buffers.
package params

import "fmt"

const (
	// BpsDenominator defines the scaling factor used for basis point math.
	BpsDenominator = 10_000

	// DefaultPointsPerCollateralUnit is the conversion rate applied when the
	// operator has not configured one.
	DefaultPointsPerCollateralUnit = 1_000
	// DefaultDailyQuotaFractionBps derives a token's daily quota from its
	// vault's lifetime quota (5%).
	DefaultDailyQuotaFractionBps = 500
	// DefaultSafetyBufferBps keeps 110% of the backing requirement in the
	// vault before a withdrawal may pass.
	DefaultSafetyBufferBps = 11_000
	// DefaultMinimumVaultDeposit is the smallest collateral deposit accepted
	// at onboarding, in collateral units.
	DefaultMinimumVaultDeposit = 10_000
)

// Params controls the behaviour of the point issuance engines.
//
// All collateral values are expressed in the collateral asset's smallest
// unit; all point values are whole points.
type Params struct {
	PointsPerCollateralUnit uint64
	MintingPaused           bool
	GloballyPaused          bool
	Treasury                []byte
	MaxTotalSupply          uint64
	GlobalDailyMintCap      uint64
	MaxPointsPerMint        uint64
	MinimumVaultDeposit     uint64
	DailyQuotaFractionBps   uint32
	SafetyBufferBps         uint32
}

// Clone produces a deep copy of the configuration.
func (p *Params) Clone() *Params {
	if p == nil {
		return nil
	}
	clone := *p
	if len(p.Treasury) > 0 {
		clone.Treasury = append([]byte(nil), p.Treasury...)
	}
	return &clone
}

// ApplyDefaults ensures unset fields fall back to module defaults. The method
// returns the receiver to allow chaining.
func (p *Params) ApplyDefaults() *Params {
	if p == nil {
		return nil
	}
	if p.PointsPerCollateralUnit == 0 {
		p.PointsPerCollateralUnit = DefaultPointsPerCollateralUnit
	}
	if p.DailyQuotaFractionBps == 0 {
		p.DailyQuotaFractionBps = DefaultDailyQuotaFractionBps
	}
	if p.SafetyBufferBps == 0 {
		p.SafetyBufferBps = DefaultSafetyBufferBps
	}
	if p.MinimumVaultDeposit == 0 {
		p.MinimumVaultDeposit = DefaultMinimumVaultDeposit
	}
	return p
}

// Validate performs static validation of the configuration.
func (p *Params) Validate() error {
	if p == nil {
		return fmt.Errorf("nil params")
	}
	if p.PointsPerCollateralUnit == 0 {
		return fmt.Errorf("pointsPerCollateralUnit must be >= 1")
	}
	if len(p.Treasury) == 0 {
		return fmt.Errorf("treasury address must be configured")
	}
	if p.DailyQuotaFractionBps > BpsDenominator {
		return fmt.Errorf("dailyQuotaFractionBps must not exceed %d", BpsDenominator)
	}
	if p.DailyQuotaFractionBps == 0 {
		return fmt.Errorf("dailyQuotaFractionBps must be >= 1")
	}
	if p.SafetyBufferBps <= BpsDenominator {
		return fmt.Errorf("safetyBufferBps must exceed %d", BpsDenominator)
	}
	if p.MaxTotalSupply == 0 {
		return fmt.Errorf("maxTotalSupply must be configured")
	}
	return nil
}
