package vault

import (
	"github.com/holiman/uint256"

	"nectar/native/params"
)

// backingRequirement returns the minimum collateral units that must stay
// reserved for the given quantity of outstanding points. Rounds up so partial
// units are always fully covered.
func backingRequirement(points, pointsPerUnit uint64) (uint64, error) {
	if pointsPerUnit == 0 {
		return 0, ErrArithmeticOverflow
	}
	if points == 0 {
		return 0, nil
	}
	return (points-1)/pointsPerUnit + 1, nil
}

// bufferedBacking scales the backing requirement by the safety buffer,
// rounding up. Intermediates run in 256 bits so the product cannot wrap.
func bufferedBacking(backing uint64, bufferBps uint32) (uint64, error) {
	product := new(uint256.Int).Mul(
		uint256.NewInt(backing),
		uint256.NewInt(uint64(bufferBps)),
	)
	product.Add(product, uint256.NewInt(params.BpsDenominator-1))
	product.Div(product, uint256.NewInt(params.BpsDenominator))
	if !product.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return product.Uint64(), nil
}

// lifetimeQuota converts a whole-unit collateral deposit into the total
// points the vault may ever back. Rounds down on the deposit side.
func lifetimeQuota(depositUnits, pointsPerUnit uint64) (uint64, error) {
	quota := new(uint256.Int).Mul(
		uint256.NewInt(depositUnits),
		uint256.NewInt(pointsPerUnit),
	)
	if !quota.IsUint64() {
		return 0, ErrArithmeticOverflow
	}
	return quota.Uint64(), nil
}

// dailyQuota derives the per-day issuance window from the lifetime quota.
// The fraction never exceeds 10000 bps, so the result always narrows back.
func dailyQuota(lifetime uint64, fractionBps uint32) uint64 {
	quota := new(uint256.Int).Mul(
		uint256.NewInt(lifetime),
		uint256.NewInt(uint64(fractionBps)),
	)
	quota.Div(quota, uint256.NewInt(params.BpsDenominator))
	return quota.Uint64()
}
