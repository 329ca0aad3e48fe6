package params

import "fmt"

// Storage abstracts the subset of state manager functionality required by the
// params store.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var paramsKey = []byte("params/config")

type storedParams struct {
	PointsPerCollateralUnit uint64
	MintingPaused           bool
	GloballyPaused          bool
	Treasury                []byte
	MaxTotalSupply          uint64
	GlobalDailyMintCap      uint64
	MaxPointsPerMint        uint64
	MinimumVaultDeposit     uint64
	DailyQuotaFractionBps   uint64
	SafetyBufferBps         uint64
}

// Store persists the protocol parameters in the underlying key-value store.
type Store struct {
	st Storage
}

// NewStore constructs a params store bound to the provided storage backend.
func NewStore(st Storage) *Store {
	return &Store{st: st}
}

// Load returns the persisted parameters with defaults applied, or defaults
// when nothing has been stored yet.
func (s *Store) Load() (*Params, error) {
	if s == nil || s.st == nil {
		return nil, fmt.Errorf("params store not initialised")
	}
	var stored storedParams
	ok, err := s.st.KVGet(paramsKey, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return (&Params{}).ApplyDefaults(), nil
	}
	p := &Params{
		PointsPerCollateralUnit: stored.PointsPerCollateralUnit,
		MintingPaused:           stored.MintingPaused,
		GloballyPaused:          stored.GloballyPaused,
		Treasury:                append([]byte(nil), stored.Treasury...),
		MaxTotalSupply:          stored.MaxTotalSupply,
		GlobalDailyMintCap:      stored.GlobalDailyMintCap,
		MaxPointsPerMint:        stored.MaxPointsPerMint,
		MinimumVaultDeposit:     stored.MinimumVaultDeposit,
		DailyQuotaFractionBps:   uint32(stored.DailyQuotaFractionBps),
		SafetyBufferBps:         uint32(stored.SafetyBufferBps),
	}
	return p.ApplyDefaults(), nil
}

// Save validates and persists the supplied parameters.
func (s *Store) Save(p *Params) error {
	if s == nil || s.st == nil {
		return fmt.Errorf("params store not initialised")
	}
	if p == nil {
		return fmt.Errorf("params: nil params")
	}
	normalized := p.Clone().ApplyDefaults()
	if err := normalized.Validate(); err != nil {
		return err
	}
	stored := storedParams{
		PointsPerCollateralUnit: normalized.PointsPerCollateralUnit,
		MintingPaused:           normalized.MintingPaused,
		GloballyPaused:          normalized.GloballyPaused,
		Treasury:                append([]byte(nil), normalized.Treasury...),
		MaxTotalSupply:          normalized.MaxTotalSupply,
		GlobalDailyMintCap:      normalized.GlobalDailyMintCap,
		MaxPointsPerMint:        normalized.MaxPointsPerMint,
		MinimumVaultDeposit:     normalized.MinimumVaultDeposit,
		DailyQuotaFractionBps:   uint64(normalized.DailyQuotaFractionBps),
		SafetyBufferBps:         uint64(normalized.SafetyBufferBps),
	}
	return s.st.KVPut(paramsKey, stored)
}

// SetMintingPaused flips the mint pause flag while leaving every other
// parameter untouched.
func (s *Store) SetMintingPaused(paused bool) error {
	current, err := s.Load()
	if err != nil {
		return err
	}
	current.MintingPaused = paused
	return s.Save(current)
}

// SetGloballyPaused flips the global pause flag.
func (s *Store) SetGloballyPaused(paused bool) error {
	current, err := s.Load()
	if err != nil {
		return err
	}
	current.GloballyPaused = paused
	return s.Save(current)
}
