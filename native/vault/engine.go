package vault

import (
	"fmt"
	"sync"
	"time"

	"nectar/core/events"
	"nectar/native/params"
	"nectar/native/points"
)

const secondsPerDay = 86_400

// Storage is the subset of the key/value store the engine persists through.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

// Ledger is the supply accountant the coordinator mints and burns through.
type Ledger interface {
	Mint(holder [20]byte, amount uint64, category string) (points.Receipt, error)
	Burn(holder [20]byte, amount uint64, category string) (points.Receipt, error)
}

// ParamsSource yields the current protocol configuration.
type ParamsSource interface {
	Load() (*params.Params, error)
}

// Engine owns every partner vault and authorization token. A single mutex
// serialises all state-changing operations; validation always completes
// before the first mutation, and a failed persist rolls the in-memory change
// back.
type Engine struct {
	mu sync.Mutex

	store   Storage
	params  ParamsSource
	ledger  Ledger
	emitter events.Emitter
	now     func() time.Time

	vaults    map[[32]byte]*Vault
	tokens    map[[32]byte]*AuthToken
	byPartner map[[20]byte][32]byte
}

// NewEngine hydrates all vaults and tokens from storage.
func NewEngine(store Storage, source ParamsSource, ledger Ledger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("vault: storage must not be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("vault: params source must not be nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("vault: ledger must not be nil")
	}
	e := &Engine{
		store:     store,
		params:    source,
		ledger:    ledger,
		emitter:   events.NoopEmitter{},
		now:       time.Now,
		vaults:    make(map[[32]byte]*Vault),
		tokens:    make(map[[32]byte]*AuthToken),
		byPartner: make(map[[20]byte][32]byte),
	}
	var ids [][]byte
	if err := store.KVGetList(vaultIndexKey, &ids); err != nil {
		return nil, fmt.Errorf("vault: load index: %w", err)
	}
	for _, raw := range ids {
		if len(raw) != 32 {
			return nil, fmt.Errorf("vault: malformed index entry")
		}
		var id [32]byte
		copy(id[:], raw)
		var sv storedVault
		ok, err := store.KVGet(vaultKey(id), &sv)
		if err != nil {
			return nil, fmt.Errorf("vault: load vault: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("vault: index references missing vault %x", id)
		}
		var st storedToken
		ok, err = store.KVGet(tokenKey(id), &st)
		if err != nil {
			return nil, fmt.Errorf("vault: load token: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("vault: vault %x has no token", id)
		}
		v := sv.toVault()
		e.vaults[id] = v
		e.tokens[id] = st.toToken()
		e.byPartner[v.Partner] = id
	}
	return e, nil
}

// SetEmitter wires the event emitter for vault lifecycle notifications.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetClock overrides the time source. Used by tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now != nil {
		e.now = now
	}
}

func (e *Engine) currentDay() uint64 {
	ts := e.now().UTC().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts) / secondsPerDay
}

// Authorize verifies that the caller's identity owns the token and that the
// token is bound to the addressed vault. There is no ambient caller: every
// entry point passes the identity it authenticated.
func Authorize(caller [20]byte, token *AuthToken, vaultID [32]byte) error {
	if token == nil {
		return ErrUnauthorized
	}
	if token.Partner != caller || token.VaultID != vaultID {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) vaultPairLocked(id [32]byte) (*Vault, *AuthToken, error) {
	v, ok := e.vaults[id]
	if !ok {
		return nil, nil, ErrVaultNotFound
	}
	t, ok := e.tokens[id]
	if !ok {
		return nil, nil, ErrVaultNotFound
	}
	return v, t, nil
}

func (e *Engine) persistVaultLocked(v *Vault) error {
	record := v.toStored()
	if err := e.store.KVPut(vaultKey(v.ID), &record); err != nil {
		return fmt.Errorf("vault: persist vault: %w", err)
	}
	return nil
}

func (e *Engine) persistTokenLocked(t *AuthToken) error {
	record := t.toStored()
	if err := e.store.KVPut(tokenKey(t.VaultID), &record); err != nil {
		return fmt.Errorf("vault: persist token: %w", err)
	}
	return nil
}

// VaultState returns a copy of the vault record.
func (e *Engine) VaultState(id [32]byte) (Vault, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.vaults[id]
	if !ok {
		return Vault{}, ErrVaultNotFound
	}
	return *v, nil
}

// TokenState returns the token's quota window as of the current day: once the
// UTC day rolls over the used counter reads as zero, even before the next
// issuance resets it.
func (e *Engine) TokenState(id [32]byte) (QuotaState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tokens[id]
	if !ok {
		return QuotaState{}, ErrVaultNotFound
	}
	used := t.DailyQuotaUsed
	if e.currentDay() != t.LastQuotaResetDay {
		used = 0
	}
	return QuotaState{
		DailyQuotaPoints: t.DailyQuotaPoints,
		DailyQuotaUsed:   used,
		Paused:           t.Paused,
	}, nil
}

// VaultIDForPartner resolves the partner's vault, if one exists.
func (e *Engine) VaultIDForPartner(partner [20]byte) ([32]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byPartner[partner]
	return id, ok
}

// ListVaults returns copies of every vault record.
func (e *Engine) ListVaults() []Vault {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Vault, 0, len(e.vaults))
	for _, v := range e.vaults {
		out = append(out, *v)
	}
	return out
}

// SetLocked freezes or unfreezes a vault. Locked vaults reject issuance and
// withdrawal but still accept revenue credits and burn releases.
func (e *Engine) SetLocked(caller [20]byte, id [32]byte, locked bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, _, err := e.vaultPairLocked(id)
	if err != nil {
		return err
	}
	if v.Locked == locked {
		return nil
	}
	prev := v.Locked
	v.Locked = locked
	if err := e.persistVaultLocked(v); err != nil {
		v.Locked = prev
		return err
	}
	eventType := events.TypeVaultLocked
	if !locked {
		eventType = events.TypeVaultUnlocked
	}
	e.emitter.Emit(events.VaultFlag{Type: eventType, ID: id, Partner: v.Partner, Caller: caller})
	return nil
}

// SetPaused pauses or resumes a vault's authorization token.
func (e *Engine) SetPaused(caller [20]byte, id [32]byte, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, t, err := e.vaultPairLocked(id)
	if err != nil {
		return err
	}
	if t.Paused == paused {
		return nil
	}
	prev := t.Paused
	t.Paused = paused
	if err := e.persistTokenLocked(t); err != nil {
		t.Paused = prev
		return err
	}
	eventType := events.TypeTokenPaused
	if !paused {
		eventType = events.TypeTokenResumed
	}
	e.emitter.Emit(events.VaultFlag{Type: eventType, ID: id, Partner: v.Partner, Caller: caller})
	return nil
}
