package points

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"nectar/core/events"
)

const secondsPerDay = 86_400

var ledgerStateKey = []byte("points/ledger")

func balanceKey(holder [20]byte) []byte {
	return []byte("points/balance/" + hex.EncodeToString(holder[:]))
}

// Storage is the subset of the key/value store the ledger persists through.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

type storedLedger struct {
	TotalMinted       uint64
	TotalBurned       uint64
	GlobalDailyMinted uint64
	LastResetDay      uint64
}

// Limits carries the protocol ceilings the ledger enforces on every mint. A
// zero daily cap or per-mint cap disables that check; the supply ceiling is
// mandatory.
type Limits struct {
	MaxTotalSupply     uint64
	GlobalDailyMintCap uint64
	MaxPointsPerMint   uint64
}

// Receipt summarises the ledger state observed immediately after a mint or
// burn commits.
type Receipt struct {
	Balance     uint64
	Circulating uint64
}

// SupplyInfo is a read-only snapshot of the ledger counters.
type SupplyInfo struct {
	TotalMinted        uint64
	TotalBurned        uint64
	Circulating        uint64
	MaxTotalSupply     uint64
	GlobalDailyMinted  uint64
	GlobalDailyMintCap uint64
}

// Ledger is the single source of truth for point supply. All mutations run
// under one mutex; counters are validated before any of them change, and a
// failed persist rolls the in-memory mutation back so memory and storage never
// diverge.
type Ledger struct {
	mu sync.Mutex

	store   Storage
	emitter events.Emitter
	now     func() time.Time

	limits Limits

	totalMinted       uint64
	totalBurned       uint64
	globalDailyMinted uint64
	lastResetDay      uint64

	balances map[[20]byte]uint64
}

// NewLedger hydrates the ledger counters from storage. Holder balances load
// lazily on first access.
func NewLedger(store Storage, limits Limits) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("points: storage must not be nil")
	}
	if limits.MaxTotalSupply == 0 {
		return nil, fmt.Errorf("points: max total supply must be configured")
	}
	l := &Ledger{
		store:    store,
		emitter:  events.NoopEmitter{},
		now:      time.Now,
		limits:   limits,
		balances: make(map[[20]byte]uint64),
	}
	var record storedLedger
	ok, err := store.KVGet(ledgerStateKey, &record)
	if err != nil {
		return nil, fmt.Errorf("points: load ledger state: %w", err)
	}
	if ok {
		l.totalMinted = record.TotalMinted
		l.totalBurned = record.TotalBurned
		l.globalDailyMinted = record.GlobalDailyMinted
		l.lastResetDay = record.LastResetDay
	}
	return l, nil
}

// SetEmitter wires the event emitter used for mint and burn notifications.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

// SetClock overrides the time source. Used by tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now != nil {
		l.now = now
	}
}

// SetLimits swaps the enforced ceilings, typically after a parameter update.
// Lowering the supply cap below the circulating supply is allowed; further
// mints are rejected until burns bring the supply back under the cap.
func (l *Ledger) SetLimits(limits Limits) error {
	if limits.MaxTotalSupply == 0 {
		return fmt.Errorf("points: max total supply must be configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits = limits
	return nil
}

// Limits reports the currently enforced ceilings.
func (l *Ledger) Limits() Limits {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limits
}

func (l *Ledger) currentDay() uint64 {
	ts := l.now().UTC().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts) / secondsPerDay
}

func (l *Ledger) balanceLocked(holder [20]byte) (uint64, error) {
	if balance, ok := l.balances[holder]; ok {
		return balance, nil
	}
	var stored uint64
	ok, err := l.store.KVGet(balanceKey(holder), &stored)
	if err != nil {
		return 0, fmt.Errorf("points: load balance: %w", err)
	}
	if !ok {
		stored = 0
	}
	l.balances[holder] = stored
	return stored, nil
}

// persistLocked writes the holder balance and the ledger counters. The two
// keys must land together: when the counters write fails the prior balance is
// re-put so storage never carries a balance the counters do not account for.
func (l *Ledger) persistLocked(holder [20]byte, balance, prevBalance uint64) error {
	record := storedLedger{
		TotalMinted:       l.totalMinted,
		TotalBurned:       l.totalBurned,
		GlobalDailyMinted: l.globalDailyMinted,
		LastResetDay:      l.lastResetDay,
	}
	if err := l.store.KVPut(balanceKey(holder), balance); err != nil {
		return fmt.Errorf("points: persist balance: %w", err)
	}
	if err := l.store.KVPut(ledgerStateKey, &record); err != nil {
		err = fmt.Errorf("points: persist ledger state: %w", err)
		if perr := l.store.KVPut(balanceKey(holder), prevBalance); perr != nil {
			return errors.Join(err, fmt.Errorf("points: restore balance: %w", perr))
		}
		return err
	}
	return nil
}

// Mint credits amount points to holder. Every precondition is checked before
// any counter changes: a rejected mint leaves the ledger untouched, including
// the daily window counters.
func (l *Ledger) Mint(holder [20]byte, amount uint64, category string) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == 0 {
		return Receipt{}, ErrInvalidAmount
	}
	if l.limits.MaxPointsPerMint > 0 && amount > l.limits.MaxPointsPerMint {
		return Receipt{}, ErrInvalidAmount
	}

	circulating := l.totalMinted - l.totalBurned
	if circulating >= l.limits.MaxTotalSupply || amount > l.limits.MaxTotalSupply-circulating {
		return Receipt{}, ErrSupplyCapExceeded
	}

	day := l.currentDay()
	dailyMinted := l.globalDailyMinted
	if day != l.lastResetDay {
		dailyMinted = 0
	}
	if cap := l.limits.GlobalDailyMintCap; cap > 0 {
		if dailyMinted >= cap || amount > cap-dailyMinted {
			return Receipt{}, ErrDailyCapExceeded
		}
	}

	balance, err := l.balanceLocked(holder)
	if err != nil {
		return Receipt{}, err
	}
	if l.totalMinted > math.MaxUint64-amount {
		return Receipt{}, ErrArithmeticOverflow
	}
	if balance > math.MaxUint64-amount {
		return Receipt{}, ErrArithmeticOverflow
	}
	if dailyMinted > math.MaxUint64-amount {
		return Receipt{}, ErrArithmeticOverflow
	}

	prevMinted := l.totalMinted
	prevDaily := l.globalDailyMinted
	prevDay := l.lastResetDay

	l.totalMinted += amount
	l.globalDailyMinted = dailyMinted + amount
	l.lastResetDay = day
	newBalance := balance + amount
	l.balances[holder] = newBalance

	if err := l.persistLocked(holder, newBalance, balance); err != nil {
		l.totalMinted = prevMinted
		l.globalDailyMinted = prevDaily
		l.lastResetDay = prevDay
		l.balances[holder] = balance
		return Receipt{}, err
	}

	receipt := Receipt{Balance: newBalance, Circulating: l.totalMinted - l.totalBurned}
	l.emitter.Emit(events.PointsMinted{
		Holder:      holder,
		Amount:      amount,
		Balance:     newBalance,
		Circulating: receipt.Circulating,
		Category:    category,
	})
	return receipt, nil
}

// Burn debits amount points from holder. Burns are never capped; they only
// require a sufficient balance.
func (l *Ledger) Burn(holder [20]byte, amount uint64, category string) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if amount == 0 {
		return Receipt{}, ErrInvalidAmount
	}
	balance, err := l.balanceLocked(holder)
	if err != nil {
		return Receipt{}, err
	}
	if amount > balance {
		return Receipt{}, ErrInsufficientBalance
	}

	prevBurned := l.totalBurned
	l.totalBurned += amount
	newBalance := balance - amount
	l.balances[holder] = newBalance

	if err := l.persistLocked(holder, newBalance, balance); err != nil {
		l.totalBurned = prevBurned
		l.balances[holder] = balance
		return Receipt{}, err
	}

	receipt := Receipt{Balance: newBalance, Circulating: l.totalMinted - l.totalBurned}
	l.emitter.Emit(events.PointsBurned{
		Holder:      holder,
		Amount:      amount,
		Balance:     newBalance,
		Circulating: receipt.Circulating,
		Category:    category,
	})
	return receipt, nil
}

// GetBalance reports the holder's balance. Unknown holders have a zero
// balance.
func (l *Ledger) GetBalance(holder [20]byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(holder)
}

// CirculatingSupply reports total minted minus total burned.
func (l *Ledger) CirculatingSupply() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalMinted - l.totalBurned
}

// Supply reports a snapshot of the ledger counters. The daily counter reads
// as zero once the UTC day has rolled over, even before the next mint resets
// it.
func (l *Ledger) Supply() SupplyInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	daily := l.globalDailyMinted
	if l.currentDay() != l.lastResetDay {
		daily = 0
	}
	return SupplyInfo{
		TotalMinted:        l.totalMinted,
		TotalBurned:        l.totalBurned,
		Circulating:        l.totalMinted - l.totalBurned,
		MaxTotalSupply:     l.limits.MaxTotalSupply,
		GlobalDailyMinted:  daily,
		GlobalDailyMintCap: l.limits.GlobalDailyMintCap,
	}
}
