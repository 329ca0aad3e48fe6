package points

import (
	"errors"
	"testing"
	"time"

	"nectar/storage"
)

func newTestLedger(t *testing.T, limits Limits) (*Ledger, *storage.KVStore) {
	t.Helper()
	store := storage.NewKVStore(storage.NewMemDB())
	ledger, err := NewLedger(store, limits)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger, store
}

func testHolder(b byte) [20]byte {
	var holder [20]byte
	holder[19] = b
	return holder
}

func TestMintAndBurnAdjustBalances(t *testing.T) {
	ledger, _ := newTestLedger(t, Limits{MaxTotalSupply: 1_000_000})
	holder := testHolder(1)

	receipt, err := ledger.Mint(holder, 500, "reward")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if receipt.Balance != 500 || receipt.Circulating != 500 {
		t.Fatalf("unexpected mint receipt: %+v", receipt)
	}

	receipt, err = ledger.Burn(holder, 200, "redemption")
	if err != nil {
		t.Fatalf("burn: %v", err)
	}
	if receipt.Balance != 300 || receipt.Circulating != 300 {
		t.Fatalf("unexpected burn receipt: %+v", receipt)
	}

	supply := ledger.Supply()
	if supply.TotalMinted != 500 || supply.TotalBurned != 200 || supply.Circulating != 300 {
		t.Fatalf("unexpected supply snapshot: %+v", supply)
	}
}

func TestMintRejectsInvalidAmounts(t *testing.T) {
	ledger, _ := newTestLedger(t, Limits{MaxTotalSupply: 1_000, MaxPointsPerMint: 100})
	holder := testHolder(2)

	if _, err := ledger.Mint(holder, 0, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero mint, got %v", err)
	}
	if _, err := ledger.Mint(holder, 101, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount above per-mint cap, got %v", err)
	}
}

func TestMintEnforcesSupplyCap(t *testing.T) {
	ledger, _ := newTestLedger(t, Limits{MaxTotalSupply: 1_000})
	holder := testHolder(3)

	if _, err := ledger.Mint(holder, 900, ""); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ledger.Mint(holder, 101, ""); !errors.Is(err, ErrSupplyCapExceeded) {
		t.Fatalf("expected ErrSupplyCapExceeded, got %v", err)
	}
	// Burning frees headroom under the cap again.
	if _, err := ledger.Burn(holder, 500, ""); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if _, err := ledger.Mint(holder, 101, ""); err != nil {
		t.Fatalf("mint after burn: %v", err)
	}
}

func TestMintEnforcesDailyCapAndResets(t *testing.T) {
	ledger, _ := newTestLedger(t, Limits{MaxTotalSupply: 1_000_000, GlobalDailyMintCap: 100})
	holder := testHolder(4)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	ledger.SetClock(func() time.Time { return now })

	if _, err := ledger.Mint(holder, 100, ""); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ledger.Mint(holder, 1, ""); !errors.Is(err, ErrDailyCapExceeded) {
		t.Fatalf("expected ErrDailyCapExceeded, got %v", err)
	}

	// A denial must not consume any of the window once it reopens.
	now = now.Add(24 * time.Hour)
	if _, err := ledger.Mint(holder, 100, ""); err != nil {
		t.Fatalf("mint after rollover: %v", err)
	}
	supply := ledger.Supply()
	if supply.GlobalDailyMinted != 100 {
		t.Fatalf("expected daily counter 100 after rollover mint, got %d", supply.GlobalDailyMinted)
	}
}

func TestSupplyReportsRolledOverWindowAsZero(t *testing.T) {
	ledger, _ := newTestLedger(t, Limits{MaxTotalSupply: 1_000, GlobalDailyMintCap: 100})
	holder := testHolder(5)

	now := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	ledger.SetClock(func() time.Time { return now })
	if _, err := ledger.Mint(holder, 60, ""); err != nil {
		t.Fatalf("mint: %v", err)
	}

	now = now.Add(2 * time.Hour)
	if supply := ledger.Supply(); supply.GlobalDailyMinted != 0 {
		t.Fatalf("expected rolled-over window to read zero, got %d", supply.GlobalDailyMinted)
	}
}

func TestBurnRequiresSufficientBalance(t *testing.T) {
	ledger, _ := newTestLedger(t, Limits{MaxTotalSupply: 1_000})
	holder := testHolder(6)

	if _, err := ledger.Burn(holder, 1, ""); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if _, err := ledger.Mint(holder, 10, ""); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ledger.Burn(holder, 11, ""); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestLedgerReloadsFromStorage(t *testing.T) {
	store := storage.NewKVStore(storage.NewMemDB())
	ledger, err := NewLedger(store, Limits{MaxTotalSupply: 1_000})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	holder := testHolder(7)
	if _, err := ledger.Mint(holder, 250, ""); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ledger.Burn(holder, 50, ""); err != nil {
		t.Fatalf("burn: %v", err)
	}

	reloaded, err := NewLedger(store, Limits{MaxTotalSupply: 1_000})
	if err != nil {
		t.Fatalf("reload ledger: %v", err)
	}
	if got := reloaded.CirculatingSupply(); got != 200 {
		t.Fatalf("expected circulating 200 after reload, got %d", got)
	}
	balance, err := reloaded.GetBalance(holder)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 200 {
		t.Fatalf("expected balance 200 after reload, got %d", balance)
	}
}

type faultyStore struct {
	inner Storage
	fail  bool
}

func (f *faultyStore) KVGet(key []byte, out interface{}) (bool, error) {
	return f.inner.KVGet(key, out)
}

func (f *faultyStore) KVPut(key []byte, value interface{}) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.inner.KVPut(key, value)
}

type keyFaultyStore struct {
	inner   Storage
	failKey string
}

func (f *keyFaultyStore) KVGet(key []byte, out interface{}) (bool, error) {
	return f.inner.KVGet(key, out)
}

func (f *keyFaultyStore) KVPut(key []byte, value interface{}) error {
	if string(key) == f.failKey {
		return errors.New("disk full")
	}
	return f.inner.KVPut(key, value)
}

func TestMintKeepsStorageConsistentWhenCountersWriteFails(t *testing.T) {
	inner := storage.NewKVStore(storage.NewMemDB())
	store := &keyFaultyStore{inner: inner}
	ledger, err := NewLedger(store, Limits{MaxTotalSupply: 1_000})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	holder := testHolder(9)
	if _, err := ledger.Mint(holder, 100, ""); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// The balance write lands but the counters write fails; the prior
	// balance must be restored so a restart cannot surface points the
	// supply never minted.
	store.failKey = string(ledgerStateKey)
	if _, err := ledger.Mint(holder, 50, ""); err == nil {
		t.Fatalf("expected persist failure")
	}
	store.failKey = ""

	reloaded, err := NewLedger(inner, Limits{MaxTotalSupply: 1_000})
	if err != nil {
		t.Fatalf("reload ledger: %v", err)
	}
	balance, err := reloaded.GetBalance(holder)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	circulating := reloaded.CirculatingSupply()
	if balance != 100 || circulating != 100 {
		t.Fatalf("expected balance and circulating 100 after reload, got %d and %d", balance, circulating)
	}
	if balance > circulating {
		t.Fatalf("rejected mint left partial state in storage: balance %d exceeds circulating %d", balance, circulating)
	}
}

func TestMintRollsBackOnPersistFailure(t *testing.T) {
	inner := storage.NewKVStore(storage.NewMemDB())
	store := &faultyStore{inner: inner}
	ledger, err := NewLedger(store, Limits{MaxTotalSupply: 1_000})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	holder := testHolder(8)
	if _, err := ledger.Mint(holder, 100, ""); err != nil {
		t.Fatalf("mint: %v", err)
	}

	store.fail = true
	if _, err := ledger.Mint(holder, 50, ""); err == nil {
		t.Fatalf("expected persist failure")
	}
	store.fail = false

	if got := ledger.CirculatingSupply(); got != 100 {
		t.Fatalf("expected circulating 100 after rollback, got %d", got)
	}
	balance, err := ledger.GetBalance(holder)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 100 {
		t.Fatalf("expected balance 100 after rollback, got %d", balance)
	}
}
