package events

import (
	"encoding/hex"
	"strconv"
	"strings"

	"nectar/core/types"
)

const (
	// TypePointsMinted is emitted whenever the ledger mints points.
	TypePointsMinted = "points.minted"
	// TypePointsBurned is emitted whenever the ledger burns points.
	TypePointsBurned = "points.burned"

	// CategoryReward labels points minted through the partner issuance path.
	CategoryReward = "reward"
	// CategoryRedemption labels burns triggered by perk redemption.
	CategoryRedemption = "redemption"
	// CategoryAdmin labels operator-initiated mints and burns.
	CategoryAdmin = "admin"
)

// PointsMinted captures a successful ledger mint. Category is a label for
// audit consumers only; it carries no accounting effect.
type PointsMinted struct {
	Holder      [20]byte
	Amount      uint64
	Balance     uint64
	Circulating uint64
	Category    string
}

func (PointsMinted) EventType() string { return TypePointsMinted }

// Event renders the structured mint event for downstream consumers.
func (e PointsMinted) Event() *types.Event {
	attrs := map[string]string{
		"holder":      hex.EncodeToString(e.Holder[:]),
		"amount":      strconv.FormatUint(e.Amount, 10),
		"balance":     strconv.FormatUint(e.Balance, 10),
		"circulating": strconv.FormatUint(e.Circulating, 10),
	}
	if category := strings.TrimSpace(e.Category); category != "" {
		attrs["category"] = category
	}
	return &types.Event{Type: TypePointsMinted, Attributes: attrs}
}

// PointsBurned captures a successful ledger burn.
type PointsBurned struct {
	Holder      [20]byte
	Amount      uint64
	Balance     uint64
	Circulating uint64
	Category    string
}

func (PointsBurned) EventType() string { return TypePointsBurned }

// Event renders the structured burn event for downstream consumers.
func (e PointsBurned) Event() *types.Event {
	attrs := map[string]string{
		"holder":      hex.EncodeToString(e.Holder[:]),
		"amount":      strconv.FormatUint(e.Amount, 10),
		"balance":     strconv.FormatUint(e.Balance, 10),
		"circulating": strconv.FormatUint(e.Circulating, 10),
	}
	if category := strings.TrimSpace(e.Category); category != "" {
		attrs["category"] = category
	}
	return &types.Event{Type: TypePointsBurned, Attributes: attrs}
}
