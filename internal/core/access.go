package core

import "strings"

// ViewDecision is the outcome of a receipt view check. Only ViewAllowed grants
// access; the two refusals are kept apart so callers can prompt for a wallet
// connection instead of showing the private-receipt state.
type ViewDecision int

const (
	ViewAllowed ViewDecision = iota
	ViewNoWallet
	ViewNotParticipant
)

func (d ViewDecision) String() string {
	switch d {
	case ViewAllowed:
		return "allowed"
	case ViewNoWallet:
		return "no_wallet"
	case ViewNotParticipant:
		return "private"
	default:
		return "unknown"
	}
}

// CheckView decides whether viewer may see the receipt's details. The contract
// owner or any other role gets no implicit access.
func CheckView(r Receipt, viewer string) ViewDecision {
	viewer = strings.TrimSpace(viewer)
	if viewer == "" {
		return ViewNoWallet
	}
	addr, err := ParseAddress(viewer)
	if err != nil {
		return ViewNotParticipant
	}
	if r.IsParticipant(addr) {
		return ViewAllowed
	}
	return ViewNotParticipant
}

// CanView is CheckView collapsed to a boolean.
func CanView(r Receipt, viewer string) bool {
	return CheckView(r, viewer) == ViewAllowed
}
