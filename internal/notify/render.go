package notify

import (
	"fmt"
	"strings"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// Render turns an engine event into a notification title and body.
func Render(ev domain.Event) (title, message string) {
	switch ev.Type {
	case domain.EventWindowStarted:
		title = fmt.Sprintf("Round %d: betting open", ev.Round)
		lines := make([]string, 0, len(ev.Candidates)+1)
		lines = append(lines, fmt.Sprintf("%d candidates", len(ev.Candidates)))
		for i, c := range ev.Candidates {
			lines = append(lines, fmt.Sprintf("%d. %s", i, c.Hex()))
		}
		message = strings.Join(lines, "\n")
	case domain.EventWindowClosed:
		title = fmt.Sprintf("Round %d: betting closed", ev.Round)
		message = "Awaiting settlement."
	case domain.EventSettlementClosed:
		title = fmt.Sprintf("Round %d: settled", ev.Round)
		message = "Payouts processed and ledger cleared."
		if ev.Error != "" {
			message += "\n" + ev.Error
		}
	case domain.EventPayoutFailed:
		title = fmt.Sprintf("Round %d: payout failed", ev.Round)
		message = fmt.Sprintf("recipient %s amount %s: %s", addr(ev.Bettor), amount(ev), ev.Error)
	case domain.EventTreasurySwept:
		title = fmt.Sprintf("Round %d: pool swept to treasury", ev.Round)
		message = fmt.Sprintf("candidate %s amount %s", addr(ev.Candidate), amount(ev))
	case domain.EventBetPlaced:
		title = fmt.Sprintf("Round %d: bet placed", ev.Round)
		message = fmt.Sprintf("%s bet %s %s on %s", addr(ev.Bettor), amount(ev), position(ev), addr(ev.Candidate))
	case domain.EventPayoutProcessed:
		title = fmt.Sprintf("Round %d: payout", ev.Round)
		message = fmt.Sprintf("%s received %s", addr(ev.Bettor), amount(ev))
	default:
		title = fmt.Sprintf("Round %d: %s", ev.Round, ev.Type)
	}
	return title, message
}

func addr(a *domain.Address) string {
	if a == nil {
		return "-"
	}
	return a.Hex()
}

func amount(ev domain.Event) string {
	if ev.Amount == nil {
		return "0"
	}
	return ev.Amount.Dec()
}

func position(ev domain.Event) string {
	if ev.Position == nil {
		return "?"
	}
	return domain.PositionLabel(*ev.Position)
}
