package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"whale_watcher/internal/core"
	"whale_watcher/internal/pricing"
)

// Renderer turns threshold events into the text pushed to recipients.
// Rendering happens at enqueue time so queued alerts are immutable.
type Renderer struct {
	exchange string
}

// NewRenderer tags messages with the venue name.
func NewRenderer(exchange string) *Renderer {
	return &Renderer{exchange: exchange}
}

// Render produces the alert text for the event.
func (r *Renderer) Render(ev core.ThresholdEvent) string {
	switch ev.Kind {
	case core.KindSingle:
		return r.renderSingle(ev)
	case core.KindCumulative:
		return r.renderCumulative(ev)
	default:
		return ""
	}
}

func (r *Renderer) renderSingle(ev core.ThresholdEvent) string {
	lines := []string{
		fmt.Sprintf("🚨 Large %s on %s", ev.Side, r.exchange),
		fmt.Sprintf("%s %s  %s", sideArrow(ev.Side), pricing.FormatPair(ev.Symbol), FormatUSD(ev.TotalUsd)),
		fmt.Sprintf("🕐 %s UTC", ev.ObservedAt.UTC().Format("15:04:05")),
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) renderCumulative(ev core.ThresholdEvent) string {
	lines := []string{
		fmt.Sprintf("🚨 Cumulative %s pressure on %s", ev.Side, r.exchange),
		fmt.Sprintf("%s %s  %s across %d trades in %s",
			sideArrow(ev.Side), pricing.FormatPair(ev.Symbol), FormatUSD(ev.TotalUsd),
			ev.TradeCount, formatWindow(ev.WindowDuration)),
		fmt.Sprintf("⬆️ Buy %s | ⬇️ Sell %s", FormatUSD(ev.BuyUsd), FormatUSD(ev.SellUsd)),
		fmt.Sprintf("🕐 %s UTC", ev.ObservedAt.UTC().Format("15:04:05")),
	}
	return strings.Join(lines, "\n")
}

// FormatUSD renders a dollar amount rounded to whole dollars with
// thousands separators.
func FormatUSD(d decimal.Decimal) string {
	s := d.Round(0).String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}

	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

func sideArrow(side core.Side) string {
	if side == core.SideBuy {
		return "⬆️"
	}
	return "⬇️"
}

func formatWindow(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d/time.Minute))
	}
	return fmt.Sprintf("%ds", int(d/time.Second))
}
