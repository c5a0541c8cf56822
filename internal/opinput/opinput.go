// Package opinput parses operator commands: the trade request line that
// names a coin and a venue pair, and the yes/no confirmation reply.
package opinput

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"arbscan/internal/venue"
)

// TradeCommand is a parsed "COIN Long (A), Short (B) [notional]" line.
type TradeCommand struct {
	Coin         string
	LongVenue    venue.ID
	ShortVenue   venue.ID
	NotionalUSDT float64 // 0 means use the configured default
}

var tradeRe = regexp.MustCompile(`(?i)^(\w+)\s+Long\s*\((\w+)\)\s*,\s*Short\s*\((\w+)\)(?:\s+(\d+(?:\.\d+)?|SCAN_COIN_INVEST))?$`)

// ParseTrade parses a trade request. The venue names are matched
// case-insensitively against the known venue set; the optional trailing
// amount is the notional in USDT, with the literal SCAN_COIN_INVEST
// standing for the configured default.
func ParseTrade(line string) (*TradeCommand, error) {
	m := tradeRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, fmt.Errorf("cannot parse trade command %q, expected: COIN Long (venue), Short (venue) [amount]", line)
	}

	longID := venue.ID(strings.ToLower(m[2]))
	shortID := venue.ID(strings.ToLower(m[3]))
	if !venue.Valid(longID) {
		return nil, fmt.Errorf("unknown long venue %q", m[2])
	}
	if !venue.Valid(shortID) {
		return nil, fmt.Errorf("unknown short venue %q", m[3])
	}
	if longID == shortID {
		return nil, fmt.Errorf("long and short venue must differ, both are %s", longID)
	}

	cmd := &TradeCommand{
		Coin:       strings.ToUpper(m[1]),
		LongVenue:  longID,
		ShortVenue: shortID,
	}
	if m[4] != "" && !strings.EqualFold(m[4], "SCAN_COIN_INVEST") {
		v, err := strconv.ParseFloat(m[4], 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid notional %q", m[4])
		}
		cmd.NotionalUSDT = v
	}
	return cmd, nil
}

// Confirmation is a parsed operator reply to a close prompt.
type Confirmation struct {
	Yes          bool
	ThresholdPct float64 // optional override, 0 when absent
}

var confirmRe = regexp.MustCompile(`(?i)^(да|нет)(?:\s*,\s*(\d+(?:\.\d+)?)\s*%?)?$`)

// ParseConfirmation parses "Да", "Да, 0.2%" or "Нет".
func ParseConfirmation(line string) (*Confirmation, error) {
	m := confirmRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, fmt.Errorf("cannot parse reply %q, expected Да[, X%%] or Нет", line)
	}
	c := &Confirmation{Yes: strings.EqualFold(m[1], "да")}
	if c.Yes && m[2] != "" {
		v, err := strconv.ParseFloat(m[2], 64)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("invalid close threshold %q", m[2])
		}
		c.ThresholdPct = v
	}
	return c, nil
}
