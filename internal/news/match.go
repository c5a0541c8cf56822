package news

import "strings"

// Hard delisting keywords, English and Russian. Soft suspension wording
// ("suspend", "halt") is deliberately excluded: venues suspend trading for
// maintenance without delisting.
var delistingKeywords = []string{
	"delist",
	"delisting",
	"remove from trading",
	"removal of",
	"cease trading",
	"terminate",
	"termination of",
	"will be removed",
	"close the trading",
	"делистинг",
	"делистинге",
	"исключение из листинга",
	"прекращение торгов",
	"удаление торговой пары",
}

var securityKeywords = []string{
	"hack",
	"hacked",
	"exploit",
	"exploited",
	"breach",
	"security incident",
	"phishing",
	"scam",
	"stolen funds",
	"funds stolen",
	"rug pull",
	"vulnerability",
	"взлом",
	"взломан",
	"уязвимость",
	"мошеннич",
	"кража средств",
}

// MentionsCoin reports whether text mentions the coin ticker (optionally
// suffixed USDT) as a standalone token. The boundary rule is "no adjacent
// [A-Z0-9]": BTC matches in "BTC/USDT listing" but not inside "SBTC2".
func MentionsCoin(text, coin string) bool {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if coin == "" {
		return false
	}
	upper := strings.ToUpper(text)
	for _, token := range []string{coin + "USDT", coin} {
		if matchToken(upper, token) {
			return true
		}
	}
	return false
}

// matchToken scans for token occurrences with manual boundary checks,
// standing in for lookaround the regexp engine does not support.
func matchToken(upper, token string) bool {
	for start := 0; ; {
		i := strings.Index(upper[start:], token)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(token)
		if !isWordByte(before(upper, i)) && !isWordByte(at(upper, end)) {
			return true
		}
		start = i + 1
	}
}

func before(s string, i int) byte {
	if i == 0 {
		return 0
	}
	return s[i-1]
}

func at(s string, i int) byte {
	if i >= len(s) {
		return 0
	}
	return s[i]
}

func isWordByte(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// HasDelistingKeyword reports a hard delisting keyword in text.
func HasDelistingKeyword(text string) bool {
	return containsAny(text, delistingKeywords)
}

// HasSecurityKeyword reports a security-incident keyword in text.
func HasSecurityKeyword(text string) bool {
	return containsAny(text, securityKeywords)
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// HasDelistingTag reports the explicit delisting tag venues attach to
// announcement API entries.
func HasDelistingTag(tags []string) bool {
	for _, t := range tags {
		if strings.EqualFold(strings.TrimSpace(t), "SYMBOL_DELISTING") {
			return true
		}
	}
	return false
}
