package services

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"github.com/ekaya-inc/ekaya-crm/pkg/models"
	"github.com/ekaya-inc/ekaya-crm/pkg/prompts"
)

var japaneseUnits = map[rune]float64{
	'兆': 1e12,
	'億': 1e8,
	'万': 1e4,
	'千': 1e3,
}

// CoerceNumber reads the first figure in a model-reported value, e.g.
// "1億2000万円" -> 120000000, "従業員 350名" -> 350, "¥1,234" -> 1234.
// Japanese unit suffixes multiply and consecutive unit groups add up.
// A figure directly followed by 年, 月 or 日 is a date part and is skipped.
func CoerceNumber(raw string) (float64, bool) {
	s := width.Narrow.String(raw)
	s = strings.NewReplacer(",", "", " ", "", "\u3000", "", "\t", "").Replace(s)
	runes := []rune(s)

	for i := 0; i < len(runes); {
		if !startsNumber(runes, i) {
			i++
			continue
		}
		total, end, ok := readFigure(runes, i)
		if end <= i {
			end = i + 1
		}
		if !ok {
			i = end
			continue
		}
		if end < len(runes) && isDateSuffix(runes[end]) {
			i = end + 1
			continue
		}
		return total, true
	}
	return 0, false
}

func isDateSuffix(r rune) bool {
	return r == '年' || r == '月' || r == '日'
}

func startsNumber(r []rune, i int) bool {
	if unicode.IsDigit(r[i]) && r[i] < unicode.MaxASCII {
		return true
	}
	return r[i] == '-' && i+1 < len(r) && r[i+1] >= '0' && r[i+1] <= '9' && (i == 0 || !unicode.IsDigit(r[i-1]))
}

// readFigure reads number(unit)? groups starting at i and sums them.
func readFigure(r []rune, i int) (float64, int, bool) {
	var total float64
	sign := 1.0
	if r[i] == '-' {
		sign = -1
		i++
	}
	groups := 0
	for i < len(r) {
		j := i
		for j < len(r) && (r[j] >= '0' && r[j] <= '9' || r[j] == '.') {
			j++
		}
		if j == i {
			break
		}
		n, err := strconv.ParseFloat(string(r[i:j]), 64)
		if err != nil {
			return 0, j, false
		}
		i = j
		groups++
		if i < len(r) {
			if mult, ok := japaneseUnits[r[i]]; ok {
				total += n * mult
				i++
				continue
			}
		}
		total += n
		break
	}
	if groups == 0 || math.IsInf(total, 0) {
		return 0, i, false
	}
	return sign * total, i, true
}

// GateResult applies the confidence gate to an extracted value. It reports
// whether the value may be written and, if not, why.
func GateResult(value string, confidence models.Confidence, kw *prompts.Keywords) (bool, string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, "empty value"
	}
	if confidence == models.ConfidenceLow {
		return false, "low confidence"
	}
	if phrase := kw.HedgingPhrase(value); phrase != "" {
		return false, "hedging phrase: " + phrase
	}
	return true, ""
}
