package products

import (
	"regexp"
	"strconv"
	"strings"
)

const amount = `(\d[\d.,]*\d|\d)`

var (
	symbolFirst = regexp.MustCompile(`[$€£¥₹]\s?` + amount)
	symbolAfter = regexp.MustCompile(amount + `\s?[$€£¥₹]`)
	usdPrefix   = regexp.MustCompile(`(?i)\bUSD\s?` + amount)
)

// ExtractPrice finds the first currency amount in text. It recognises a
// symbol before or after the number and the "USD n" form.
func ExtractPrice(text string) (display string, num float64, ok bool) {
	best := -1
	var digits string
	for _, re := range []*regexp.Regexp{symbolFirst, symbolAfter, usdPrefix} {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		if best == -1 || loc[0] < best {
			best = loc[0]
			display = strings.TrimSpace(text[loc[0]:loc[1]])
			digits = text[loc[2]:loc[3]]
		}
	}
	if best == -1 {
		return "", 0, false
	}
	n, ok := parseAmount(digits)
	if !ok {
		return "", 0, false
	}
	return display, n, true
}

// parseAmount reads "1,234.56", "1.234,56", "12,99" and "1234".
func parseAmount(s string) (float64, bool) {
	s = strings.Trim(s, ".,")
	lastComma := strings.LastIndexByte(s, ',')
	lastDot := strings.LastIndexByte(s, '.')
	if lastComma > lastDot && len(s)-lastComma-1 == 2 {
		s = strings.NewReplacer(".", "", ",", "").Replace(s[:lastComma]) + "." + s[lastComma+1:]
	} else {
		s = strings.ReplaceAll(s, ",", "")
		if strings.Count(s, ".") > 1 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// NumericPrice returns the product's numeric price, parsing the display price
// when no number was recorded.
func NumericPrice(p Product) (float64, bool) {
	if p.PriceNum != nil {
		return *p.PriceNum, true
	}
	if p.Price == "" {
		return 0, false
	}
	if _, n, ok := ExtractPrice(p.Price); ok {
		return n, true
	}
	return parseAmount(strings.TrimSpace(p.Price))
}
