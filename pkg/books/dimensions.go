package books

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var dimensionPattern = regexp.MustCompile(`(?i)^([0-9]+(?:[.,][0-9]+)?)\s*(cm|centimeters|centimetres|mm|millimeters|millimetres|in|inch|inches|")?\.?$`)

// parseCentimetres converts provider dimension text such as "24.00 cm" or
// "9.5 inches" to centimetres. Values without a unit are taken as cm.
func parseCentimetres(text string) *float64 {
	m := dimensionPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil
	}
	value, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil || value <= 0 {
		return nil
	}

	switch strings.ToLower(m[2]) {
	case "mm", "millimeters", "millimetres":
		value /= 10
	case "in", "inch", "inches", `"`:
		value *= 2.54
	}

	value = math.Round(value*100) / 100
	return &value
}
