package main

import (
	"math"
	"strconv"
)

var hashrateUnits = [...]string{"H", "KH", "MH", "GH", "TH", "PH"}

// readableRate renders a non-negative rate with two decimals and the largest
// unit of the H..PH ladder the value reaches. A value advances a rung when it
// is >= 1000 of the current unit; PH is the last rung.
func readableRate(value float64) string {
	if value < 0 || math.IsNaN(value) {
		value = 0
	}
	unit := 0
	for value >= 1000 && unit < len(hashrateUnits)-1 {
		value /= 1000
		unit++
	}
	return strconv.FormatFloat(value, 'f', 2, 64) + " " + hashrateUnits[unit]
}
