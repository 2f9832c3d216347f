package metric

import "math"

// City size categories.
const (
	Size10M     = "10 million or more"
	Size5To10M  = "5 to 10 million"
	Size1To5M   = "1 to 5 million"
	Size500kTo1 = "500 000 to 1 million"
	Size300k    = "300 000 to 500 000"
	SizeSmall   = "Fewer than 300 000"
)

// SizeCategories lists the categories from largest to smallest.
var SizeCategories = []string{Size10M, Size5To10M, Size1To5M, Size500kTo1, Size300k, SizeSmall}

// Population thresholds (inhabitants).
const (
	threshold10M  = 10_000_000
	threshold5M   = 5_000_000
	threshold1M   = 1_000_000
	threshold500k = 500_000
	threshold300k = 300_000
)

// SizeCategory classifies a city by absolute population. Missing and zero
// populations fall in the smallest class.
func SizeCategory(pop float64) string {
	switch {
	case math.IsNaN(pop) || pop == 0:
		return SizeSmall
	case pop >= threshold10M:
		return Size10M
	case pop >= threshold5M:
		return Size5To10M
	case pop >= threshold1M:
		return Size1To5M
	case pop >= threshold500k:
		return Size500kTo1
	case pop >= threshold300k:
		return Size300k
	default:
		return SizeSmall
	}
}

// SizeCategoryThousands classifies a population given in thousands.
func SizeCategoryThousands(thousands float64) string {
	return SizeCategory(thousands * 1000)
}
