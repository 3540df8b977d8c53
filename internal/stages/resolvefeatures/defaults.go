// internal/stages/resolvefeatures/defaults.go
package resolvefeatures

import "strings"

// Canonical vocabulary of the resale dataset, uppercase as stored.
var (
	validTowns = []string{
		"ANG MO KIO", "BEDOK", "BISHAN", "BUKIT BATOK", "BUKIT MERAH",
		"BUKIT PANJANG", "BUKIT TIMAH", "CENTRAL AREA", "CHOA CHU KANG",
		"CLEMENTI", "GEYLANG", "HOUGANG", "JURONG EAST", "JURONG WEST",
		"KALLANG/WHAMPOA", "MARINE PARADE", "PASIR RIS", "PUNGGOL",
		"QUEENSTOWN", "SEMBAWANG", "SENGKANG", "SERANGOON", "TAMPINES",
		"TOA PAYOH", "WOODLANDS", "YISHUN",
	}

	validFlatTypes = []string{
		"1 ROOM", "2 ROOM", "3 ROOM", "4 ROOM", "5 ROOM",
		"EXECUTIVE", "MULTI-GENERATION",
	}

	validStoreyRanges = []string{
		"01 TO 03", "01 TO 05", "04 TO 06", "06 TO 10", "07 TO 09",
		"10 TO 12", "11 TO 15", "13 TO 15", "16 TO 18", "16 TO 20",
		"19 TO 21", "21 TO 25", "22 TO 24", "25 TO 27", "26 TO 30",
		"28 TO 30", "31 TO 33", "31 TO 35", "34 TO 36", "36 TO 40",
		"37 TO 39", "40 TO 42",
	}

	validFlatModels = []string{
		"2-ROOM", "3GEN", "ADJOINED FLAT", "APARTMENT", "DBSS",
		"IMPROVED", "IMPROVED-MAISONETTE", "MAISONETTE", "MODEL A",
		"MODEL A-MAISONETTE", "MODEL A2", "MULTI GENERATION",
		"NEW GENERATION", "PREMIUM APARTMENT", "PREMIUM APARTMENT LOFT",
		"PREMIUM MAISONETTE", "SIMPLIFIED", "STANDARD", "TERRACE",
		"TYPE S1", "TYPE S2",
	}
)

const (
	minFloorArea = 31.0
	maxFloorArea = 266.0

	defaultTown        = "ANG MO KIO"
	defaultFlatType    = "4 ROOM"
	defaultFlatModel   = "IMPROVED"
	defaultStoreyRange = "07 TO 09"

	// Latest lease commencement year present in the dataset.
	defaultLeaseYear = 2025

	minLeaseYear = 1960
	maxLeaseYear = 2025
)

// medianFloorArea holds the dataset median floor area per flat type, used
// when the question names a flat type but no area.
var medianFloorArea = map[string]float64{
	"1 ROOM":           33,
	"2 ROOM":           45,
	"3 ROOM":           68,
	"4 ROOM":           93,
	"5 ROOM":           113,
	"EXECUTIVE":        146,
	"MULTI-GENERATION": 164,
}

// canonicalize uppercases and collapses the hyphen and spacing variants the
// model tends to emit ("4-room", "ang mo kio") onto the dataset vocabulary.
func canonicalize(value string) string {
	return strings.ToUpper(strings.TrimSpace(value))
}

func canonicalizeFlatType(value string) string {
	v := canonicalize(value)
	v = strings.ReplaceAll(v, "-ROOM", " ROOM")
	if v == "MULTI GENERATION" {
		v = "MULTI-GENERATION"
	}
	return v
}

func isValid(value string, vocabulary []string) bool {
	for _, v := range vocabulary {
		if v == value {
			return true
		}
	}
	return false
}
