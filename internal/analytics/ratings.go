package analytics

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// UnratedLabel marks instruments with neither a rating nor a PD
const UnratedLabel = "Unrated"

var agencyScale = map[string]int{}

func init() {
	sp := []string{
		"AAA", "AA+", "AA", "AA-", "A+", "A", "A-",
		"BBB+", "BBB", "BBB-", "BB+", "BB", "BB-", "B+", "B", "B-",
		"CCC+", "CCC", "CCC-", "CC", "C", "D",
	}
	moodys := []string{
		"Aaa", "Aa1", "Aa2", "Aa3", "A1", "A2", "A3",
		"Baa1", "Baa2", "Baa3", "Ba1", "Ba2", "Ba3", "B1", "B2", "B3",
		"Caa1", "Caa2", "Caa3", "Ca", "C",
	}
	for i, r := range sp {
		agencyScale[r] = i
	}
	for i, r := range moodys {
		if _, ok := agencyScale[r]; !ok {
			agencyScale[r] = i
		}
	}
	agencyScale["SD"] = agencyScale["D"]
	agencyScale["RD"] = agencyScale["D"]
}

func agencyNotch(label string) (int, bool) {
	if n, ok := agencyScale[label]; ok {
		return n, true
	}
	n, ok := agencyScale[strings.ToUpper(label)]
	return n, ok
}

// NotchChange is the number of scale steps from one label to another,
// positive for a downgrade. Agency ratings step along the agency scale,
// numeric ratings by their difference and PD bands by band index. Labels
// on different scales have no distance and report false; identical labels
// are always zero.
func NotchChange(from, to string) (int, bool) {
	if from == to {
		return 0, true
	}
	if from == UnratedLabel || to == UnratedLabel {
		return 0, false
	}
	if a, ok := bandIndex(from); ok {
		b, ok := bandIndex(to)
		return b - a, ok
	}
	if _, ok := bandIndex(to); ok {
		return 0, false
	}
	if a, ok := agencyNotch(from); ok {
		b, ok := agencyNotch(to)
		return b - a, ok
	}
	a, errA := strconv.ParseFloat(from, 64)
	b, errB := strconv.ParseFloat(to, 64)
	if errA != nil || errB != nil {
		return 0, false
	}
	return int(math.Round(b - a)), true
}

// OrderLabels sorts rating labels best first. Ratings use the agency scale
// when every one parses on it, otherwise numeric order when every one is a
// number, otherwise lexical order. PD band labels follow the ratings in band
// order and Unrated is always last.
func OrderLabels(labels []string) []string {
	var ratings, bands []string
	unrated := false
	seen := make(map[string]bool)
	for _, l := range labels {
		if seen[l] {
			continue
		}
		seen[l] = true
		switch _, isBand := bandIndex(l); {
		case l == UnratedLabel:
			unrated = true
		case isBand:
			bands = append(bands, l)
		default:
			ratings = append(ratings, l)
		}
	}

	sortRatings(ratings)
	sort.SliceStable(bands, func(i, j int) bool {
		a, _ := bandIndex(bands[i])
		b, _ := bandIndex(bands[j])
		return a < b
	})

	out := append(ratings, bands...)
	if unrated {
		out = append(out, UnratedLabel)
	}
	return out
}

func sortRatings(ratings []string) {
	allAgency, allNumeric := true, true
	for _, r := range ratings {
		if _, ok := agencyNotch(r); !ok {
			allAgency = false
		}
		if _, err := strconv.ParseFloat(r, 64); err != nil {
			allNumeric = false
		}
	}
	switch {
	case allAgency:
		sort.SliceStable(ratings, func(i, j int) bool {
			a, _ := agencyNotch(ratings[i])
			b, _ := agencyNotch(ratings[j])
			if a != b {
				return a < b
			}
			return ratings[i] < ratings[j]
		})
	case allNumeric:
		sort.SliceStable(ratings, func(i, j int) bool {
			a, _ := strconv.ParseFloat(ratings[i], 64)
			b, _ := strconv.ParseFloat(ratings[j], 64)
			return a < b
		})
	default:
		sort.Strings(ratings)
	}
}
