package geo

import (
	"regexp"
	"strings"
)

// State is a USPS state or territory
type State struct {
	Code string `json:"code"`
	Name string `json:"name"`
	FIPS string `json:"fips"`
}

var states = []State{
	{"AL", "Alabama", "01"}, {"AK", "Alaska", "02"}, {"AZ", "Arizona", "04"},
	{"AR", "Arkansas", "05"}, {"CA", "California", "06"}, {"CO", "Colorado", "08"},
	{"CT", "Connecticut", "09"}, {"DE", "Delaware", "10"}, {"DC", "District of Columbia", "11"},
	{"FL", "Florida", "12"}, {"GA", "Georgia", "13"}, {"HI", "Hawaii", "15"},
	{"ID", "Idaho", "16"}, {"IL", "Illinois", "17"}, {"IN", "Indiana", "18"},
	{"IA", "Iowa", "19"}, {"KS", "Kansas", "20"}, {"KY", "Kentucky", "21"},
	{"LA", "Louisiana", "22"}, {"ME", "Maine", "23"}, {"MD", "Maryland", "24"},
	{"MA", "Massachusetts", "25"}, {"MI", "Michigan", "26"}, {"MN", "Minnesota", "27"},
	{"MS", "Mississippi", "28"}, {"MO", "Missouri", "29"}, {"MT", "Montana", "30"},
	{"NE", "Nebraska", "31"}, {"NV", "Nevada", "32"}, {"NH", "New Hampshire", "33"},
	{"NJ", "New Jersey", "34"}, {"NM", "New Mexico", "35"}, {"NY", "New York", "36"},
	{"NC", "North Carolina", "37"}, {"ND", "North Dakota", "38"}, {"OH", "Ohio", "39"},
	{"OK", "Oklahoma", "40"}, {"OR", "Oregon", "41"}, {"PA", "Pennsylvania", "42"},
	{"RI", "Rhode Island", "44"}, {"SC", "South Carolina", "45"}, {"SD", "South Dakota", "46"},
	{"TN", "Tennessee", "47"}, {"TX", "Texas", "48"}, {"UT", "Utah", "49"},
	{"VT", "Vermont", "50"}, {"VA", "Virginia", "51"}, {"WA", "Washington", "53"},
	{"WV", "West Virginia", "54"}, {"WI", "Wisconsin", "55"}, {"WY", "Wyoming", "56"},
	{"PR", "Puerto Rico", "72"},
}

var (
	statesByCode = make(map[string]State, len(states))
	statesByName = make(map[string]State, len(states))
	statesByFIPS = make(map[string]State, len(states))

	twoLetterPattern = regexp.MustCompile(`[A-Z]{2}`)
)

func init() {
	for _, s := range states {
		statesByCode[s.Code] = s
		statesByName[strings.ToUpper(s.Name)] = s
		statesByFIPS[s.FIPS] = s
	}
}

// States returns every known state in FIPS order
func States() []State {
	out := make([]State, len(states))
	copy(out, states)
	return out
}

// LookupState returns the state for a USPS code
func LookupState(code string) (State, bool) {
	s, ok := statesByCode[strings.ToUpper(strings.TrimSpace(code))]
	return s, ok
}

// NormalizeState turns a raw state cell into a USPS code. Full names and FIPS
// codes are recognized; otherwise the first run of two capital letters in the
// uppercased value is taken, so "tx " and "TX-Dallas" both give "TX".
func NormalizeState(raw string) string {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return ""
	}
	if s, ok := statesByName[value]; ok {
		return s.Code
	}
	if s, ok := statesByFIPS[value]; ok {
		return s.Code
	}
	if len(value) == 1 {
		if s, ok := statesByFIPS["0"+value]; ok {
			return s.Code
		}
	}
	return twoLetterPattern.FindString(value)
}
