package classify

import (
	"regexp"
	"strings"
)

type cityEntry struct {
	name    string
	state   string
	display string
}

// Table order decides ties between overlapping names, so more specific
// entries come before names they contain.
var majorCities = []cityEntry{
	{"new york city", "NY", ""},
	{"new york", "NY", ""},
	{"los angeles", "CA", ""},
	{"chicago", "IL", ""},
	{"houston", "TX", ""},
	{"phoenix", "AZ", ""},
	{"philadelphia", "PA", ""},
	{"san antonio", "TX", ""},
	{"san diego", "CA", ""},
	{"dallas", "TX", ""},
	{"san jose", "CA", ""},
	{"austin", "TX", ""},
	{"jacksonville", "FL", ""},
	{"fort worth", "TX", ""},
	{"columbus", "OH", ""},
	{"charlotte", "NC", ""},
	{"san francisco", "CA", ""},
	{"indianapolis", "IN", ""},
	{"seattle", "WA", ""},
	{"denver", "CO", ""},
	{"washington, d.c.", "DC", "Washington"},
	{"washington dc", "DC", "Washington"},
	{"boston", "MA", ""},
	{"el paso", "TX", ""},
	{"nashville", "TN", ""},
	{"detroit", "MI", ""},
	{"oklahoma city", "OK", ""},
	{"portland", "OR", ""},
	{"las vegas", "NV", ""},
	{"memphis", "TN", ""},
	{"louisville", "KY", ""},
	{"baltimore", "MD", ""},
	{"milwaukee", "WI", ""},
	{"albuquerque", "NM", ""},
	{"tucson", "AZ", ""},
	{"fresno", "CA", ""},
	{"sacramento", "CA", ""},
	{"kansas city", "MO", ""},
	{"mesa", "AZ", ""},
	{"atlanta", "GA", ""},
	{"omaha", "NE", ""},
	{"colorado springs", "CO", ""},
	{"raleigh", "NC", ""},
	{"long beach", "CA", ""},
	{"virginia beach", "VA", ""},
	{"miami", "FL", ""},
	{"oakland", "CA", ""},
	{"minneapolis", "MN", ""},
	{"tulsa", "OK", ""},
	{"tampa", "FL", ""},
	{"arlington", "TX", ""},
	{"new orleans", "LA", ""},
	{"cleveland", "OH", ""},
	{"honolulu", "HI", ""},
	{"anaheim", "CA", ""},
	{"orlando", "FL", ""},
	{"st. louis", "MO", "St. Louis"},
	{"st louis", "MO", "St. Louis"},
	{"pittsburgh", "PA", ""},
	{"cincinnati", "OH", ""},
	{"salt lake city", "UT", ""},
	{"birmingham", "AL", ""},
	{"richmond", "VA", ""},
	{"boise", "ID", ""},
	{"spokane", "WA", ""},
	{"des moines", "IA", ""},
	{"little rock", "AR", ""},
	{"anchorage", "AK", ""},
	{"buffalo", "NY", ""},
	{"newark", "NJ", ""},
	{"baton rouge", "LA", ""},
}

var stateNames = []struct {
	name string
	code string
}{
	{"district of columbia", "DC"},
	{"north carolina", "NC"},
	{"south carolina", "SC"},
	{"massachusetts", "MA"},
	{"new hampshire", "NH"},
	{"pennsylvania", "PA"},
	{"west virginia", "WV"},
	{"rhode island", "RI"},
	{"north dakota", "ND"},
	{"south dakota", "SD"},
	{"connecticut", "CT"},
	{"mississippi", "MS"},
	{"washington", "WA"},
	{"california", "CA"},
	{"louisiana", "LA"},
	{"minnesota", "MN"},
	{"tennessee", "TN"},
	{"wisconsin", "WI"},
	{"new jersey", "NJ"},
	{"new mexico", "NM"},
	{"oklahoma", "OK"},
	{"maryland", "MD"},
	{"michigan", "MI"},
	{"kentucky", "KY"},
	{"illinois", "IL"},
	{"virginia", "VA"},
	{"colorado", "CO"},
	{"delaware", "DE"},
	{"arkansas", "AR"},
	{"nebraska", "NE"},
	{"missouri", "MO"},
	{"new york", "NY"},
	{"alabama", "AL"},
	{"arizona", "AZ"},
	{"florida", "FL"},
	{"georgia", "GA"},
	{"indiana", "IN"},
	{"montana", "MT"},
	{"nevada", "NV"},
	{"vermont", "VT"},
	{"wyoming", "WY"},
	{"alaska", "AK"},
	{"hawaii", "HI"},
	{"kansas", "KS"},
	{"oregon", "OR"},
	{"texas", "TX"},
	{"idaho", "ID"},
	{"maine", "ME"},
	{"iowa", "IA"},
	{"ohio", "OH"},
	{"utah", "UT"},
}

var stateCodes = map[string]struct{}{}

func init() {
	for _, st := range stateNames {
		stateCodes[st.code] = struct{}{}
	}
}

var bareCodePattern = regexp.MustCompile(`\b[A-Z]{2}\b`)

// Locate runs the city table, then full state names, then bare uppercase
// state codes, returning on the first strategy that finds anything.
func Locate(text string) Location {
	if strings.TrimSpace(text) == "" {
		return Location{}
	}
	lowered := strings.ToLower(text)

	// Cities need a word match, not a plain substring hit, so "Mesaba"
	// does not resolve to Mesa.
	for _, city := range majorCities {
		if containsWord(lowered, city.name) {
			name := city.display
			if name == "" {
				name = titleCase(city.name)
			}
			return Location{City: name, State: city.state}
		}
	}
	for _, st := range stateNames {
		if containsWord(lowered, st.name) {
			return Location{State: st.code}
		}
	}
	for _, token := range bareCodePattern.FindAllString(text, -1) {
		if IsStateCode(token) {
			return Location{State: token}
		}
	}
	return Location{}
}

// IsStateCode reports whether code is a two-letter US state or DC code.
func IsStateCode(code string) bool {
	_, ok := stateCodes[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// containsWord is a case-sensitive substring match that refuses hits glued
// to neighbouring letters ("mesa" inside "mesage" does not count).
func containsWord(haystack, needle string) bool {
	start := 0
	for {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(needle)
		if (idx == 0 || !isLetter(haystack[idx-1])) && (end == len(haystack) || !isLetter(haystack[end])) {
			return true
		}
		start = idx + 1
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func titleCase(value string) string {
	words := strings.Fields(value)
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
