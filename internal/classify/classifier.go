// Package classify decides which feed items describe road traffic accidents
// and pulls a best-effort city and state out of their text.
//
// Matching is deliberately heuristic: phrase lists and substring lookups,
// first match wins. Location is resolved by a single pass over three
// strategies and conflicting signals are never reconciled, so a headline
// that names one city and a different state resolves to the city.
package classify

import (
	"regexp"
	"strings"
)

// Location is a best-effort place extracted from free text. Either field
// may be empty.
type Location struct {
	City  string
	State string
}

// Classifier is the relevance and location policy applied to raw feed text.
type Classifier interface {
	IsAccident(text string) bool
	Locate(text string) Location
}

var excludePhrases = []string{
	"stock market crash",
	"market crash",
	"stocks crash",
	"stock crash",
	"housing crash",
	"crypto crash",
	"bitcoin crash",
	"price crash",
	"plane crash",
	"airplane crash",
	"jet crash",
	"helicopter crash",
	"aircraft",
	"small plane",
	"train crash",
	"train derail",
	"derailment",
	"boat crash",
	"boating accident",
	"ferry",
	"cruise ship",
	"drone crash",
	"app crash",
	"server crash",
	"system crash",
	"website crash",
	"game crash",
	"crash course",
	"crash diet",
	"crash landing",
	"wedding crash",
	"party crash",
	"crash out",
}

var includePhrases = []string{
	"car crash",
	"car accident",
	"auto accident",
	"vehicle crash",
	"vehicle accident",
	"traffic accident",
	"traffic crash",
	"traffic collision",
	"fatal crash",
	"fatal accident",
	"deadly crash",
	"head-on collision",
	"head-on crash",
	"rear-end",
	"pedestrian struck",
	"pedestrian hit",
	"pedestrian killed",
	"struck by a vehicle",
	"struck by vehicle",
	"struck by a car",
	"hit by a car",
	"cyclist struck",
	"bicyclist struck",
	"hit-and-run",
	"hit and run",
	"rollover",
	"wrong-way",
	"wrong way driver",
	"multi-vehicle",
	"multiple-vehicle",
	"pileup",
	"pile-up",
	"dui crash",
	"drunk driving crash",
	"drunk driver",
	"t-bone",
	"crash on i-",
	"crash on highway",
	"crash on interstate",
	"highway crash",
	"freeway crash",
	"interstate crash",
}

var vehicleIncidentPattern = regexp.MustCompile(
	`\b(car|cars|vehicle|vehicles|truck|trucks|semi|semi-truck|tractor-trailer|big rig|suv|van|minivan|pickup|bus|motorcycle|motorcyclist|moped|scooter|bicycle|bike|cyclist|pedestrian|sedan|two-vehicle|two vehicle|three-vehicle|18-wheeler)\s+(crash|crashes|accident|accidents|collision|collisions|wreck|wrecks)\b`,
)

// PhraseClassifier is the default curated phrase-list classifier.
type PhraseClassifier struct{}

func NewPhraseClassifier() PhraseClassifier {
	return PhraseClassifier{}
}

// IsAccident rejects on any exclusion phrase first, then accepts on an
// inclusion phrase or a vehicle-type incident pattern.
func (PhraseClassifier) IsAccident(text string) bool {
	lowered := strings.ToLower(text)
	if strings.TrimSpace(lowered) == "" {
		return false
	}
	for _, phrase := range excludePhrases {
		if strings.Contains(lowered, phrase) {
			return false
		}
	}
	for _, phrase := range includePhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return vehicleIncidentPattern.MatchString(lowered)
}

func (PhraseClassifier) Locate(text string) Location {
	return Locate(text)
}
