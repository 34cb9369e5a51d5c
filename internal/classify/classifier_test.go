package classify

import "testing"

func TestIsAccidentRejectsExcludedPhrases(t *testing.T) {
	t.Parallel()

	c := NewPhraseClassifier()
	rejected := []string{
		"Stock market crash wipes out retirement savings",
		"Small plane crash near regional airport",
		"Car crash course teaches teens to drive",
		"Train crash derails freight cars in Ohio",
		"Local bakery opens second location",
	}
	for _, text := range rejected {
		if c.IsAccident(text) {
			t.Fatalf("expected %q to be rejected", text)
		}
	}
}

func TestIsAccidentAcceptsTrafficStories(t *testing.T) {
	t.Parallel()

	c := NewPhraseClassifier()
	accepted := []string{
		"Pedestrian struck by vehicle on Main Street",
		"Fatal crash closes I-25 northbound",
		"Police seek driver in hit-and-run",
		"Motorcycle collision leaves rider hospitalized",
		"Semi crash snarls morning commute",
		"Wrong-way driver causes multi-vehicle pileup",
	}
	for _, text := range accepted {
		if !c.IsAccident(text) {
			t.Fatalf("expected %q to be accepted", text)
		}
	}
}

func TestLocatePrefersCityOverBareStateToken(t *testing.T) {
	t.Parallel()

	loc := Locate("OR lanes closed after Denver crash, officials say")
	if loc.City != "Denver" || loc.State != "CO" {
		t.Fatalf("expected Denver, CO, got %+v", loc)
	}
}

func TestLocateFallsBackToStateNameThenCode(t *testing.T) {
	t.Parallel()

	loc := Locate("Two killed in rural West Virginia rollover")
	if loc.City != "" || loc.State != "WV" {
		t.Fatalf("expected WV from state name, got %+v", loc)
	}

	loc = Locate("Crash on Route 9 in Smalltown, NH injures two")
	if loc.State != "NH" {
		t.Fatalf("expected NH from bare code, got %+v", loc)
	}

	loc = Locate("crash on route 9 in smalltown injures two")
	if loc != (Location{}) {
		t.Fatalf("expected empty location, got %+v", loc)
	}
}

func TestLocateIgnoresCityInsideLongerWord(t *testing.T) {
	t.Parallel()

	loc := Locate("Crash near Richmondville in Schoharie County, NY")
	if loc.City != "" || loc.State != "NY" {
		t.Fatalf("expected state-only NY, got %+v", loc)
	}
}

func TestLocateUsesDisplayName(t *testing.T) {
	t.Parallel()

	loc := Locate("Crash in st. louis county")
	if loc.City != "St. Louis" || loc.State != "MO" {
		t.Fatalf("unexpected location: %+v", loc)
	}
}

func TestLocateCityNeedsWholeWord(t *testing.T) {
	t.Parallel()

	loc := Locate("Pickup crash on Mesaba Avenue, Minnesota")
	if loc.City != "" || loc.State != "MN" {
		t.Fatalf("expected Mesaba not to match Mesa, got %+v", loc)
	}
	loc = Locate("Crash in Mesa leaves one hurt")
	if loc.City != "Mesa" || loc.State != "AZ" {
		t.Fatalf("expected Mesa, AZ, got %+v", loc)
	}
}
