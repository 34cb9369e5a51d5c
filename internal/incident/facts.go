package incident

// Person is one individual named in coverage of a crash.
type Person struct {
	Role        string  `json:"role"`
	Description string  `json:"description"`
	Age         *int    `json:"age"`
	Status      *string `json:"status"`
}

// Vehicle is one vehicle named in coverage of a crash.
type Vehicle struct {
	Type         string  `json:"type"`
	OwnerCompany *string `json:"ownerCompany"`
}

// AccidentFacts is the structured extraction stored on an incident. Unknown
// scalars marshal as null and list fields always marshal as arrays.
type AccidentFacts struct {
	PrimaryLocation    *string   `json:"primaryLocation"`
	City               *string   `json:"city"`
	County             *string   `json:"county"`
	State              *string   `json:"state"`
	Roads              []string  `json:"roads"`
	TimeOfCrashApprox  *string   `json:"timeOfCrashApprox"`
	PeopleInvolved     []Person  `json:"peopleInvolved"`
	Vehicles           []Vehicle `json:"vehicles"`
	CompaniesMentioned []string  `json:"companiesMentioned"`
	AgenciesInvolved   []string  `json:"agenciesInvolved"`
	InjuriesCount      *int      `json:"injuriesCount"`
	FatalitiesCount    *int      `json:"fatalitiesCount"`
	CauseOrAllegations *string   `json:"causeOrAllegations"`
}

// Normalize replaces nil slices with empty ones so the JSON form never
// carries null where a list is expected.
func (f *AccidentFacts) Normalize() {
	if f == nil {
		return
	}
	if f.Roads == nil {
		f.Roads = []string{}
	}
	if f.PeopleInvolved == nil {
		f.PeopleInvolved = []Person{}
	}
	if f.Vehicles == nil {
		f.Vehicles = []Vehicle{}
	}
	if f.CompaniesMentioned == nil {
		f.CompaniesMentioned = []string{}
	}
	if f.AgenciesInvolved == nil {
		f.AgenciesInvolved = []string{}
	}
}

// EmptyFacts returns a facts value with every list initialized.
func EmptyFacts() *AccidentFacts {
	facts := &AccidentFacts{}
	facts.Normalize()
	return facts
}
