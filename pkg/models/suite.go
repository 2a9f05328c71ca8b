package models

import "strings"

// Payload is one question plus its expected routing decision.
type Payload struct {
	// Question is the natural-language input sent to the service.
	Question string `json:"question"`
	// ExpectedIntent is the intent the planner should choose. Empty means no expectation.
	ExpectedIntent string `json:"expected_intent,omitempty"`
	// ExpectedEntity is the entity the planner should choose. Empty means no expectation.
	ExpectedEntity string `json:"expected_entity,omitempty"`
}

// HasExpectations reports whether at least one expectation is set.
func (p Payload) HasExpectations() bool {
	return p.ExpectedIntent != "" || p.ExpectedEntity != ""
}

// Trimmed returns a copy with surrounding whitespace removed from every field.
func (p Payload) Trimmed() Payload {
	return Payload{
		Question:       strings.TrimSpace(p.Question),
		ExpectedIntent: strings.TrimSpace(p.ExpectedIntent),
		ExpectedEntity: strings.TrimSpace(p.ExpectedEntity),
	}
}

// Suite is a named, file-backed list of payloads (suite contract v2).
type Suite struct {
	// Suite must equal the file name without the "_suite.json" suffix.
	Suite       string    `json:"suite"`
	Description string    `json:"description,omitempty"`
	Payloads    []Payload `json:"payloads"`
}

// RoutingSampleType is the type tag of merged routing sample files.
const RoutingSampleType = "routing"

// RoutingSampleSet is the deduplicated union of all suite payloads.
type RoutingSampleSet struct {
	Type     string    `json:"type"`
	Payloads []Payload `json:"payloads"`
}
