// Package demo populates a compliance engine with plausible pharmacy data so
// dashboards have something to show in development.
package demo

import "uspguard.org/internal/compliance"

type Staff struct {
	Username string
	FullName string
	Role     string
}

type RiskTemplate struct {
	Title       string
	Description string
	Owner       string
}

// Scenario is the raw material the generator draws from.
type Scenario struct {
	Staff     []Staff
	Tasks     []string
	Documents []string
	Trainings []string
	Risks     []RiskTemplate
	// Weights for Met, In Progress and Not Met respectively.
	StatusWeights [3]int
}

func CompoundingPharmacyScenario() Scenario {
	return Scenario{
		Staff: []Staff{
			{Username: "admin", FullName: "Site Administrator", Role: "admin"},
			{Username: "jdoe", FullName: "Jane Doe, PharmD", Role: "pharmacist"},
			{Username: "msmith", FullName: "Mark Smith, CPhT", Role: "technician"},
		},
		Tasks: []string{
			"Recertify primary engineering controls",
			"Review master formulation records",
			"Complete media-fill testing",
			"Update hazardous drug list",
			"Replace spill kit supplies",
			"Annual SOP review",
		},
		Documents: []string{
			"Cleaning and Disinfection SOP",
			"Garbing Procedure",
			"Hazardous Drug Assessment of Risk",
			"Environmental Monitoring Report",
			"Beyond-Use Date Policy",
		},
		Trainings: []string{
			"Aseptic Technique",
			"Hazardous Drug Handling",
			"Hand Hygiene and Garbing",
		},
		Risks: []RiskTemplate{
			{Title: "Cleanroom pressure excursion", Description: "Differential drops below 0.02 inch water column during peak hours.", Owner: "Facilities"},
			{Title: "Expired certification on hood", Description: "PEC certification lapses before the vendor visit.", Owner: "Pharmacist in charge"},
			{Title: "Incomplete compounding records", Description: "Records missing lot numbers for components.", Owner: "Lead technician"},
			{Title: "HD exposure during receipt", Description: "Damaged shipments opened outside containment.", Owner: "Designated person"},
		},
		StatusWeights: [3]int{60, 25, 15},
	}
}

var statuses = [3]compliance.Status{compliance.StatusMet, compliance.StatusInProgress, compliance.StatusNotMet}
