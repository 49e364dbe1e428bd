package generators

import (
	"context"
	"fmt"

	"github.com/csverma610/medkit/internal/schema"
)

const (
	DrugDrugModule        = "drug_drug_interaction"
	drugDrugFallbackModel = "gemini-1.5-pro"
)

// Severity grades an interaction.
type Severity string

const (
	SeverityNone            Severity = "NONE"
	SeverityMinor           Severity = "MINOR"
	SeverityMild            Severity = "MILD"
	SeverityModerate        Severity = "MODERATE"
	SeveritySignificant     Severity = "SIGNIFICANT"
	SeverityContraindicated Severity = "CONTRAINDICATED"
)

// Confidence grades the evidence behind an assessment.
type Confidence string

const (
	ConfidenceHigh     Confidence = "HIGH"
	ConfidenceModerate Confidence = "MODERATE"
	ConfidenceLow      Confidence = "LOW"
)

type InteractionDetails struct {
	Drug1Name                 string     `json:"drug1_name" validate:"required"`
	Drug2Name                 string     `json:"drug2_name" validate:"required"`
	SeverityLevel             Severity   `json:"severity_level" validate:"required,oneof=NONE MINOR MILD MODERATE SIGNIFICANT CONTRAINDICATED" jsonschema:"enum=NONE,enum=MINOR,enum=MILD,enum=MODERATE,enum=SIGNIFICANT,enum=CONTRAINDICATED"`
	MechanismOfInteraction    string     `json:"mechanism_of_interaction" jsonschema_description:"How the two drugs interact at the molecular or cellular level"`
	ClinicalEffects           string     `json:"clinical_effects" jsonschema_description:"Observable clinical effects, comma-separated"`
	ManagementRecommendations string     `json:"management_recommendations" jsonschema_description:"Dose adjustments, monitoring or spacing, comma-separated"`
	AlternativeMedicines      string     `json:"alternative_medicines" jsonschema_description:"Safer substitutes, comma-separated"`
	ConfidenceLevel           Confidence `json:"confidence_level" validate:"required,oneof=HIGH MODERATE LOW" jsonschema:"enum=HIGH,enum=MODERATE,enum=LOW"`
	DataSourceType            string     `json:"data_source_type"`
	References                string     `json:"references,omitempty"`
}

type PatientSummary struct {
	SimpleExplanation   string `json:"simple_explanation" validate:"required"`
	WhatPatientShouldDo string `json:"what_patient_should_do"`
	WarningSigns        string `json:"warning_signs"`
	WhenToSeekHelp      string `json:"when_to_seek_help,omitempty"`
}

type DataAvailability struct {
	DataAvailable bool   `json:"data_available"`
	Reason        string `json:"reason,omitempty"`
}

// InteractionResult is the drug-drug interaction analysis.
type InteractionResult struct {
	InteractionDetails     *InteractionDetails `json:"interaction_details,omitempty"`
	TechnicalSummary       string              `json:"technical_summary" validate:"required"`
	PatientFriendlySummary *PatientSummary     `json:"patient_friendly_summary,omitempty"`
	DataAvailability       DataAvailability    `json:"data_availability"`
}

var interactionCodec = schema.NewCodec[InteractionResult]("1")

// DrugDrugInput describes one drug pair to check.
type DrugDrugInput struct {
	DrugA      string
	DrugB      string
	Age        *int
	Conditions string
	DosageA    string
	DosageB    string
}

func (in DrugDrugInput) validate() error {
	if err := requireName("medicine 1 name", in.DrugA); err != nil {
		return err
	}
	if err := requireName("medicine 2 name", in.DrugB); err != nil {
		return err
	}
	return checkAge(in.Age)
}

func (in DrugDrugInput) components() []string {
	return []string{in.DrugA, in.DrugB, ageComponent(in.Age), in.Conditions, in.DosageA, in.DosageB}
}

func (in DrugDrugInput) prompt() string {
	ctx := promptContext(
		fmt.Sprintf("Checking interaction between %s and %s", in.DrugA, in.DrugB),
		ageLabel(in.Age),
		labeled(in.DrugA+" dosage", in.DosageA),
		labeled(in.DrugB+" dosage", in.DosageB),
		labeled("Patient conditions", in.Conditions),
	)
	return fmt.Sprintf("%s and %s interaction analysis. %s", in.DrugA, in.DrugB, ctx)
}

// DrugDrugInteraction analyzes how two drugs interact.
func (r *Runner) DrugDrugInteraction(ctx context.Context, in DrugDrugInput) (InteractionResult, error) {
	if err := in.validate(); err != nil {
		return InteractionResult{}, err
	}
	c := r.Session(DrugDrugModule)
	defer c.Close()
	g := r.generator(DrugDrugModule, drugDrugFallbackModel)

	lg := r.logger()
	lg.Info().Str("module", DrugDrugModule).Str("drug_a", in.DrugA).Str("drug_b", in.DrugB).Msg("analyzing interaction")
	res, err := fetch(ctx, c, g, interactionCodec, in.components(), in.prompt())
	if err != nil {
		return InteractionResult{}, fmt.Errorf("drug-drug interaction %s/%s: %w", in.DrugA, in.DrugB, err)
	}
	return res, nil
}
