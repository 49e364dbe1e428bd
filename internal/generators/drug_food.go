package generators

import (
	"context"
	"fmt"

	"github.com/csverma610/medkit/internal/schema"
)

const DrugFoodModule = "drug_food_interaction"

type FoodCategoryInteraction struct {
	Category             string   `json:"category" validate:"required" jsonschema:"enum=Citrus Fruits,enum=Berries & Other Fruits,enum=Dairy & Calcium-rich Foods,enum=High-Fat Foods,enum=Leafy Greens (Vitamin K),enum=Alcohol,enum=Caffeine,enum=Herbal Supplements & Teas,enum=Nuts & Seeds,enum=Spices & Seasonings"`
	HasInteraction       bool     `json:"has_interaction"`
	Severity             Severity `json:"severity" validate:"required,oneof=NONE MINOR MILD MODERATE SIGNIFICANT CONTRAINDICATED"`
	SpecificFoods        string   `json:"specific_foods"`
	Mechanism            string   `json:"mechanism,omitempty"`
	TimingRecommendation string   `json:"timing_recommendation,omitempty"`
}

type FoodInteractionDetails struct {
	MedicineName              string                    `json:"medicine_name" validate:"required"`
	OverallSeverity           Severity                  `json:"overall_severity" validate:"required,oneof=NONE MINOR MILD MODERATE SIGNIFICANT CONTRAINDICATED" jsonschema:"enum=NONE,enum=MINOR,enum=MILD,enum=MODERATE,enum=SIGNIFICANT,enum=CONTRAINDICATED"`
	MechanismOfInteraction    string                    `json:"mechanism_of_interaction"`
	ClinicalEffects           string                    `json:"clinical_effects"`
	FoodCategoryInteractions  []FoodCategoryInteraction `json:"food_category_interactions" validate:"dive"`
	ManagementRecommendations string                    `json:"management_recommendations"`
	FoodsToAvoid              string                    `json:"foods_to_avoid"`
	FoodsSafeToConsume        string                    `json:"foods_safe_to_consume"`
	ConfidenceLevel           Confidence                `json:"confidence_level" validate:"required,oneof=HIGH MODERATE LOW" jsonschema:"enum=HIGH,enum=MODERATE,enum=LOW"`
	DataSourceType            string                    `json:"data_source_type"`
	References                string                    `json:"references,omitempty"`
}

type FoodPatientSummary struct {
	SimpleExplanation   string `json:"simple_explanation" validate:"required"`
	WhatPatientShouldDo string `json:"what_patient_should_do"`
	FoodsToAvoidSimple  string `json:"foods_to_avoid_simple"`
	MealTimingGuidance  string `json:"meal_timing_guidance"`
	WarningSigns        string `json:"warning_signs"`
}

// FoodInteractionResult is the drug-food interaction analysis.
type FoodInteractionResult struct {
	InteractionDetails     *FoodInteractionDetails `json:"interaction_details,omitempty"`
	TechnicalSummary       string                  `json:"technical_summary" validate:"required"`
	PatientFriendlySummary *FoodPatientSummary     `json:"patient_friendly_summary,omitempty"`
	DataAvailability       DataAvailability        `json:"data_availability"`
}

var foodInteractionCodec = schema.NewCodec[FoodInteractionResult]("1")

// DrugFoodInput describes one medicine to check against food and drink.
type DrugFoodInput struct {
	Medicine     string
	Diet         string
	Conditions   string
	Age          *int
	SpecificFood string
}

func (in DrugFoodInput) validate() error {
	if err := requireName("medicine name", in.Medicine); err != nil {
		return err
	}
	return checkAge(in.Age)
}

func (in DrugFoodInput) components() []string {
	return []string{in.Medicine, in.Diet, in.Conditions, ageComponent(in.Age), in.SpecificFood}
}

func (in DrugFoodInput) prompt() string {
	ctx := promptContext(
		"Analyzing food interactions for "+in.Medicine,
		labeled("Specific foods to check", in.SpecificFood),
		labeled("Patient diet type", in.Diet),
		ageLabel(in.Age),
		labeled("Patient conditions", in.Conditions),
	)
	return fmt.Sprintf("%s food and beverage interactions analysis. %s", in.Medicine, ctx)
}

// DrugFoodInteraction analyzes how food and beverages interact with a
// medicine.
func (r *Runner) DrugFoodInteraction(ctx context.Context, in DrugFoodInput) (FoodInteractionResult, error) {
	if err := in.validate(); err != nil {
		return FoodInteractionResult{}, err
	}
	c := r.Session(DrugFoodModule)
	defer c.Close()
	g := r.generator(DrugFoodModule, "")

	lg := r.logger()
	lg.Info().Str("module", DrugFoodModule).Str("medicine", in.Medicine).Msg("analyzing food interactions")
	res, err := fetch(ctx, c, g, foodInteractionCodec, in.components(), in.prompt())
	if err != nil {
		return FoodInteractionResult{}, fmt.Errorf("drug-food interaction %s: %w", in.Medicine, err)
	}
	return res, nil
}
