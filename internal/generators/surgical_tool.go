package generators

import (
	"context"
	"fmt"

	"github.com/csverma610/medkit/internal/schema"
)

const SurgicalToolModule = "surgical_tool_info"

type ToolBasics struct {
	ToolName            string `json:"tool_name" validate:"required"`
	AlternativeNames    string `json:"alternative_names"`
	ToolCategory        string `json:"tool_category" jsonschema_description:"cutting, grasping, retracting, cautery and so on"`
	SurgicalSpecialties string `json:"surgical_specialties"`
	InstrumentFamily    string `json:"instrument_family"`
}

type ToolPurpose struct {
	PrimaryPurpose       string `json:"primary_purpose" validate:"required"`
	SurgicalApplications string `json:"surgical_applications"`
	AnatomicalTargets    string `json:"anatomical_targets"`
	TissueTypes          string `json:"tissue_types"`
	UniqueAdvantages     string `json:"unique_advantages"`
}

type PhysicalSpecifications struct {
	Dimensions          string `json:"dimensions"`
	Weight              string `json:"weight"`
	MaterialComposition string `json:"material_composition"`
	FinishType          string `json:"finish_type"`
	BladeOrTip          string `json:"blade_or_tip_specifications"`
	HandleDesign        string `json:"handle_design"`
	SterilityType       string `json:"sterility_type"`
}

type SafetyFeatures struct {
	SafetyMechanisms       string `json:"safety_mechanisms"`
	SlipResistance         string `json:"slip_resistance"`
	WearConsiderations     string `json:"wear_considerations"`
	MaximumSafeForce       string `json:"maximum_safe_force"`
	EmergencyProtocols     string `json:"emergency_protocols"`
	TissueDamagePrevention string `json:"tissue_damage_prevention"`
}

type MaintenanceAndCare struct {
	PostOperativeCleaning string `json:"post_operative_cleaning"`
	LubricationSchedule   string `json:"lubrication_schedule"`
	InspectionFrequency   string `json:"inspection_frequency"`
	WearIndicators        string `json:"wear_indicators"`
	SharpeningProtocol    string `json:"sharpening_protocol"`
	RepairGuidelines      string `json:"repair_guidelines"`
	ExpectedLifespan      string `json:"expected_lifespan"`
}

type SterilizationAndDisinfection struct {
	ApprovedMethods        string `json:"approved_sterilization_methods"`
	IncompatibleMethods    string `json:"incompatible_sterilization"`
	DisinfectionAlternates string `json:"disinfection_alternatives"`
	PackagingRequirements  string `json:"packaging_requirements"`
	ValidationStandards    string `json:"validation_standards"`
}

type AlternativesAndComparisons struct {
	SimilarTools          string `json:"similar_alternative_tools"`
	AdvantagesOverOthers  string `json:"advantages_over_alternatives"`
	DisadvantagesVsOthers string `json:"disadvantages_vs_alternatives"`
	CostComparison        string `json:"cost_comparison"`
	WhenToUse             string `json:"when_to_use_this_tool"`
	ComplementaryTools    string `json:"complementary_tools"`
}

type RegulatoryAndStandards struct {
	FDAClassification     string `json:"fda_classification"`
	FDAStatus             string `json:"fda_status"`
	ISOStandards          string `json:"iso_standards"`
	CountryApprovals      string `json:"country_approvals"`
	QualityCertifications string `json:"quality_certifications"`
}

// SurgicalToolInfo describes one surgical instrument.
type SurgicalToolInfo struct {
	Basics        ToolBasics                   `json:"tool_basics"`
	Purpose       ToolPurpose                  `json:"tool_purpose"`
	Physical      PhysicalSpecifications       `json:"physical_specifications"`
	Safety        SafetyFeatures               `json:"safety_features"`
	Maintenance   MaintenanceAndCare           `json:"maintenance_and_care"`
	Sterilization SterilizationAndDisinfection `json:"sterilization_and_disinfection"`
	Alternatives  AlternativesAndComparisons   `json:"alternatives_and_comparisons"`
	Regulatory    RegulatoryAndStandards       `json:"regulatory_and_standards"`
}

var surgicalToolCodec = schema.NewCodec[SurgicalToolInfo]("1")

// SurgicalToolInfo generates reference information for a surgical tool.
func (r *Runner) SurgicalToolInfo(ctx context.Context, tool string) (SurgicalToolInfo, error) {
	if err := requireName("tool name", tool); err != nil {
		return SurgicalToolInfo{}, err
	}
	c := r.Session(SurgicalToolModule)
	defer c.Close()
	g := r.generator(SurgicalToolModule, "")

	lg := r.logger()
	lg.Info().Str("module", SurgicalToolModule).Str("tool", tool).Msg("generating surgical tool information")
	prompt := fmt.Sprintf("Generate comprehensive information for the surgical tool: %s. Include specific measurements, materials and protocols where they apply.", tool)
	res, err := fetch(ctx, c, g, surgicalToolCodec, []string{tool}, prompt)
	if err != nil {
		return SurgicalToolInfo{}, fmt.Errorf("surgical tool %s: %w", tool, err)
	}
	return res, nil
}
