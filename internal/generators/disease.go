package generators

import (
	"context"
	"fmt"

	"github.com/csverma610/medkit/internal/cache"
	"github.com/csverma610/medkit/internal/llm"
	"github.com/csverma610/medkit/internal/schema"
)

const (
	DiseaseModule         = "disease_info"
	diseaseFallbackModel  = "gemini-1.5-pro"
	defaultSpeciality     = "Internal Medicine"
	diseaseSchemaVersion  = "1"
	diseasePromptGuidance = "Focus on providing comprehensive, evidence-based information."
)

type RiskFactors struct {
	Modifiable    []string `json:"modifiable"`
	NonModifiable []string `json:"non_modifiable"`
	Environmental []string `json:"environmental"`
}

type DiagnosticCriteria struct {
	Symptoms        []string `json:"symptoms"`
	PhysicalExam    []string `json:"physical_exam"`
	LaboratoryTests []string `json:"laboratory_tests"`
	ImagingStudies  []string `json:"imaging_studies"`
}

type DiseaseIdentity struct {
	Name      string   `json:"name" validate:"required"`
	ICD10Code string   `json:"icd_10_code,omitempty"`
	Synonyms  []string `json:"synonyms"`
}

type DiseaseBackground struct {
	Definition      string `json:"definition" validate:"required"`
	Pathophysiology string `json:"pathophysiology"`
	Etiology        string `json:"etiology"`
}

type DiseaseEpidemiology struct {
	Prevalence  string      `json:"prevalence"`
	Incidence   string      `json:"incidence"`
	RiskFactors RiskFactors `json:"risk_factors"`
}

type DiseaseClinicalPresentation struct {
	Symptoms       []string `json:"symptoms" validate:"min=1"`
	Signs          []string `json:"signs"`
	NaturalHistory string   `json:"natural_history"`
}

type DiseaseDiagnosis struct {
	DiagnosticCriteria    DiagnosticCriteria `json:"diagnostic_criteria"`
	DifferentialDiagnosis []string           `json:"differential_diagnosis"`
}

type DiseaseManagement struct {
	TreatmentOptions []string `json:"treatment_options" validate:"min=1"`
	Prevention       []string `json:"prevention"`
	Prognosis        string   `json:"prognosis"`
}

type DiseaseResearch struct {
	CurrentResearch    string `json:"current_research"`
	RecentAdvancements string `json:"recent_advancements"`
}

type DiseaseSpecialPopulations struct {
	Pediatric string `json:"pediatric"`
	Geriatric string `json:"geriatric"`
	Pregnancy string `json:"pregnancy"`
}

type DiseaseLivingWith struct {
	QualityOfLife    string   `json:"quality_of_life"`
	SupportResources []string `json:"support_resources"`
}

// DiseaseInfo is the assembled disease document. Each section is generated
// and cached on its own.
type DiseaseInfo struct {
	Identity             DiseaseIdentity             `json:"identity"`
	Background           DiseaseBackground           `json:"background"`
	Epidemiology         DiseaseEpidemiology         `json:"epidemiology"`
	ClinicalPresentation DiseaseClinicalPresentation `json:"clinical_presentation"`
	Diagnosis            DiseaseDiagnosis            `json:"diagnosis"`
	Management           DiseaseManagement           `json:"management"`
	Research             DiseaseResearch             `json:"research"`
	SpecialPopulations   DiseaseSpecialPopulations   `json:"special_populations"`
	LivingWith           DiseaseLivingWith           `json:"living_with"`
}

// DiseaseInput names the disease and the audience speciality.
type DiseaseInput struct {
	Disease    string
	Speciality string
}

type diseaseJob struct {
	ctx        context.Context
	c          *cache.Cache
	g          *llm.Generator
	disease    string
	speciality string
}

// section fetches one named section of type T.
func section[T any](j diseaseJob, name string, dst *T) error {
	prompt := fmt.Sprintf("Generate the %s for the disease: %s. %s The target audience is medical professionals in %s.",
		name, j.disease, diseasePromptGuidance, j.speciality)
	v, err := fetch(j.ctx, j.c, j.g, schema.NewCodec[T](diseaseSchemaVersion), []string{j.disease, name}, prompt)
	if err != nil {
		return fmt.Errorf("section %s: %w", name, err)
	}
	*dst = v
	return nil
}

// DiseaseInfo generates the disease document one section at a time.
func (r *Runner) DiseaseInfo(ctx context.Context, in DiseaseInput) (DiseaseInfo, error) {
	if err := requireName("disease name", in.Disease); err != nil {
		return DiseaseInfo{}, err
	}
	speciality := in.Speciality
	if speciality == "" {
		speciality = defaultSpeciality
	}
	c := r.Session(DiseaseModule)
	defer c.Close()
	j := diseaseJob{ctx: ctx, c: c, g: r.generator(DiseaseModule, diseaseFallbackModel), disease: in.Disease, speciality: speciality}

	lg := r.logger()
	lg.Info().Str("module", DiseaseModule).Str("disease", in.Disease).Msg("generating disease information")

	var out DiseaseInfo
	steps := []func() error{
		func() error { return section(j, "Identity", &out.Identity) },
		func() error { return section(j, "Background", &out.Background) },
		func() error { return section(j, "Epidemiology", &out.Epidemiology) },
		func() error { return section(j, "Clinical Presentation", &out.ClinicalPresentation) },
		func() error { return section(j, "Diagnosis", &out.Diagnosis) },
		func() error { return section(j, "Management", &out.Management) },
		func() error { return section(j, "Research", &out.Research) },
		func() error { return section(j, "Special Populations", &out.SpecialPopulations) },
		func() error { return section(j, "Living With", &out.LivingWith) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return DiseaseInfo{}, fmt.Errorf("disease info %s: %w", in.Disease, err)
		}
	}
	return out, nil
}
