package generators

import (
	_ "embed"
	"encoding/json"
	"sort"
	"sync"
)

// samples.json holds one valid canned answer per response schema name. The
// offline OpenAI stub serves them for local smoke runs.
//
//go:embed samples.json
var samplesJSON []byte

var (
	samplesOnce sync.Once
	samples     map[string]json.RawMessage
	samplesErr  error
)

func loadSamples() (map[string]json.RawMessage, error) {
	samplesOnce.Do(func() {
		samplesErr = json.Unmarshal(samplesJSON, &samples)
	})
	return samples, samplesErr
}

// Sample returns the canned answer for a response schema name.
func Sample(schemaName string) (json.RawMessage, bool) {
	m, err := loadSamples()
	if err != nil {
		return nil, false
	}
	v, ok := m[schemaName]
	return v, ok
}

// SampleNames lists the schema names that have canned answers.
func SampleNames() []string {
	m, _ := loadSamples()
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
