// Package assemble renders a finished generation into the per-method
// output files and the run metadata record.
package assemble

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/conceptgen/pkg/conceptgen/config"
	"github.com/cognicore/conceptgen/pkg/conceptgen/internalerr"
)

// logTopConcepts is how many concepts per class the human-readable log
// file shows.
const logTopConcepts = 10

// ClassConcepts is one class's ordered concept list.
type ClassConcepts struct {
	Class    string
	Concepts []string
}

// VariantConcepts holds one prompt variant's per-class results, in class
// order.
type VariantConcepts struct {
	Variant string
	Classes []ClassConcepts
}

// Generation is the pipeline's terminal artifact.
type Generation struct {
	Variants []VariantConcepts
}

// Variant returns the named variant's results and whether it exists.
func (g Generation) Variant(name string) (VariantConcepts, bool) {
	for _, v := range g.Variants {
		if v.Variant == name {
			return v, true
		}
	}
	return VariantConcepts{}, false
}

// Details describes one run for the metadata record.
type Details struct {
	Method           string   `json:"method"`
	PromptsUsed      []string `json:"prompts_used"`
	ClassesProcessed []string `json:"classes_processed"`
	GenerationTime   string   `json:"generation_time"`
	TotalClasses     int      `json:"total_classes"`
	TargetConcepts   int      `json:"target_concepts,omitempty"`
	ConceptsPerClass int      `json:"concepts_per_class,omitempty"`
}

// File is one output file, addressed relative to the run's output
// directory.
type File struct {
	Path string
	Body []byte
}

// Files renders the output set for a finished generation. The relaxed
// method carries its full pools separately; use RelaxedFiles for it.
func Files(method config.Method, dataset string, g Generation) ([]File, error) {
	switch method {
	case config.ThresholdFiltered:
		return labelFreeFiles(dataset, g)
	case config.GreedyDiversity:
		return combinedAttributeFiles(dataset, g)
	case config.DiscriminabilityRanked:
		return selectedConceptFiles(dataset, g)
	}
	return nil, fmt.Errorf("%w: %q", internalerr.ErrUnknownMethod, method)
}

// labelFreeFiles writes one JSON file per prompt variant plus a flat text
// list of the "important" variant's concepts.
func labelFreeFiles(dataset string, g Generation) ([]File, error) {
	var files []File
	for _, v := range g.Variants {
		body, err := marshalConcepts(v.Classes)
		if err != nil {
			return nil, err
		}
		files = append(files, File{
			Path: fmt.Sprintf("gpt3_%s_%s.json", dataset, v.Variant),
			Body: body,
		})
	}

	var b strings.Builder
	if important, ok := g.Variant("important"); ok {
		for _, cc := range important.Classes {
			for _, concept := range cc.Concepts {
				b.WriteString(strings.TrimSpace(concept))
				b.WriteString("\n")
			}
		}
	}
	files = append(files, File{
		Path: fmt.Sprintf("%s_filtered.txt", dataset),
		Body: []byte(b.String()),
	})
	return files, nil
}

// combinedAttributeFiles merges all prompt variants per class with an
// exact-match deduplication pass, then writes the combined JSON and a flat
// text list.
func combinedAttributeFiles(dataset string, g Generation) ([]File, error) {
	combined := CombineVariants(g)
	body, err := marshalConcepts(combined)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, cc := range combined {
		for _, concept := range cc.Concepts {
			b.WriteString(concept)
			b.WriteString("\n")
		}
	}

	return []File{
		{Path: fmt.Sprintf("%s_attributes.json", dataset), Body: body},
		{Path: fmt.Sprintf("%s_attributes.txt", dataset), Body: []byte(b.String())},
	}, nil
}

// selectedConceptFiles writes the ranked per-class selection plus a
// human-readable log of each class's top concepts.
func selectedConceptFiles(dataset string, g Generation) ([]File, error) {
	main, _ := g.Variant("main")
	body, err := marshalConcepts(main.Classes)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, cc := range main.Classes {
		fmt.Fprintf(&b, "[%s]\n", cc.Class)
		top := cc.Concepts
		if len(top) > logTopConcepts {
			top = top[:logTopConcepts]
		}
		for _, concept := range top {
			fmt.Fprintf(&b, "  - %s\n", concept)
		}
		b.WriteString("\n")
	}

	return []File{
		{Path: filepath.Join("asso_opt", dataset, "selected_concepts.json"), Body: body},
		{Path: filepath.Join("asso_opt", dataset, "log.txt"), Body: []byte(b.String())},
	}, nil
}

// RelaxedFiles renders the relaxed method's output set: the full per-class
// pools, the per-class selections, and the cross-class frequency list.
func RelaxedFiles(dataset string, pools, selected []ClassConcepts) ([]File, error) {
	poolBody, err := marshalConcepts(pools)
	if err != nil {
		return nil, err
	}
	selectedBody, err := marshalConcepts(selected)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, concept := range FrequencyFilter(pools) {
		b.WriteString(concept)
		b.WriteString("\n")
	}

	return []File{
		{Path: filepath.Join("labo", "concepts", fmt.Sprintf("class2concepts_%s.json", dataset)), Body: poolBody},
		{Path: filepath.Join("labo", "selected_concepts", fmt.Sprintf("%s.json", strings.ToUpper(dataset))), Body: selectedBody},
		{Path: filepath.Join("labo", fmt.Sprintf("%s_filtered.txt", dataset)), Body: []byte(b.String())},
	}, nil
}

// CombineVariants merges each class's concepts across all variants in
// variant order, dropping exact repeats. Class order follows the first
// variant.
func CombineVariants(g Generation) []ClassConcepts {
	if len(g.Variants) == 0 {
		return nil
	}

	out := make([]ClassConcepts, 0, len(g.Variants[0].Classes))
	for _, first := range g.Variants[0].Classes {
		seen := make(map[string]struct{})
		var merged []string
		for _, v := range g.Variants {
			for _, cc := range v.Classes {
				if cc.Class != first.Class {
					continue
				}
				for _, concept := range cc.Concepts {
					if _, ok := seen[concept]; ok {
						continue
					}
					seen[concept] = struct{}{}
					merged = append(merged, concept)
				}
			}
		}
		out = append(out, ClassConcepts{Class: first.Class, Concepts: merged})
	}
	return out
}

// FrequencyFilter flattens per-class pools into one list ordered by
// cross-class frequency descending, then length ascending. The first
// spelling encountered represents each concept.
func FrequencyFilter(pools []ClassConcepts) []string {
	counts := make(map[string]int)
	spelling := make(map[string]string)
	var order []string
	for _, cc := range pools {
		for _, concept := range cc.Concepts {
			key := strings.ToLower(concept)
			if _, ok := spelling[key]; !ok {
				spelling[key] = concept
				order = append(order, key)
			}
			counts[key]++
		}
	}

	out := make([]string, 0, len(order))
	for _, key := range order {
		if utf8.RuneCountInString(spelling[key]) >= 2 {
			out = append(out, spelling[key])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		fi := counts[strings.ToLower(out[i])]
		fj := counts[strings.ToLower(out[j])]
		if fi != fj {
			return fi > fj
		}
		return utf8.RuneCountInString(out[i]) < utf8.RuneCountInString(out[j])
	})
	return out
}

// Metadata is the reproducibility record written beside every run's
// outputs.
type Metadata struct {
	DatasetInfo    DatasetInfo    `json:"dataset_info"`
	GenerationInfo GenerationInfo `json:"generation_info"`
	Config         ConfigInfo     `json:"config"`
	Details        Details        `json:"generation_details"`
}

// DatasetInfo identifies the class set a run covered.
type DatasetInfo struct {
	DatasetName  string   `json:"dataset_name"`
	TotalClasses int      `json:"total_classes"`
	ClassNames   []string `json:"class_names"`
}

// GenerationInfo tags a run with its method, ID, and time.
type GenerationInfo struct {
	Method    string `json:"method"`
	RunID     string `json:"run_id"`
	Timestamp string `json:"generation_timestamp"`
}

// ConfigInfo is the subset of the configuration that shaped the output.
type ConfigInfo struct {
	ModelName                  string  `json:"model_name"`
	Temperature                float64 `json:"temperature"`
	MaxTokens                  int     `json:"max_tokens"`
	LengthThreshold            int     `json:"length_threshold"`
	ClassSimilarityThreshold   float64 `json:"class_similarity_threshold"`
	ConceptSimilarityThreshold float64 `json:"concept_similarity_threshold"`
}

// NewRunID returns a fresh ULID for tagging a run.
func NewRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// MetadataFile builds the metadata record for a run.
func MetadataFile(cfg config.Config, classes []string, details Details) (File, error) {
	m := Metadata{
		DatasetInfo: DatasetInfo{
			DatasetName:  cfg.Dataset,
			TotalClasses: len(classes),
			ClassNames:   classes,
		},
		GenerationInfo: GenerationInfo{
			Method:    string(cfg.Method),
			RunID:     NewRunID(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Config: ConfigInfo{
			ModelName:                  cfg.ModelName,
			Temperature:                cfg.Temperature,
			MaxTokens:                  cfg.MaxTokens,
			LengthThreshold:            cfg.LengthThreshold,
			ClassSimilarityThreshold:   cfg.ClassSimilarityThreshold,
			ConceptSimilarityThreshold: cfg.ConceptSimilarityThreshold,
		},
		Details: details,
	}
	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return File{}, err
	}
	return File{
		Path: fmt.Sprintf("%s_%s_metadata.json", cfg.Dataset, cfg.Method),
		Body: append(body, '\n'),
	}, nil
}

// WriteAll writes files under dir, creating subdirectories as needed.
func WriteAll(dir string, files []File) error {
	for _, f := range files {
		path := filepath.Join(dir, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, f.Body, 0644); err != nil {
			return err
		}
	}
	return nil
}

// marshalConcepts renders class-to-concepts as an indented JSON object.
// Keys come out sorted; ordering inside each list is preserved.
func marshalConcepts(classes []ClassConcepts) ([]byte, error) {
	m := make(map[string][]string, len(classes))
	for _, cc := range classes {
		concepts := cc.Concepts
		if concepts == nil {
			concepts = []string{}
		}
		m[cc.Class] = concepts
	}
	body, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(body, '\n'), nil
}
