// Package config holds the run configuration for concept generation: the
// method choice, model endpoints, filter thresholds, and selection sizes.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/conceptgen/pkg/conceptgen/internalerr"
	"github.com/cognicore/conceptgen/pkg/conceptgen/normalize"
)

// Method names a concept generation strategy.
type Method string

const (
	// ThresholdFiltered filters each class's candidates through the full
	// rule chain and truncates to a per-class cap.
	ThresholdFiltered Method = "thresholdFiltered"
	// GreedyDiversity pools candidates across classes, picks a diverse
	// subset, and redistributes equal shares back to the classes.
	GreedyDiversity Method = "greedyDiversity"
	// DiscriminabilityRanked ranks each class's candidates by how well
	// they separate the class from the others.
	DiscriminabilityRanked Method = "discriminabilityRanked"
	// RelaxedRerank keeps large lightly-filtered pools and reranks them
	// by a token-band score, without embeddings.
	RelaxedRerank Method = "relaxedRerank"
)

// Valid reports whether m names a known method.
func (m Method) Valid() bool {
	switch m {
	case ThresholdFiltered, GreedyDiversity, DiscriminabilityRanked, RelaxedRerank:
		return true
	}
	return false
}

// Methods lists the known method names.
func Methods() []Method {
	return []Method{ThresholdFiltered, GreedyDiversity, DiscriminabilityRanked, RelaxedRerank}
}

// Provider names a language-model transport.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Valid reports whether p names a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderOllama, ProviderOpenAI:
		return true
	}
	return false
}

// LLM groups provider-level settings.
type LLM struct {
	Provider  Provider `yaml:"provider"`
	APIKeyEnv string   `yaml:"api_key_env"`
}

// Config is the full set of tunables for one generation run. Validate is
// called once at startup and the value is treated as read-only afterwards.
type Config struct {
	Method    Method `yaml:"method"`
	Dataset   string `yaml:"dataset"`
	OutputDir string `yaml:"output_dir"`

	ModelName      string `yaml:"model_name"`
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	EmbedModel     string `yaml:"embed_model"`
	LLM            LLM    `yaml:"llm"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	LengthThreshold            int     `yaml:"length_threshold"`
	ClassSimilarityThreshold   float64 `yaml:"class_similarity_threshold"`
	ConceptSimilarityThreshold float64 `yaml:"concept_similarity_threshold"`

	TargetConceptCount int `yaml:"target_concept_count"`
	ConceptsPerClass   int `yaml:"concepts_per_class"`
	MaxPerClass        int `yaml:"max_per_class"`
	RelaxedPerClass    int `yaml:"relaxed_per_class"`

	Concurrency       int  `yaml:"concurrency"`
	EmbeddingFallback bool `yaml:"embedding_fallback"`

	FillerPhrases    []string `yaml:"filler_phrases"`
	GenericBlacklist []string `yaml:"generic_blacklist"`
}

// Default returns the baseline configuration. Method and OutputDir have no
// defaults and must be set before Validate passes.
func Default() Config {
	return Config{
		Dataset:                    "cifar10",
		ModelName:                  "llama3",
		OllamaEndpoint:             "http://localhost:11434",
		OpenAIBaseURL:              "http://localhost:8000/v1",
		EmbedModel:                 "all-minilm",
		LLM:                        LLM{Provider: ProviderOllama, APIKeyEnv: "OPENAI_API_KEY"},
		Temperature:                0.7,
		MaxTokens:                  500,
		LengthThreshold:            30,
		ClassSimilarityThreshold:   0.85,
		ConceptSimilarityThreshold: 0.9,
		TargetConceptCount:         32,
		ConceptsPerClass:           50,
		MaxPerClass:                20,
		RelaxedPerClass:            25,
		Concurrency:                10,
		FillerPhrases:              append([]string(nil), normalize.DefaultFillers...),
		GenericBlacklist:           append([]string(nil), normalize.DefaultBlacklist...),
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", internalerr.ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// Validate checks the configuration before any query is issued.
func (c *Config) Validate() error {
	if !c.Method.Valid() {
		return fmt.Errorf("%w: %q", internalerr.ErrUnknownMethod, c.Method)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("%w: output_dir is required", internalerr.ErrInvalidConfig)
	}
	if c.Dataset == "" {
		return fmt.Errorf("%w: dataset is required", internalerr.ErrInvalidConfig)
	}
	if !c.LLM.Provider.Valid() {
		return fmt.Errorf("%w: llm.provider %q", internalerr.ErrInvalidConfig, c.LLM.Provider)
	}
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name is required", internalerr.ErrInvalidConfig)
	}
	if c.Temperature < 0 {
		return fmt.Errorf("%w: temperature %v is negative", internalerr.ErrInvalidConfig, c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens %d is not positive", internalerr.ErrInvalidConfig, c.MaxTokens)
	}
	if c.LengthThreshold <= 0 {
		return fmt.Errorf("%w: length_threshold %d is not positive", internalerr.ErrInvalidConfig, c.LengthThreshold)
	}
	if c.ClassSimilarityThreshold < 0 || c.ClassSimilarityThreshold > 1 {
		return fmt.Errorf("%w: class_similarity_threshold %v is outside [0, 1]", internalerr.ErrInvalidConfig, c.ClassSimilarityThreshold)
	}
	if c.ConceptSimilarityThreshold < 0 || c.ConceptSimilarityThreshold > 1 {
		return fmt.Errorf("%w: concept_similarity_threshold %v is outside [0, 1]", internalerr.ErrInvalidConfig, c.ConceptSimilarityThreshold)
	}
	if c.TargetConceptCount <= 0 {
		return fmt.Errorf("%w: target_concept_count %d is not positive", internalerr.ErrInvalidConfig, c.TargetConceptCount)
	}
	if c.ConceptsPerClass <= 0 {
		return fmt.Errorf("%w: concepts_per_class %d is not positive", internalerr.ErrInvalidConfig, c.ConceptsPerClass)
	}
	if c.MaxPerClass <= 0 {
		return fmt.Errorf("%w: max_per_class %d is not positive", internalerr.ErrInvalidConfig, c.MaxPerClass)
	}
	if c.RelaxedPerClass <= 0 {
		return fmt.Errorf("%w: relaxed_per_class %d is not positive", internalerr.ErrInvalidConfig, c.RelaxedPerClass)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: concurrency %d is not positive", internalerr.ErrInvalidConfig, c.Concurrency)
	}
	return nil
}

// LoadClassNames reads one class name per line, skipping blank lines and
// `#` comments.
func LoadClassNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var classes []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		classes = append(classes, line)
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: %s", internalerr.ErrNoClasses, path)
	}
	return classes, nil
}

// LoadWordlist reads a plain word or phrase list in the same line format as
// the class file. An empty file yields an empty list.
func LoadWordlist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var words []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, nil
}
