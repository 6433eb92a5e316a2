package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cognicore/conceptgen/pkg/conceptgen/internalerr"
)

func validConfig() Config {
	cfg := Default()
	cfg.Method = ThresholdFiltered
	cfg.OutputDir = "out"
	return cfg
}

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	if cfg.ModelName != "llama3" {
		t.Errorf("Expected model llama3, got %q", cfg.ModelName)
	}
	if cfg.OllamaEndpoint != "http://localhost:11434" {
		t.Errorf("Unexpected ollama endpoint %q", cfg.OllamaEndpoint)
	}
	if cfg.LLM.Provider != ProviderOllama {
		t.Errorf("Expected ollama provider, got %q", cfg.LLM.Provider)
	}
	if cfg.LengthThreshold != 30 || cfg.MaxPerClass != 20 || cfg.TargetConceptCount != 32 {
		t.Errorf("Unexpected filter defaults: %+v", cfg)
	}
	if len(cfg.FillerPhrases) == 0 || len(cfg.GenericBlacklist) == 0 {
		t.Error("Expected built-in filler and blacklist defaults")
	}
}

func TestValidateRequiresMethod(t *testing.T) {
	cfg := validConfig()
	cfg.Method = ""
	if err := cfg.Validate(); !errors.Is(err, internalerr.ErrUnknownMethod) {
		t.Errorf("Expected ErrUnknownMethod, got %v", err)
	}

	cfg.Method = "clusterVote"
	if err := cfg.Validate(); !errors.Is(err, internalerr.ErrUnknownMethod) {
		t.Errorf("Expected ErrUnknownMethod for unknown name, got %v", err)
	}
}

func TestValidateFieldChecks(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing output dir", func(c *Config) { c.OutputDir = "" }},
		{"missing dataset", func(c *Config) { c.Dataset = "" }},
		{"bad provider", func(c *Config) { c.LLM.Provider = "grpc" }},
		{"missing model", func(c *Config) { c.ModelName = "" }},
		{"negative temperature", func(c *Config) { c.Temperature = -0.1 }},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }},
		{"zero length threshold", func(c *Config) { c.LengthThreshold = 0 }},
		{"class similarity above one", func(c *Config) { c.ClassSimilarityThreshold = 1.5 }},
		{"negative concept similarity", func(c *Config) { c.ConceptSimilarityThreshold = -0.2 }},
		{"zero target count", func(c *Config) { c.TargetConceptCount = 0 }},
		{"zero concepts per class", func(c *Config) { c.ConceptsPerClass = 0 }},
		{"zero max per class", func(c *Config) { c.MaxPerClass = 0 }},
		{"zero relaxed per class", func(c *Config) { c.RelaxedPerClass = 0 }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
	}
	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, internalerr.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", tc.name, err)
		}
	}
}

func TestValidatePasses(t *testing.T) {
	for _, m := range Methods() {
		cfg := validConfig()
		cfg.Method = m
		if err := cfg.Validate(); err != nil {
			t.Errorf("Expected %s config to validate, got %v", m, err)
		}
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conceptgen.yaml")
	body := `
method: discriminabilityRanked
dataset: cifar100
output_dir: runs/out
model_name: openchat-3.5
llm:
  provider: openai
  api_key_env: LOCAL_LLM_KEY
temperature: 0.2
concepts_per_class: 40
embedding_fallback: true
generic_blacklist:
  - thing
  - widget
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Method != DiscriminabilityRanked || cfg.Dataset != "cifar100" {
		t.Errorf("Expected overrides applied, got %+v", cfg)
	}
	if cfg.LLM.Provider != ProviderOpenAI || cfg.LLM.APIKeyEnv != "LOCAL_LLM_KEY" {
		t.Errorf("Expected nested llm overrides, got %+v", cfg.LLM)
	}
	if cfg.Temperature != 0.2 || cfg.ConceptsPerClass != 40 || !cfg.EmbeddingFallback {
		t.Errorf("Expected scalar overrides, got %+v", cfg)
	}
	if cfg.ModelName != "openchat-3.5" {
		t.Errorf("Expected model override, got %q", cfg.ModelName)
	}
	// Untouched keys keep their defaults.
	if cfg.MaxTokens != 500 || cfg.LengthThreshold != 30 {
		t.Errorf("Expected remaining defaults intact, got %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.GenericBlacklist, []string{"thing", "widget"}) {
		t.Errorf("Expected blacklist replaced, got %v", cfg.GenericBlacklist)
	}
	if len(cfg.FillerPhrases) == 0 {
		t.Error("Expected default filler phrases retained")
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("method: [unclosed"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadClassNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.txt")
	body := "# cifar10 subset\nairplane\n\n  automobile  \n# trailing comment\nbird\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	classes, err := LoadClassNames(path)
	if err != nil {
		t.Fatalf("LoadClassNames failed: %v", err)
	}
	want := []string{"airplane", "automobile", "bird"}
	if !reflect.DeepEqual(classes, want) {
		t.Errorf("Expected %v, got %v", want, classes)
	}
}

func TestLoadClassNamesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.txt")
	if err := os.WriteFile(path, []byte("# only comments\n\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := LoadClassNames(path); !errors.Is(err, internalerr.ErrNoClasses) {
		t.Errorf("Expected ErrNoClasses, got %v", err)
	}
}

func TestLoadClassNamesMissingFile(t *testing.T) {
	if _, err := LoadClassNames(filepath.Join(t.TempDir(), "absent.txt")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadWordlistAllowsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fillers.txt")
	if err := os.WriteFile(path, []byte("# nothing here\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	words, err := LoadWordlist(path)
	if err != nil {
		t.Fatalf("LoadWordlist failed: %v", err)
	}
	if len(words) != 0 {
		t.Errorf("Expected empty list, got %v", words)
	}
}

func TestMethodValid(t *testing.T) {
	if Method("thresholdFiltered").Valid() != true {
		t.Error("Expected thresholdFiltered to be valid")
	}
	if Method("ThresholdFiltered").Valid() {
		t.Error("Expected method names to be case-sensitive")
	}
	if strings.TrimSpace(string(ThresholdFiltered)) != "thresholdFiltered" {
		t.Errorf("Unexpected method literal %q", ThresholdFiltered)
	}
}
