package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/cognicore/conceptgen/internal/llm"
	"github.com/cognicore/conceptgen/pkg/conceptgen"
	"github.com/cognicore/conceptgen/pkg/conceptgen/assemble"
	"github.com/cognicore/conceptgen/pkg/conceptgen/config"
	"github.com/cognicore/conceptgen/pkg/conceptgen/embed"
	"github.com/cognicore/conceptgen/pkg/conceptgen/embed/memcache"
	"github.com/cognicore/conceptgen/pkg/conceptgen/embed/sqlitecache"
	"github.com/cognicore/conceptgen/pkg/conceptgen/query"
)

func main() {
	defaults := config.Default()

	var (
		classesPath = flag.String("classes", "", "Class names file, one per line (required)")
		methodName  = flag.String("method", "", "Generation method (required unless set in the config file)")
		outputDir   = flag.String("output-dir", "", "Output directory (required unless set in the config file)")
		configPath  = flag.String("config", "", "YAML config file (optional)")

		dataset    = flag.String("dataset", defaults.Dataset, "Dataset name used in output file names")
		provider   = flag.String("provider", string(defaults.LLM.Provider), "Model provider: ollama or openai")
		endpoint   = flag.String("endpoint", defaults.OllamaEndpoint, "Ollama endpoint")
		baseURL    = flag.String("openai-base-url", defaults.OpenAIBaseURL, "OpenAI-compatible base URL")
		modelName  = flag.String("model", defaults.ModelName, "Model name")
		embedModel = flag.String("embed-model", defaults.EmbedModel, "Embedding model name")
		cachePath  = flag.String("cache", "", "Embedding cache database (optional)")

		temperature = flag.Float64("temperature", defaults.Temperature, "Sampling temperature")
		maxTokens   = flag.Int("max-tokens", defaults.MaxTokens, "Response token limit")

		lengthThreshold = flag.Int("length-threshold", defaults.LengthThreshold, "Concept length cutoff in characters")
		classSim        = flag.Float64("class-similarity-threshold", defaults.ClassSimilarityThreshold, "Drop concepts this similar to a class name")
		conceptSim      = flag.Float64("concept-similarity-threshold", defaults.ConceptSimilarityThreshold, "Drop concepts this similar to an earlier one")

		targetConcepts = flag.Int("target-concepts", defaults.TargetConceptCount, "Pooled selection size for greedyDiversity")
		perClass       = flag.Int("concepts-per-class", defaults.ConceptsPerClass, "Ranked concepts kept per class")

		concurrency = flag.Int("concurrency", defaults.Concurrency, "Parallel query limit")
		fallback    = flag.Bool("embedding-fallback", false, "Continue without similarity filtering when embeddings fail")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *classesPath == "" {
		log.Fatal("--classes required")
	}

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg = loaded
	}

	// Explicitly set flags override the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "method":
			cfg.Method = config.Method(*methodName)
		case "output-dir":
			cfg.OutputDir = *outputDir
		case "dataset":
			cfg.Dataset = *dataset
		case "provider":
			cfg.LLM.Provider = config.Provider(*provider)
		case "endpoint":
			cfg.OllamaEndpoint = *endpoint
		case "openai-base-url":
			cfg.OpenAIBaseURL = *baseURL
		case "model":
			cfg.ModelName = *modelName
		case "embed-model":
			cfg.EmbedModel = *embedModel
		case "temperature":
			cfg.Temperature = *temperature
		case "max-tokens":
			cfg.MaxTokens = *maxTokens
		case "length-threshold":
			cfg.LengthThreshold = *lengthThreshold
		case "class-similarity-threshold":
			cfg.ClassSimilarityThreshold = *classSim
		case "concept-similarity-threshold":
			cfg.ConceptSimilarityThreshold = *conceptSim
		case "target-concepts":
			cfg.TargetConceptCount = *targetConcepts
		case "concepts-per-class":
			cfg.ConceptsPerClass = *perClass
		case "concurrency":
			cfg.Concurrency = *concurrency
		case "embedding-fallback":
			cfg.EmbeddingFallback = *fallback
		}
	})

	if cfg.Method == "" {
		log.Fatal("--method required")
	}
	if cfg.OutputDir == "" {
		log.Fatal("--output-dir required")
	}

	classes, err := config.LoadClassNames(*classesPath)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Loaded %d class names from %s\n", len(classes), *classesPath)

	ctx := context.Background()

	gen, cleanup, err := buildGenerator(ctx, cfg, *cachePath, *verbose)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	fmt.Printf("Generating concepts with method %s using %s\n", cfg.Method, cfg.ModelName)

	res, err := gen.Generate(ctx, classes)
	if err != nil {
		log.Fatal(err)
	}

	paths, err := writeOutputs(cfg, classes, res)
	if err != nil {
		log.Fatal(err)
	}
	for _, p := range paths {
		fmt.Println("Saved:", p)
	}
	fmt.Printf("Done in %s: %d files under %s\n", res.Details.GenerationTime, len(paths), cfg.OutputDir)
}

// buildGenerator wires the provider client, the embedding caches, and the
// generator itself. The cleanup closes the on-disk cache when one is open.
func buildGenerator(ctx context.Context, cfg config.Config, cachePath string, verbose bool) (*conceptgen.Generator, func(), error) {
	var logger *log.Logger
	if verbose {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	var querier query.Querier
	var oracle embed.Oracle
	switch cfg.LLM.Provider {
	case config.ProviderOllama:
		client := &llm.Ollama{
			Endpoint:    cfg.OllamaEndpoint,
			Model:       cfg.ModelName,
			EmbedModel:  cfg.EmbedModel,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}
		querier, oracle = client, client
	case config.ProviderOpenAI:
		client := llm.NewOpenAI(llm.OpenAIOptions{
			BaseURL:     cfg.OpenAIBaseURL,
			APIKey:      os.Getenv(cfg.LLM.APIKeyEnv),
			Model:       cfg.ModelName,
			EmbedModel:  cfg.EmbedModel,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		querier, oracle = client, client
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.LLM.Provider)
	}

	cleanup := func() {}
	if cachePath != "" {
		cache, err := sqlitecache.Open(ctx, cachePath, cfg.EmbedModel, oracle)
		if err != nil {
			return nil, nil, fmt.Errorf("open embedding cache: %w", err)
		}
		cleanup = func() { cache.Close() }
		oracle = cache
	}
	oracle = memcache.New(oracle)

	gen, err := conceptgen.New(conceptgen.Options{
		Config:  cfg,
		Querier: querier,
		Oracle:  oracle,
		Logger:  logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return gen, cleanup, nil
}

// writeOutputs assembles the method's file set plus the metadata record
// and writes everything under the output directory. It returns the written
// paths in order.
func writeOutputs(cfg config.Config, classes []string, res *conceptgen.Result) ([]string, error) {
	var files []assemble.File
	var err error
	if cfg.Method == config.RelaxedRerank {
		main, ok := res.Generation.Variant("main")
		if !ok {
			return nil, fmt.Errorf("generation has no main variant")
		}
		files, err = assemble.RelaxedFiles(cfg.Dataset, res.Pools, main.Classes)
	} else {
		files, err = assemble.Files(cfg.Method, cfg.Dataset, res.Generation)
	}
	if err != nil {
		return nil, err
	}

	meta, err := assemble.MetadataFile(cfg, classes, res.Details)
	if err != nil {
		return nil, err
	}
	files = append(files, meta)

	if err := assemble.WriteAll(cfg.OutputDir, files); err != nil {
		return nil, err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = filepath.Join(cfg.OutputDir, f.Path)
	}
	return paths, nil
}
