// Package conceptgen turns free-text language-model responses into clean,
// bounded, per-class concept sets for concept-bottleneck classifiers. The
// Generator facade wires the extraction, filtering, and selection stages
// behind a single Generate call.
package conceptgen

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/conceptgen/pkg/conceptgen/assemble"
	"github.com/cognicore/conceptgen/pkg/conceptgen/config"
	"github.com/cognicore/conceptgen/pkg/conceptgen/embed"
	"github.com/cognicore/conceptgen/pkg/conceptgen/filter"
	"github.com/cognicore/conceptgen/pkg/conceptgen/internalerr"
	"github.com/cognicore/conceptgen/pkg/conceptgen/normalize"
	"github.com/cognicore/conceptgen/pkg/conceptgen/query"
	"github.com/cognicore/conceptgen/pkg/conceptgen/selection"
)

// rawPoolCap stops multi-sample candidate collection once a class's pool
// reaches this size.
const rawPoolCap = 100

// promptVariant pairs a variant name with its template. {class} is
// substituted with the class name.
type promptVariant struct {
	name     string
	template string
}

// methodSpec describes how one method queries the model.
type methodSpec struct {
	label    string
	samples  int
	variants []promptVariant
}

var methods = map[config.Method]methodSpec{
	config.ThresholdFiltered: {
		label:   "Label-free CBM",
		samples: 1,
		variants: []promptVariant{
			{name: "around", template: "List the things most commonly seen around a {class}:"},
			{name: "important", template: "List the most important features for recognizing something as a {class}:"},
			{name: "superclass", template: "Give superclasses for the word {class}:"},
		},
	},
	config.GreedyDiversity: {
		label:   "Concise & Descriptive Attributes",
		samples: 1,
		variants: []promptVariant{
			{name: "visual", template: "What are useful visual features to distinguish {class} in a photo?"},
			{name: "attributes", template: "List visual attributes (color, texture, shape) that describe {class}:"},
			{name: "functional", template: "List functional attributes (purpose, behavior, interaction) of {class}:"},
			{name: "contextual", template: "List contextual attributes (location, time, association) related to {class}:"},
		},
	},
	config.DiscriminabilityRanked: {
		label:   "Language in a Bottle (LaBo)",
		samples: 10,
		variants: []promptVariant{
			{name: "main", template: "Describe what the {class} looks like:"},
		},
	},
	config.RelaxedRerank: {
		label:   "Language in a Bottle (LaBo, relaxed)",
		samples: 10,
		variants: []promptVariant{
			{name: "main", template: "describe what the {class} looks like:"},
			{name: "appearance", template: "describe the appearance of the {class}:"},
			{name: "color", template: "describe the color of the {class}:"},
			{name: "pattern", template: "describe the pattern of the {class}:"},
			{name: "shape", template: "describe the shape of the {class}:"},
		},
	},
}

// relaxedInstruction is appended to every relaxed-method prompt to steer
// the model toward bare descriptive phrases.
const relaxedInstruction = "\nProvide descriptive concepts about this object.\n" +
	"Focus on visual characteristics, physical properties, and observable features.\n" +
	"only give me words or phrases that describe the object, not actions or behaviors.\n" +
	"don't give sentences, just concepts.\n"

// Generator runs the concept generation pipeline for one configuration.
type Generator struct {
	cfg      config.Config
	querier  query.Querier
	oracle   embed.Oracle
	extract  *normalize.Extractor
	chain    *filter.Chain
	selector *selection.Selector
	logger   *log.Logger
}

// Options wires a Generator's collaborators.
type Options struct {
	Config  config.Config
	Querier query.Querier
	// Oracle may be nil for the relaxedRerank method, which never embeds.
	Oracle embed.Oracle
	// Logger receives skipped-query notices. Nil is silent.
	Logger *log.Logger
}

// New validates the configuration and builds a Generator.
func New(opts Options) (*Generator, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Querier == nil {
		return nil, fmt.Errorf("%w: querier is required", internalerr.ErrInvalidConfig)
	}
	if opts.Oracle == nil && cfg.Method != config.RelaxedRerank {
		return nil, fmt.Errorf("%w: oracle is required for method %s", internalerr.ErrInvalidConfig, cfg.Method)
	}

	return &Generator{
		cfg:     cfg,
		querier: opts.Querier,
		oracle:  opts.Oracle,
		extract: normalize.New(cfg.FillerPhrases),
		chain: filter.New(opts.Oracle, filter.Options{
			LengthThreshold:     cfg.LengthThreshold,
			ClassSimThreshold:   cfg.ClassSimilarityThreshold,
			ConceptSimThreshold: cfg.ConceptSimilarityThreshold,
			Blacklist:           cfg.GenericBlacklist,
			EmbeddingFallback:   cfg.EmbeddingFallback,
		}, opts.Logger),
		selector: selection.New(opts.Oracle, cfg.LengthThreshold, cfg.EmbeddingFallback, opts.Logger),
		logger:   opts.Logger,
	}, nil
}

// Result bundles the terminal artifact with its run details. Pools is
// populated only by the relaxedRerank method, which keeps the full
// per-class pools alongside the selection.
type Result struct {
	Generation assemble.Generation
	Pools      []assemble.ClassConcepts
	Details    assemble.Details
}

// Generate runs the configured method over classes. Individual query
// failures degrade the affected class's pool; embedding failures abort
// unless the fallback is configured.
func (g *Generator) Generate(ctx context.Context, classes []string) (*Result, error) {
	if len(classes) == 0 {
		return nil, internalerr.ErrNoClasses
	}

	start := time.Now()
	var res *Result
	var err error
	switch g.cfg.Method {
	case config.ThresholdFiltered:
		res, err = g.thresholdFiltered(ctx, classes)
	case config.GreedyDiversity:
		res, err = g.greedyDiversity(ctx, classes)
	case config.DiscriminabilityRanked:
		res, err = g.discriminabilityRanked(ctx, classes)
	case config.RelaxedRerank:
		res, err = g.relaxedRerank(ctx, classes)
	default:
		return nil, fmt.Errorf("%w: %q", internalerr.ErrUnknownMethod, g.cfg.Method)
	}
	if err != nil {
		return nil, err
	}

	spec := methods[g.cfg.Method]
	res.Details.Method = spec.label
	res.Details.PromptsUsed = variantNames(spec.variants)
	res.Details.ClassesProcessed = classes
	res.Details.GenerationTime = time.Since(start).String()
	res.Details.TotalClasses = len(classes)
	return res, nil
}

// thresholdFiltered queries every prompt variant once per class, runs the
// full filter chain, and truncates each class to the per-class cap.
func (g *Generator) thresholdFiltered(ctx context.Context, classes []string) (*Result, error) {
	spec := methods[config.ThresholdFiltered]

	gen := assemble.Generation{}
	for _, v := range spec.variants {
		perClass := make([][]string, len(classes))
		err := g.eachClass(ctx, classes, func(ctx context.Context, i int, class string) error {
			raw := g.rawCandidates(ctx, v.template, class, spec.samples, false, 0)
			filtered, err := g.chain.Apply(ctx, raw, filter.Target{Class: class, Classes: classes})
			if err != nil {
				return err
			}
			if len(filtered) > g.cfg.MaxPerClass {
				filtered = filtered[:g.cfg.MaxPerClass]
			}
			perClass[i] = filtered
			return nil
		})
		if err != nil {
			return nil, err
		}
		gen.Variants = append(gen.Variants, assemble.VariantConcepts{
			Variant: v.name,
			Classes: zipClasses(classes, perClass),
		})
	}

	return &Result{Generation: gen}, nil
}

// greedyDiversity pools each variant's candidates across all classes,
// selects a diverse subset, and hands equal contiguous shares back to the
// classes. The remainder past the last full share is dropped.
func (g *Generator) greedyDiversity(ctx context.Context, classes []string) (*Result, error) {
	spec := methods[config.GreedyDiversity]

	gen := assemble.Generation{}
	for _, v := range spec.variants {
		perClass := make([][]string, len(classes))
		err := g.eachClass(ctx, classes, func(ctx context.Context, i int, class string) error {
			perClass[i] = g.rawCandidates(ctx, v.template, class, spec.samples, false, 0)
			return nil
		})
		if err != nil {
			return nil, err
		}

		var pooled []string
		for _, cands := range perClass {
			pooled = append(pooled, cands...)
		}
		selected, err := g.selector.Diversify(ctx, pooled, g.cfg.TargetConceptCount)
		if err != nil {
			return nil, err
		}
		gen.Variants = append(gen.Variants, assemble.VariantConcepts{
			Variant: v.name,
			Classes: redistribute(classes, selected),
		})
	}

	res := &Result{Generation: gen}
	res.Details.TargetConcepts = g.cfg.TargetConceptCount
	return res, nil
}

// discriminabilityRanked samples the main prompt repeatedly per class and
// keeps the concepts that best separate the class from the others.
func (g *Generator) discriminabilityRanked(ctx context.Context, classes []string) (*Result, error) {
	spec := methods[config.DiscriminabilityRanked]
	main := spec.variants[0]

	perClass := make([][]string, len(classes))
	err := g.eachClass(ctx, classes, func(ctx context.Context, i int, class string) error {
		raw := g.rawCandidates(ctx, main.template, class, spec.samples, false, rawPoolCap)
		selected, err := g.selector.RankDiscriminability(ctx, raw, class, classes, g.cfg.ConceptsPerClass)
		if err != nil {
			return err
		}
		perClass[i] = selected
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Generation: assemble.Generation{Variants: []assemble.VariantConcepts{
		{Variant: main.name, Classes: zipClasses(classes, perClass)},
	}}}
	res.Details.ConceptsPerClass = g.cfg.ConceptsPerClass
	return res, nil
}

// relaxedRerank samples all five prompts per class with the instruction
// suffix, keeps a large lightly-filtered pool, and reranks it by the
// token-band score. No embeddings are involved.
func (g *Generator) relaxedRerank(ctx context.Context, classes []string) (*Result, error) {
	spec := methods[config.RelaxedRerank]

	pools := make([][]string, len(classes))
	err := g.eachClass(ctx, classes, func(ctx context.Context, i int, class string) error {
		var all []string
		for _, v := range spec.variants {
			all = append(all, g.rawCandidates(ctx, v.template, class, spec.samples, true, 0)...)
		}
		pools[i] = g.chain.ApplyRelaxed(all, class)
		return nil
	})
	if err != nil {
		return nil, err
	}

	selected := make([][]string, len(classes))
	for i := range classes {
		selected[i] = selection.RerankRelaxed(pools[i], g.cfg.RelaxedPerClass)
	}

	res := &Result{
		Generation: assemble.Generation{Variants: []assemble.VariantConcepts{
			{Variant: "main", Classes: zipClasses(classes, selected)},
		}},
		Pools: zipClasses(classes, pools),
	}
	res.Details.ConceptsPerClass = g.cfg.RelaxedPerClass
	return res, nil
}

// rawCandidates renders the prompt for class, samples it, and extracts
// candidates from every successful response. Failed queries are logged and
// contribute nothing. A positive limit stops collection once the pool
// reaches it.
func (g *Generator) rawCandidates(ctx context.Context, template, class string, samples int, relaxed bool, limit int) []string {
	prompt := strings.ReplaceAll(template, "{class}", class)
	if relaxed {
		prompt += relaxedInstruction
	}

	var out []string
	for _, r := range query.Collect(ctx, g.querier, prompt, samples, g.cfg.Concurrency) {
		if r.Err != nil {
			g.logf("query failed for class %q: %v", class, r.Err)
			continue
		}
		if relaxed {
			out = append(out, g.extract.ExtractRelaxed(r.Text)...)
		} else {
			out = append(out, g.extract.Extract(r.Text)...)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// eachClass runs fn for every class in parallel, bounded by the configured
// concurrency. Class index order is preserved by writing results into
// index-addressed slots.
func (g *Generator) eachClass(ctx context.Context, classes []string, fn func(ctx context.Context, i int, class string) error) error {
	tg, ctx := errgroup.WithContext(ctx)
	tg.SetLimit(g.cfg.Concurrency)
	for i, class := range classes {
		tg.Go(func() error {
			return fn(ctx, i, class)
		})
	}
	return tg.Wait()
}

// redistribute slices a pooled selection back across classes in equal
// contiguous shares of max(1, len(selected)/len(classes)). Whatever does
// not fill a share is dropped.
func redistribute(classes []string, selected []string) []assemble.ClassConcepts {
	share := len(selected) / len(classes)
	if share < 1 {
		share = 1
	}
	out := make([]assemble.ClassConcepts, 0, len(classes))
	for i, class := range classes {
		start := i * share
		end := start + share
		if start > len(selected) {
			start = len(selected)
		}
		if end > len(selected) {
			end = len(selected)
		}
		out = append(out, assemble.ClassConcepts{Class: class, Concepts: selected[start:end]})
	}
	return out
}

func zipClasses(classes []string, concepts [][]string) []assemble.ClassConcepts {
	out := make([]assemble.ClassConcepts, len(classes))
	for i, class := range classes {
		out[i] = assemble.ClassConcepts{Class: class, Concepts: concepts[i]}
	}
	return out
}

func variantNames(variants []promptVariant) []string {
	out := make([]string, len(variants))
	for i, v := range variants {
		out[i] = v.name
	}
	return out
}

func (g *Generator) logf(format string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Printf(format, args...)
	}
}
