package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"tasknlp/internal/analyze"
	"tasknlp/internal/classify"
	"tasknlp/internal/config"
	"tasknlp/internal/inference"
	"tasknlp/internal/models"
	"tasknlp/internal/ner"
	"tasknlp/internal/tokenize"
)

// services holds the models loaded at startup. They are shared read-only by
// every request and closed together on shutdown.
type services struct {
	Orchestrator *analyze.Orchestrator
	closers      []io.Closer
}

func (s *services) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func newResolver(cfg *config.Config) (*models.Resolver, error) {
	registry, err := models.LoadEmbeddedRegistry()
	if err != nil {
		return nil, err
	}
	var dl *models.Downloader
	if cfg.Models.AllowDownload {
		dl = models.NewDownloader()
	}
	local := models.LocalProvider{Dir: cfg.Models.LocalDir}
	hub := models.HubProvider{Registry: registry, Root: cfg.Models.Root, Downloader: dl}
	return models.NewResolver(
		local,
		hub,
		models.BaselineProvider{Model: cfg.Models.Baseline, Providers: []models.Provider{local, hub}},
	), nil
}

// loadServices resolves and loads the tokenizer and both models. A model that
// cannot be loaded leaves its operations unavailable instead of failing
// startup; only a context error aborts.
func loadServices(ctx context.Context, cfg *config.Config) (*services, error) {
	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}
	svc := &services{}
	sessionCfg := inference.Config{Backend: cfg.Inference.Backend, SharedLibrary: cfg.Inference.SharedLibrary}

	var (
		classifier classify.TypeClassifier
		extractor  analyze.EntityExtractor
		onBaseline []string
	)

	tok, err := loadTokenizer(ctx, resolver, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Errorf("tokenizer unavailable, all model operations disabled: %v", err)
		svc.Orchestrator = analyze.New(nil, nil)
		return svc, nil
	}

	if res, err := resolver.Resolve(ctx, cfg.Models.NER, models.KindTokenClassification); err != nil {
		log.Errorf("entity tagger unavailable: %v", err)
	} else if tagger, err := ner.LoadONNXTagger(ner.ONNXTaggerConfig{ModelDir: res.Dir, Session: sessionCfg}, tok); err != nil {
		log.Errorf("entity tagger unavailable: %v", err)
	} else {
		svc.closers = append(svc.closers, tagger)
		extractor = ner.NewExtractor(nil, tagger)
		if res.Provider == models.BaselineName {
			onBaseline = append(onBaseline, "entity tagger")
		}
	}

	if res, err := resolver.Resolve(ctx, cfg.Models.Type, models.KindSequenceClassification); err != nil {
		log.Errorf("type classifier unavailable: %v", err)
	} else if c, err := classify.LoadONNXClassifier(classify.ONNXClassifierConfig{ModelDir: res.Dir, Session: sessionCfg}, tok); err != nil {
		log.Errorf("type classifier unavailable: %v", err)
	} else {
		svc.closers = append(svc.closers, c)
		classifier = c
		if res.Provider == models.BaselineName {
			onBaseline = append(onBaseline, "type classifier")
		}
	}
	if msg := baselineWarning(onBaseline, cfg.Models.Baseline); msg != "" {
		log.Warn(msg)
	}

	if err := ctx.Err(); err != nil {
		_ = svc.Close()
		return nil, err
	}
	svc.Orchestrator = analyze.New(classifier, extractor)
	return svc, nil
}

// baselineWarning describes the operations served by the untuned baseline.
// Its single model.onnx has one head, so at most one of the two operations
// can get outputs of the shape it expects.
func baselineWarning(roles []string, baseline string) string {
	switch len(roles) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s is served by untuned baseline model %s: outputs are LABEL_n guesses", roles[0], baseline)
	default:
		return fmt.Sprintf("%s both fell back to baseline model %s, which has a single untuned head: "+
			"at most one of them matches its output shape, expect errors or meaningless results until the tuned models are installed",
			strings.Join(roles, " and "), baseline)
	}
}

func loadTokenizer(ctx context.Context, resolver *models.Resolver, cfg *config.Config) (tokenize.Tokenizer, error) {
	res, err := resolver.Resolve(ctx, cfg.Models.Tokenizer, models.KindTokenizer)
	if err != nil {
		return nil, err
	}
	tok, err := tokenize.Load(filepath.Join(res.Dir, "tokenizer.json"), cfg.Inference.MaxSeqLen)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer %s: %w", res.Name, err)
	}
	return tok, nil
}
