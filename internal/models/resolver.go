package models

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"tasknlp/internal/logger"
)

var ErrNoProvider = errors.New("no model provider succeeded")

var log = logger.GetLogger()

// Provider locates a model directory able to serve kind.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, name string, kind Kind) (string, error)
}

// Resolution records where a model came from.
type Resolution struct {
	Name     string
	Dir      string
	Provider string
}

// Resolver tries its providers in order; the first success wins.
type Resolver struct {
	Providers []Provider
}

func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{Providers: providers}
}

func (r *Resolver) Resolve(ctx context.Context, name string, kind Kind) (Resolution, error) {
	var errs []error
	for _, p := range r.Providers {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		dir, err := p.Resolve(ctx, name, kind)
		if err != nil {
			log.Warnf("model %s: provider %s failed: %v", name, p.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		log.Infof("model %s (%s) resolved by %s at %s", name, kind, p.Name(), dir)
		return Resolution{Name: name, Dir: dir, Provider: p.Name()}, nil
	}
	return Resolution{}, fmt.Errorf("%w for %s: %w", ErrNoProvider, name, errors.Join(errs...))
}

// LocalProvider serves models from <Dir>/<name>.
type LocalProvider struct {
	Dir string
}

func (p LocalProvider) Name() string {
	return "local"
}

func (p LocalProvider) Resolve(_ context.Context, name string, kind Kind) (string, error) {
	if p.Dir == "" {
		return "", fmt.Errorf("%w: no local directory configured", ErrModelNotFound)
	}
	dir := filepath.Join(p.Dir, name)
	if !HasFiles(dir, kind) {
		return "", fmt.Errorf("%w: %s has no %s files", ErrModelNotFound, dir, kind)
	}
	return dir, nil
}

// HubProvider serves models listed in a registry, installing them under Root
// on first use. A nil Downloader makes it serve installed models only.
type HubProvider struct {
	Registry   Registry
	Root       string
	Downloader *Downloader
}

func (p HubProvider) Name() string {
	return "hub"
}

func (p HubProvider) Resolve(ctx context.Context, name string, kind Kind) (string, error) {
	spec, ok := p.Registry.Find(name)
	if !ok {
		return "", fmt.Errorf("%w: %s is not in the registry", ErrModelNotFound, name)
	}
	dir := ModelInstallPath(p.Root, spec.Name)
	if HasFiles(dir, kind) {
		return dir, nil
	}
	if p.Downloader == nil {
		return "", fmt.Errorf("%w: %s is not installed and downloads are disabled", ErrModelNotFound, name)
	}
	log.Infof("downloading model %s from %s", spec.Name, spec.URL)
	if err := p.Downloader.DownloadAndInstall(ctx, spec, p.Root, nil); err != nil {
		return "", err
	}
	if !HasFiles(dir, kind) {
		return "", fmt.Errorf("%w: installed %s has no %s files", ErrModelNotFound, name, kind)
	}
	return dir, nil
}

// BaselineName is the Resolution.Provider of models served by BaselineProvider.
const BaselineName = "baseline"

// BaselineProvider ignores the requested name and resolves the generic
// baseline model through its own providers.
type BaselineProvider struct {
	Model     string
	Providers []Provider
}

func (p BaselineProvider) Name() string {
	return BaselineName
}

func (p BaselineProvider) Resolve(ctx context.Context, _ string, kind Kind) (string, error) {
	if p.Model == "" {
		return "", fmt.Errorf("%w: no baseline configured", ErrModelNotFound)
	}
	res, err := NewResolver(p.Providers...).Resolve(ctx, p.Model, kind)
	if err != nil {
		return "", err
	}
	return res.Dir, nil
}
