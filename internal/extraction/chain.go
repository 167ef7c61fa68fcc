package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Chain tries providers in order, moving on only when a provider fails at the
// transport level. A malformed reply ends the chain.
type Chain struct {
	providers []Extractor
}

// NewChain builds a Chain from the given providers, skipping nils
func NewChain(providers ...Extractor) *Chain {
	c := &Chain{}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	return c
}

// Name joins the member names
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, ">")
}

// Available reports whether any member is available
func (c *Chain) Available() bool {
	for _, p := range c.providers {
		if p.Available() {
			return true
		}
	}
	return false
}

// Extract runs the members in order
func (c *Chain) Extract(ctx context.Context, ocrText string) (*Result, error) {
	return c.run(ctx, func(p Extractor) (*Result, bool, error) {
		result, err := p.Extract(ctx, ocrText)
		return result, true, err
	})
}

// ExtractImage runs the members that can read images, in order
func (c *Chain) ExtractImage(ctx context.Context, imageData []byte, contentType string) (*Result, error) {
	return c.run(ctx, func(p Extractor) (*Result, bool, error) {
		ip, ok := p.(ImageExtractor)
		if !ok {
			return nil, false, nil
		}
		result, err := ip.ExtractImage(ctx, imageData, contentType)
		return result, true, err
	})
}

// run calls attempt on each available member. attempt reports false when
// a member cannot serve the call.
func (c *Chain) run(ctx context.Context, attempt func(Extractor) (*Result, bool, error)) (*Result, error) {
	var lastErr error
	for _, p := range c.providers {
		if !p.Available() {
			continue
		}
		result, tried, err := attempt(p)
		if !tried {
			continue
		}
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrProvider) || ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("Extraction provider failed, trying next", "provider", p.Name(), "error", err)
		lastErr = err
	}
	if lastErr == nil {
		return nil, ErrNotConfigured
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

// Close closes every member and returns the first error
func (c *Chain) Close() error {
	var firstErr error
	for _, p := range c.providers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
