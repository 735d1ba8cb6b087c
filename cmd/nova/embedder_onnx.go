//go:build onnx

package main

import (
	"fmt"

	"github.com/MarcusD9722/Nova/config"
	"github.com/MarcusD9722/Nova/core"
	"github.com/MarcusD9722/Nova/memory"
	"github.com/MarcusD9722/Nova/memory/embedder/hash"
	"github.com/MarcusD9722/Nova/memory/embedder/onnx"
)

func newEmbedder(cfg config.MemoryConfig) (memory.Embedder, func() error, error) {
	switch cfg.Embedder {
	case "", "hash":
		return hash.New(cfg.Dimensions), func() error { return nil }, nil
	case "onnx":
		e, err := onnx.New(onnx.Config{
			SharedLibraryPath: cfg.ONNX.Library,
			ModelPath:         cfg.ONNX.Model,
			TokenizerPath:     cfg.ONNX.Tokenizer,
			Dimensions:        cfg.Dimensions,
		})
		if err != nil {
			return nil, nil, err
		}
		return e, e.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown embedder %q", core.ErrConfiguration, cfg.Embedder)
}
