//go:build !onnx

package main

import (
	"fmt"

	"github.com/MarcusD9722/Nova/config"
	"github.com/MarcusD9722/Nova/core"
	"github.com/MarcusD9722/Nova/memory"
	"github.com/MarcusD9722/Nova/memory/embedder/hash"
)

func newEmbedder(cfg config.MemoryConfig) (memory.Embedder, func() error, error) {
	switch cfg.Embedder {
	case "", "hash":
		return hash.New(cfg.Dimensions), func() error { return nil }, nil
	case "onnx":
		return nil, nil, fmt.Errorf("%w: the onnx embedder needs a build with -tags onnx", core.ErrConfiguration)
	}
	return nil, nil, fmt.Errorf("%w: unknown embedder %q", core.ErrConfiguration, cfg.Embedder)
}
