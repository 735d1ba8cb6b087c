//go:build onnx

// Package onnx embeds text with a sentence-transformer model (for example
// all-MiniLM-L6-v2) through ONNX Runtime. It is compiled only with the onnx
// build tag because it needs the native runtime library.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"github.com/sirupsen/logrus"

	"github.com/MarcusD9722/Nova/logging"
	"github.com/MarcusD9722/Nova/memory"
)

var log = logging.For("onnx")

const defaultSeqLen = 128

// Config configures the ONNX embedder.
type Config struct {
	// SharedLibraryPath locates libonnxruntime. Empty uses the runtime's
	// default lookup.
	SharedLibraryPath string

	ModelPath     string
	TokenizerPath string

	// Dimensions is the model's hidden size.
	// Default: 384
	Dimensions int

	// SeqLen is the padded input length, [CLS] and [SEP] included.
	// Default: 128
	SeqLen int
}

// Embedder runs one model session. Session.Run is not safe for concurrent
// use, so calls are serialized.
type Embedder struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	tok     *wordPiece
	dims    int
	seqLen  int
}

var _ memory.Embedder = (*Embedder)(nil)

var initOnce sync.Once
var initErr error

// New loads the tokenizer and model.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, errors.New("onnx: model and tokenizer paths are required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}
	if cfg.SeqLen <= 2 {
		cfg.SeqLen = defaultSeqLen
	}

	initOnce.Do(func() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", initErr)
	}

	tok, err := loadWordPiece(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	log.WithFields(logrus.Fields{
		"model":      cfg.ModelPath,
		"dimensions": cfg.Dimensions,
		"vocab":      len(tok.vocab),
	}).Info("onnx embedder loaded")

	return &Embedder{session: session, tok: tok, dims: cfg.Dimensions, seqLen: cfg.SeqLen}, nil
}

// EmbedDocuments embeds texts one at a time.
func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// EmbedQuery embeds one text with attention-masked mean pooling.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ids, mask := e.inputs(text)
	types := make([]int64, e.seqLen)
	shape := ort.NewShape(1, int64(e.seqLen))

	var inputs []ort.Value
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, data := range [][]int64{ids, mask, types} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	e.mu.Lock()
	err := e.session.Run(inputs, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("onnx: unexpected output tensor type")
	}
	vec, err := e.pool(hidden.GetShape(), hidden.GetData(), mask)
	if err != nil {
		return nil, err
	}
	normalize(vec)
	return vec, nil
}

// Dimensions returns the vector size.
func (e *Embedder) Dimensions() int {
	return e.dims
}

// Close destroys the session.
func (e *Embedder) Close() error {
	if e.session == nil {
		return nil
	}
	return e.session.Destroy()
}

func (e *Embedder) inputs(text string) (ids, mask []int64) {
	ids = make([]int64, e.seqLen)
	mask = make([]int64, e.seqLen)

	tokens := e.tok.encode(text)
	if len(tokens) > e.seqLen-2 {
		tokens = tokens[:e.seqLen-2]
	}

	ids[0], mask[0] = tokenCLS, 1
	for i, id := range tokens {
		ids[i+1], mask[i+1] = id, 1
	}
	ids[len(tokens)+1], mask[len(tokens)+1] = tokenSEP, 1
	return ids, mask
}

// pool accepts either an already pooled [1, dims] output or a
// [1, seq, dims] hidden state, which it averages over attended positions.
func (e *Embedder) pool(shape ort.Shape, data []float32, mask []int64) ([]float32, error) {
	vec := make([]float32, e.dims)

	switch len(shape) {
	case 2:
		if len(data) < e.dims {
			return nil, fmt.Errorf("onnx: output has %d values, want %d", len(data), e.dims)
		}
		copy(vec, data[:e.dims])
		return vec, nil

	case 3:
		seq, hidden := int(shape[1]), int(shape[2])
		if shape[0] != 1 || hidden != e.dims {
			return nil, fmt.Errorf("onnx: unexpected output shape %v", shape)
		}
		var n float32
		for i := 0; i < seq && i < len(mask); i++ {
			if mask[i] == 0 {
				continue
			}
			n++
			row := data[i*hidden : (i+1)*hidden]
			for j, v := range row {
				vec[j] += v
			}
		}
		if n > 0 {
			for j := range vec {
				vec[j] /= n
			}
		}
		return vec, nil
	}
	return nil, fmt.Errorf("onnx: unexpected output shape %v", shape)
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= n
	}
}
