//go:build onnx

package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special token ids of the uncased BERT vocabulary.
const (
	tokenUnknown = 100
	tokenCLS     = 101
	tokenSEP     = 102
)

// wordPiece is a greedy longest-match-first WordPiece tokenizer over a
// HuggingFace tokenizer.json vocabulary.
type wordPiece struct {
	vocab map[string]int64
}

func loadWordPiece(path string) (*wordPiece, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}

	var file struct {
		Model struct {
			Vocab map[string]int64 `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode tokenizer: %w", err)
	}
	if len(file.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}
	return &wordPiece{vocab: file.Model.Vocab}, nil
}

// encode lower-cases text, splits punctuation into separate words and maps
// each word to vocabulary ids.
func (w *wordPiece) encode(text string) []int64 {
	var ids []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		if id, ok := w.vocab[word]; ok {
			ids = append(ids, id)
			continue
		}
		ids = append(ids, w.pieces(word)...)
	}
	return ids
}

func (w *wordPiece) pieces(word string) []int64 {
	var ids []int64
	for start := 0; start < len(word); {
		end := len(word)
		for ; end > start; end-- {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := w.vocab[piece]; ok {
				ids = append(ids, id)
				break
			}
		}
		if end == start {
			// Nothing matched: the whole word is unknown.
			return []int64{tokenUnknown}
		}
		start = end
	}
	return ids
}

func splitWords(text string) []string {
	var (
		words []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}
