//go:build onnx

package onnx

import (
	"reflect"
	"testing"
)

func TestWordPieceEncode(t *testing.T) {
	w := &wordPiece{vocab: map[string]int64{
		"my": 1, "dog": 2, "play": 3, "##ing": 4, "!": 5,
	}}

	got := w.encode("My dog PLAYING! zebra")
	want := []int64{1, 2, 3, 4, 5, tokenUnknown}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("encode = %v, want %v", got, want)
	}
}

func TestSplitWordsSeparatesPunctuation(t *testing.T) {
	got := splitWords("hi, there.")
	want := []string{"hi", ",", "there", "."}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitWords = %q, want %q", got, want)
	}
}
