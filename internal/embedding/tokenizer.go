package embedding

import (
	"strings"
	"unicode"
)

// Tokenize lowercases text and splits it on any non-alphanumeric rune,
// dropping empties. Shared by the hashing embedder and the BERT input
// builder so both halves of retrieval see the same token stream.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// HashToken returns a non-negative deterministic hash for a token.
func HashToken(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}

// BertInputs builds padded BERT-style model inputs (input_ids,
// attention_mask, token_type_ids) from text, with hash-derived token IDs.
func BertInputs(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = 101 // [CLS]
	attentionMask[0] = 1

	pos := 1
	for _, tok := range Tokenize(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashToken(tok) % 30000)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = 102 // [SEP]
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}
