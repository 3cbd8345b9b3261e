package contentindex

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Encoder turns post content into a fixed-length embedding. The real
// system's multimodal encoder is out of scope (spec.md §1); this
// deterministic local encoder stands in behind the same interface so a
// real embedding service can be substituted without touching C3's
// contract (spec.md §4.3).
type Encoder interface {
	Embed(content string, image []byte) []float32
}

// EmbeddingDim is the fixed vector length chromem-go stores per document.
const EmbeddingDim = 128

// HashEncoder hashes character n-grams (and, when present, image byte
// n-grams) into buckets, then L2-normalizes. Two near-duplicate texts
// land close in cosine space; unrelated texts do not.
type HashEncoder struct {
	dim int
}

func NewHashEncoder() *HashEncoder {
	return &HashEncoder{dim: EmbeddingDim}
}

func (e *HashEncoder) Embed(content string, image []byte) []float32 {
	vec := make([]float64, e.dim)
	textDim := e.dim
	if len(image) > 0 {
		textDim = e.dim / 2
	}
	accumulateNGrams(vec[:textDim], normalize(content), 3)
	if len(image) > 0 {
		accumulateBytes(vec[textDim:], image)
	}
	return normalizeL2(vec)
}

func normalize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

func accumulateNGrams(bucket []float64, text string, n int) {
	if len(bucket) == 0 {
		return
	}
	runes := []rune(text)
	if len(runes) < n {
		n = len(runes)
	}
	if n == 0 {
		return
	}
	for i := 0; i+n <= len(runes); i++ {
		gram := string(runes[i : i+n])
		h := fnv.New32a()
		_, _ = h.Write([]byte(gram))
		idx := int(h.Sum32()) % len(bucket)
		if idx < 0 {
			idx += len(bucket)
		}
		bucket[idx]++
	}
}

func accumulateBytes(bucket []float64, data []byte) {
	if len(bucket) == 0 {
		return
	}
	const n = 4
	for i := 0; i+n <= len(data); i += n {
		h := fnv.New32a()
		_, _ = h.Write(data[i : i+n])
		idx := int(h.Sum32()) % len(bucket)
		if idx < 0 {
			idx += len(bucket)
		}
		bucket[idx]++
	}
}

func normalizeL2(vec []float64) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += v * v
	}
	out := make([]float32, len(vec))
	if sumSq == 0 {
		return out
	}
	norm := math.Sqrt(sumSq)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
