package services

import (
	"math"
	"sort"
)

// tfidfVector is a sparse, L2-normalized TF-IDF vector. Terms are sorted so every
// sum over the vector runs in the same order and gives bit-identical results.
type tfidfVector struct {
	terms   []string
	weights []float64
}

// buildTFIDF vectorizes texts over unigrams and bigrams with smoothed IDF
// (ln((1+n)/(1+df)) + 1), matching the usual scikit-learn defaults.
func buildTFIDF(texts []string) []tfidfVector {
	counts := make([]map[string]int, len(texts))
	docFreq := map[string]int{}

	for i, text := range texts {
		counts[i] = ngramCounts(tokenizeText(text))
		for term := range counts[i] {
			docFreq[term]++
		}
	}

	n := float64(len(texts))
	vectors := make([]tfidfVector, len(texts))
	for i, termCounts := range counts {
		terms := make([]string, 0, len(termCounts))
		for term := range termCounts {
			terms = append(terms, term)
		}
		sort.Strings(terms)

		weights := make([]float64, len(terms))
		norm := 0.0
		for k, term := range terms {
			idf := math.Log((1+n)/(1+float64(docFreq[term]))) + 1
			weights[k] = float64(termCounts[term]) * idf
			norm += weights[k] * weights[k]
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for k := range weights {
				weights[k] /= norm
			}
		}
		vectors[i] = tfidfVector{terms: terms, weights: weights}
	}
	return vectors
}

func ngramCounts(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens)*2)
	for i, token := range tokens {
		counts[token]++
		if i > 0 {
			counts[tokens[i-1]+" "+token]++
		}
	}
	return counts
}

// cosine is the dot product of two normalized vectors, merged in term order
func cosine(a, b tfidfVector) float64 {
	dot := 0.0
	for i, j := 0, 0; i < len(a.terms) && j < len(b.terms); {
		switch {
		case a.terms[i] < b.terms[j]:
			i++
		case a.terms[i] > b.terms[j]:
			j++
		default:
			dot += a.weights[i] * b.weights[j]
			i++
			j++
		}
	}
	return math.Max(0, math.Min(1, dot))
}

// SimilarityMatrix returns pairwise TF-IDF cosine similarity. Texts that are equal
// after normalization always score 1, including texts with no indexable terms.
func SimilarityMatrix(texts []string) [][]float64 {
	vectors := buildTFIDF(texts)
	normalized := make([]string, len(texts))
	for i, text := range texts {
		normalized[i] = normalizeText(text)
	}

	matrix := make([][]float64, len(texts))
	for i := range matrix {
		matrix[i] = make([]float64, len(texts))
	}
	for i := range texts {
		matrix[i][i] = 1
		for j := i + 1; j < len(texts); j++ {
			sim := cosine(vectors[i], vectors[j])
			if normalized[i] == normalized[j] {
				sim = 1
			}
			matrix[i][j] = sim
			matrix[j][i] = sim
		}
	}
	return matrix
}
