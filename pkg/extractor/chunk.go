package extractor

import "strings"

// chunkText splits text into overlapping, roughly size-rune chunks.
// Grounded on the teacher's pkg/index.Chunker, generalized from
// line-based code chunking to rune-based document chunking since
// document text has no meaningful line-length convention.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = 1500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	if step <= 0 {
		step = 1
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(runes) {
			break
		}
	}
	return chunks
}
