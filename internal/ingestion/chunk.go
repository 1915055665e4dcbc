package ingestion

import "strings"

// Chunk is one fixed-window slice of a file's text.
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// ChunkText slices text into fixed windows with overlap. Offsets are byte
// positions into the trimmed input.
func ChunkText(text string, chunkSize int, overlap int) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return []Chunk{}
	}
	if chunkSize < 200 {
		chunkSize = 200
	}
	if overlap < 0 {
		overlap = 0
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}

	out := []Chunk{}
	idx := 0
	for start := 0; start < len(text); start += step {
		end := start + chunkSize
		if end > len(text) {
			end = len(text)
		}
		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			out = append(out, Chunk{Index: idx, Start: start, End: end, Text: piece})
			idx++
		}
		if end == len(text) {
			break
		}
	}
	return out
}
