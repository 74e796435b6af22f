package retrieval

import "strings"

// separators are tried in order when a piece is still too large: paragraph
// breaks first, then lines, then sentences, then words.
var separators = []string{"\n\n", "\n", ". ", " "}

// SplitText splits text into chunks of at most size runes with roughly
// overlap runes carried between neighbors, preferring to break on natural
// boundaries.
func SplitText(text string, size, overlap int) []string {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len([]rune(text)) <= size {
		return []string{text}
	}

	pieces := splitRecursive(text, size, separators)
	return mergeWithOverlap(pieces, size, overlap)
}

func splitRecursive(text string, size int, seps []string) []string {
	if len([]rune(text)) <= size {
		return []string{text}
	}
	if len(seps) == 0 {
		return splitRunes(text, size)
	}

	parts := strings.Split(text, seps[0])
	var out []string
	for i, part := range parts {
		if i < len(parts)-1 {
			part += seps[0]
		}
		if strings.TrimSpace(part) == "" {
			continue
		}
		out = append(out, splitRecursive(part, size, seps[1:])...)
	}
	return out
}

func splitRunes(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// mergeWithOverlap packs small pieces back together up to size, seeding
// each new chunk with the tail of the previous one.
func mergeWithOverlap(pieces []string, size, overlap int) []string {
	var chunks []string
	var current []rune
	fresh := 0 // runes appended since the last flush

	flush := func() {
		if fresh == 0 {
			return
		}
		chunk := strings.TrimSpace(string(current))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if overlap > 0 && len(current) > overlap {
			current = append([]rune(nil), current[len(current)-overlap:]...)
		} else {
			current = nil
		}
		fresh = 0
	}

	for _, piece := range pieces {
		runes := []rune(piece)
		if len(current)+len(runes) > size && fresh > 0 {
			flush()
		}
		current = append(current, runes...)
		fresh += len(runes)
	}
	flush()
	return chunks
}
