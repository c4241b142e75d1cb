package ingestion

import (
	"strings"

	prose "github.com/jdkato/prose/v2"
)

// SplitText breaks text into chunks of roughly size characters with
// overlap characters carried between neighbours. Boundaries follow
// sentence segmentation so chunks do not cut mid-sentence; a single
// sentence longer than size falls back to a hard character split.
func SplitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	if len(text) <= size {
		return []string{text}
	}

	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return hardSplit(text, size, overlap)
	}

	var chunks []string
	var current []string
	curLen := 0

	flush := func() {
		if curLen == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// carry the tail sentences as overlap into the next chunk
		var tail []string
		tailLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			if tailLen+len(current[i]) > overlap {
				break
			}
			tail = append([]string{current[i]}, tail...)
			tailLen += len(current[i]) + 1
		}
		current = tail
		curLen = tailLen
	}

	for _, sent := range doc.Sentences() {
		s := strings.TrimSpace(sent.Text)
		if s == "" {
			continue
		}

		if len(s) > size {
			flush()
			chunks = append(chunks, hardSplit(s, size, overlap)...)
			current = nil
			curLen = 0
			continue
		}

		if curLen > 0 && curLen+len(s)+1 > size {
			flush()
		}
		current = append(current, s)
		curLen += len(s) + 1
	}
	flush()

	return chunks
}

func hardSplit(text string, size, overlap int) []string {
	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(text); start += step {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}
