package fileops

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	thinkingPattern = regexp.MustCompile(`(?s)THINKING:(.*?)(?:ANSWER:|$)`)
	answerPattern   = regexp.MustCompile(`(?s)ANSWER:(.*)`)
)

// SplitAnswer separates the THINKING section from the ANSWER section.
// Text without an ANSWER marker is returned whole as the answer.
func SplitAnswer(text string) (thinking []string, answer string) {
	if m := thinkingPattern.FindStringSubmatch(text); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(line)
			line = strings.TrimSpace(strings.TrimPrefix(line, "-"))
			if line != "" {
				thinking = append(thinking, line)
			}
		}
	}
	if m := answerPattern.FindStringSubmatch(text); m != nil {
		return thinking, strings.TrimSpace(m[1])
	}
	return thinking, text
}

// Parse finds the first JSON object in text that is a file operations block,
// or a legacy script_creation block converted to create operations.
func Parse(text string) (*Batch, bool) {
	hasCurrent := strings.Contains(text, `"`+BatchType+`"`)
	hasLegacy := strings.Contains(text, `"`+legacyBatchType+`"`)
	if !hasCurrent && !hasLegacy {
		return nil, false
	}

	for offset := 0; offset < len(text); {
		idx := strings.IndexByte(text[offset:], '{')
		if idx < 0 {
			break
		}
		start := offset + idx
		offset = start + 1

		raw, ok := decodeObject(text[start:])
		if !ok {
			continue
		}
		var head struct {
			Type string `json:"type"`
		}
		if errHead := json.Unmarshal(raw, &head); errHead != nil {
			continue
		}
		switch head.Type {
		case BatchType:
			var batch Batch
			if errBatch := json.Unmarshal(raw, &batch); errBatch != nil || batch.Operations == nil {
				continue
			}
			return &batch, true
		case legacyBatchType:
			var legacy legacyBatch
			if errLegacy := json.Unmarshal(raw, &legacy); errLegacy != nil || legacy.Scripts == nil {
				continue
			}
			batch := &Batch{Type: BatchType, Explanation: legacy.Explanation}
			for _, script := range legacy.Scripts {
				batch.Operations = append(batch.Operations, Operation{
					Action:   ActionCreate,
					ItemType: NodeScript,
					Name:     script.Name,
					Location: script.Location,
					Code:     script.Code,
				})
			}
			return batch, true
		}
	}
	return nil, false
}

// decodeObject decodes one JSON value from the start of s.
func decodeObject(s string) (json.RawMessage, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	var raw json.RawMessage
	if errDecode := dec.Decode(&raw); errDecode != nil {
		return nil, false
	}
	return raw, true
}
