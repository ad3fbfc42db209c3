package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/v0xg/thesisdl/internal/browser"
)

const systemPrompt = `You locate elements on web pages for a document downloader.

You will receive:
1. A page map containing the URL, title, and notable elements (links, images, elements with an id), each with a CSS selector
2. A description of the element the downloader is looking for

Pick the single element that best matches the description and answer with its CSS selector.

Guidelines:
- Use only selectors from the provided page map
- Prefer selectors based on an id over positional ones
- If nothing matches, return an empty selector

Example output:
{"selector": "#totalPages"}

Respond ONLY with the JSON object, no explanation or markdown.`

const maxTokens = 256

func buildUserPrompt(pageMap *browser.PageMap, target string) (string, error) {
	pageMapJSON, err := json.MarshalIndent(pageMap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal page map: %w", err)
	}
	return "Page map:\n" + string(pageMapJSON) + "\n\nLooking for: " + target, nil
}

type selectorReply struct {
	Selector string `json:"selector"`
}

// parseSelectorJSON extracts the selector from a response that may wrap
// the JSON object in prose or a code fence.
func parseSelectorJSON(response string) (string, error) {
	var reply selectorReply
	if err := json.Unmarshal([]byte(response), &reply); err != nil {
		obj, err := extractObject(response)
		if err != nil {
			return "", err
		}
		if err := json.Unmarshal([]byte(obj), &reply); err != nil {
			return "", fmt.Errorf("failed to parse extracted JSON: %w", err)
		}
	}

	sel := strings.TrimSpace(reply.Selector)
	if sel == "" {
		return "", errors.New("model found no matching element")
	}
	return sel, nil
}

// extractObject returns the first balanced {...} in s, skipping braces
// inside JSON strings.
func extractObject(s string) (string, error) {
	start := strings.Index(s, "{")
	if start == -1 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("no matching closing brace found")
}
