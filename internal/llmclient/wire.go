package llmclient

// generateContentRequest is the provider-agnostic request shape described
// in spec §6, mapped here to the Gemini generateContent wire format.
type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	TopK             int     `json:"topK"`
	TopP             float64 `json:"topP"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType"`
}

// generateContentResponse is the Gemini response envelope. usageMetadata's
// field name differs between the REST surface (totalTokenCount) and the
// SDK (totalTokens); both are read (spec §9 Open Question).
type generateContentResponse struct {
	Candidates []candidate `json:"candidates"`
	UsageMetadata usageMetadata `json:"usageMetadata"`
}

type candidate struct {
	Content content `json:"content"`
}

type usageMetadata struct {
	TotalTokenCount int `json:"totalTokenCount"`
	TotalTokens     int `json:"totalTokens"`
}

func (u usageMetadata) tokens() int {
	if u.TotalTokenCount > 0 {
		return u.TotalTokenCount
	}
	return u.TotalTokens
}

// modelListResponse is the shape of GET .../models?key=... (spec §6).
type modelListResponse struct {
	Models []modelListEntry `json:"models"`
}

type modelListEntry struct {
	Name            string `json:"name"`
	DisplayName     string `json:"displayName"`
	Description     string `json:"description"`
	InputTokenLimit int    `json:"inputTokenLimit"`
}

// RawResponse is the decoded shape handed to the Response Validator (C4).
type RawResponse struct {
	Text        string
	TotalTokens int
	ModelUsed   string
}

func newRequestBody(prompt string, maxOutputTokens int) generateContentRequest {
	return generateContentRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:      0.1,
			TopK:             1,
			TopP:             0.8,
			MaxOutputTokens:  maxOutputTokens,
			ResponseMimeType: "application/json",
		},
	}
}

func extractText(resp generateContentResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	parts := resp.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return ""
	}
	return parts[0].Text
}
