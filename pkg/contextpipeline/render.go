package contextpipeline

import "encoding/json"

// RenderPrompt serializes a compiled context into the text body handed to
// an llmclient.Client. The wire format is a single JSON object: concrete
// provider clients are responsible for any further provider-specific
// message framing (roles, system/user split, etc).
func RenderPrompt(cc CompiledContext) string {
	b, err := json.MarshalIndent(cc, "", "  ")
	if err != nil {
		return toStableString(cc)
	}
	return string(b)
}
