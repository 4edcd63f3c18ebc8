package pipeline

import (
	"errors"

	"lens-capture/api/internal/vision"
)

var providerNames = map[string]string{
	"dedalus": "Dedalus Labs",
	"gemini":  "Gemini",
	"ollama":  "Ollama",
}

// UserMessage maps a fatal run error to a short actionable message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ve *vision.Error
	if errors.As(err, &ve) {
		switch ve.Kind {
		case vision.MissingCredentials:
			name := providerNames[ve.Provider]
			if name == "" {
				name = ve.Provider
			}
			return name + " API key is not set. Add it to your settings or set a backend URL."
		case vision.InvalidCredentials:
			return "Invalid API key. Check your key in settings."
		case vision.NetworkError:
			return "Network error. Check your connection."
		case vision.InvalidUpstreamResponse:
			return "The vision service returned an unexpected response. Try again."
		default:
			return ve.Error()
		}
	}
	return err.Error()
}
