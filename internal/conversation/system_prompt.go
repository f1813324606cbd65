package conversation

import (
	"os"
	"strings"

	"github.com/zapia-ai/relay/pkg/logging"
)

// DefaultSystemPrompt is used when the configured prompt file is unreadable.
const DefaultSystemPrompt = "Você é uma assistente virtual."

// LoadSystemPrompt reads the system instruction once at startup. A missing or
// unreadable file degrades to the default instruction instead of failing boot.
func LoadSystemPrompt(path string, logger *logging.Logger) string {
	if logger == nil {
		logger = logging.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read system prompt file, using default", "path", path, "error", err)
		return DefaultSystemPrompt
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		logger.Warn("system prompt file is empty, using default", "path", path)
		return DefaultSystemPrompt
	}
	return prompt
}
