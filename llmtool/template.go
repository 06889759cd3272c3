package llmtool

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// RenderSystemPrompt resolves a ToolDef.SystemPrompt (inline text or a
// file:// path) and renders it against data using text/template.
func RenderSystemPrompt(source string, data any) (string, error) {
	text := source
	if strings.HasPrefix(source, "file://") {
		path := strings.TrimPrefix(source, "file://")
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		text = string(raw)
	}

	tmpl, err := template.New("system_prompt").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
