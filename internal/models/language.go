package models

import "strings"

// Language detection by extension. Unknown extensions map to "text" so
// the analyzer still sends them to the model with a generic prompt.
var languageByExtension = map[string]string{
	".go":    "go",
	".py":    "python",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".rb":    "ruby",
	".php":   "php",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".sh":    "shell",
	".sql":   "sql",
	".html":  "html",
	".css":   "css",
	".scss":  "css",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".md":    "markdown",
}

func DetectLanguage(path string) string {
	idx := strings.LastIndex(path, ".")
	if idx == -1 {
		return "text"
	}
	if lang, ok := languageByExtension[strings.ToLower(path[idx:])]; ok {
		return lang
	}
	return "text"
}
