// Package lang holds the user-facing message catalog.
package lang

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yaml
var defaultMessages []byte

const fallbackLanguage = "en"

type Catalog struct {
	Language string
	messages map[string]string
}

// Default returns the embedded catalog in the given language. An empty
// language uses the file's active_language.
func Default(language string) (*Catalog, error) {
	return Parse(defaultMessages, language)
}

// Load reads the catalog at path. Keys missing from it fall back to the
// embedded defaults for the same language.
func Load(path, language string) (*Catalog, error) {
	base, err := Default(language)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	c, err := Parse(data, language)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range base.messages {
		if _, ok := c.messages[k]; !ok {
			c.messages[k] = v
		}
	}
	return c, nil
}

func Parse(data []byte, language string) (*Catalog, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	if language == "" {
		language = fallbackLanguage
		if v, ok := raw["active_language"].(string); ok && v != "" {
			language = v
		}
	}

	block, ok := raw[language]
	if !ok {
		block, ok = raw[fallbackLanguage]
		if !ok {
			return nil, fmt.Errorf("language %q not found and no %q fallback", language, fallbackLanguage)
		}
		language = fallbackLanguage
	}
	blockMap, ok := block.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("language block %q is not a map", language)
	}

	m := make(map[string]string, len(blockMap))
	for k, v := range blockMap {
		if s, ok := v.(string); ok {
			m[k] = s
		}
	}
	return &Catalog{Language: language, messages: m}, nil
}

// T looks up key and substitutes {name} placeholders from name/value pairs.
// Unknown keys render as {key} so they are visible rather than blank.
func (c *Catalog) T(key string, pairs ...string) string {
	s, ok := c.messages[key]
	if !ok {
		return "{" + key + "}"
	}
	for j := 0; j+1 < len(pairs); j += 2 {
		s = strings.ReplaceAll(s, "{"+pairs[j]+"}", pairs[j+1])
	}
	return s
}
