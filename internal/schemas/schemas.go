// Package schemas проверяет ответы модели по JSON-схемам до разбора в строгие структуры.
//
// Разбор в две стадии: текст превращается в нетипизированное значение и
// проверяется схемой, затем раскладывается в целевую структуру. Любая ошибка
// оборачивает ErrInvalidOutput, чтобы вызывающий мог повторить запрос.
package schemas

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const baseURL = "https://scam-or-safe.local/schemas/"

// ErrInvalidOutput модель вернула текст, который не прошёл разбор или схему.
var ErrInvalidOutput = errors.New("invalid model output")

//go:embed json/*.json
var schemaFS embed.FS

// Schema скомпилированная схема.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// Name имя файла схемы.
func (s *Schema) Name() string { return s.name }

var (
	Root        = mustLoad("root.json")
	Node        = mustLoad("node.json")
	Educational = mustLoad("educational.json")
	Protagonist = mustLoad("protagonist.json")
)

func mustLoad(name string) *Schema {
	s, err := load(name)
	if err != nil {
		panic(err)
	}
	return s
}

func load(name string) (*Schema, error) {
	c := jsonschema.NewCompiler()

	entries, err := schemaFS.ReadDir("json")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded schemas: %w", err)
	}
	for _, e := range entries {
		raw, err := schemaFS.ReadFile("json/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", e.Name(), err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema %s: %w", e.Name(), err)
		}
		if err := c.AddResource(baseURL+e.Name(), doc); err != nil {
			return nil, fmt.Errorf("failed to add schema resource %s: %w", e.Name(), err)
		}
	}

	compiled, err := c.Compile(baseURL + name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// Parse первая стадия: текст в нетипизированное значение, проверенное схемой.
func (s *Schema) Parse(text string) (any, error) {
	cleaned := StripCodeFence(text)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidOutput)
	}

	loose, err := jsonschema.UnmarshalJSON(strings.NewReader(cleaned))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed json: %v", ErrInvalidOutput, err)
	}
	if err := s.compiled.Validate(loose); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidOutput, s.name, err)
	}
	return loose, nil
}

// Decode разбирает ответ модели в строгую структуру T.
func Decode[T any](s *Schema, text string) (*T, error) {
	if _, err := s.Parse(text); err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal([]byte(StripCodeFence(text)), &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidOutput, s.name, err)
	}
	return &out, nil
}

// StripCodeFence убирает обёртку ```json ... ```, которую иногда добавляют модели.
func StripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = strings.TrimPrefix(t, "json")
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
