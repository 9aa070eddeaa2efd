package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"

	"github.com/phrazzld/llmbatch/internal/domain"
	"github.com/phrazzld/llmbatch/internal/generation"
	"github.com/phrazzld/llmbatch/internal/task"
)

// defaultPromptTemplate sends the item's prompt field as is.
const defaultPromptTemplate = "{{.prompt}}"

// Record fields written next to the identifier.
const (
	responseField = "response"
	modelField    = "model"
)

// promptTemplate renders one prompt per item from the item's fields.
type promptTemplate struct {
	tmpl *template.Template
}

// loadPromptTemplate parses the template file at path, or the default
// template when path is empty. A field the template references but an item
// lacks is a render error.
func loadPromptTemplate(path string) (*promptTemplate, error) {
	text := defaultPromptTemplate
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt template: %w", err)
		}
		text = string(data)
	}
	return parsePromptTemplate(text)
}

func parsePromptTemplate(text string) (*promptTemplate, error) {
	tmpl, err := template.New("prompt").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"json": func(v any) (string, error) {
				b, err := json.Marshal(v)
				return string(b), err
			},
			"trim": strings.TrimSpace,
		}).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &promptTemplate{tmpl: tmpl}, nil
}

func (p *promptTemplate) render(item domain.Item) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, map[string]any(item)); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return buf.String(), nil
}

// completionCallbacks wires the prompt template and the caller into the
// three pipeline stages. Items whose completion is empty are skipped so a
// later run retries them.
func completionCallbacks(prompt *promptTemplate, caller *generation.Caller, systemPrompt, idField string) task.Callbacks {
	return task.Callbacks{
		Assemble: func(_ context.Context, item domain.Item) (any, error) {
			id, err := item.ID(idField)
			if err != nil {
				return nil, err
			}
			text, err := prompt.render(item)
			if err != nil {
				return nil, err
			}
			return generation.CallRequest{
				Prompt:       text,
				SystemPrompt: systemPrompt,
				CallID:       id,
			}, nil
		},
		Call: func(ctx context.Context, _ domain.Item, input any) (any, error) {
			req, ok := input.(generation.CallRequest)
			if !ok {
				return nil, fmt.Errorf("unexpected call input %T", input)
			}
			return caller.Call(ctx, req)
		},
		PostProcess: func(_ context.Context, item domain.Item, _, raw any) (domain.Record, error) {
			resp, ok := raw.(*generation.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected call output %T", raw)
			}
			if strings.TrimSpace(resp.Text) == "" {
				return nil, nil
			}
			return domain.Record{
				idField:       item[idField],
				responseField: resp.Text,
				modelField:    resp.Model,
			}, nil
		},
	}
}
