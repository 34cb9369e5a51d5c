package enrich

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/crashreports/internal/incident"
)

//go:embed facts.schema.json
var factsSchemaJSON string

const factsSystemPrompt = `You extract facts about a single road traffic crash from news coverage.
Rules:
- Extract only facts explicitly stated in the provided text.
- Use null for unknown scalar values and [] for unknown lists.
- Never infer fault, guess identities, or speculate about causes.
- Attribute allegations to their source (for example "police said").
Respond with one JSON object with exactly these keys:
primaryLocation, city, county, state, roads, timeOfCrashApprox,
peopleInvolved (objects with role, description, age, status),
vehicles (objects with type, ownerCompany), companiesMentioned,
agenciesInvolved, injuriesCount, fatalitiesCount, causeOrAllegations.`

const maxPersonAge = 130

var (
	factArrayKeys  = []string{"roads", "peopleInvolved", "vehicles", "companiesMentioned", "agenciesInvolved"}
	factScalarKeys = []string{"primaryLocation", "city", "county", "state", "timeOfCrashApprox", "injuriesCount", "fatalitiesCount", "causeOrAllegations"}
)

var (
	factsSchemaOnce sync.Once
	factsSchema     *jsonschema.Schema
	factsSchemaErr  error
)

// SourceText is one news mention fed to the model.
type SourceText struct {
	Title   string
	Snippet string
	Body    string
}

type FactsInput struct {
	Headline string
	Sources  []SourceText
}

// ExtractFacts returns nil when the generator is unconfigured, the call
// fails, or the response does not describe a valid AccidentFacts object.
func ExtractFacts(ctx context.Context, gen Generator, in FactsInput, logger zerolog.Logger) *incident.AccidentFacts {
	if gen == nil || !gen.Configured() {
		return nil
	}
	if strings.TrimSpace(in.Headline) == "" {
		return nil
	}

	raw, err := gen.Complete(ctx, ChatRequest{
		System:      factsSystemPrompt,
		User:        buildFactsPrompt(in),
		JSON:        true,
		Temperature: 0,
	})
	if err != nil {
		logger.Warn().Err(err).Str("headline", in.Headline).Msg("fact extraction call failed")
		return nil
	}

	facts, err := ParseFacts(raw)
	if err != nil {
		logger.Warn().Err(err).Str("headline", in.Headline).Msg("fact extraction response rejected")
		return nil
	}
	return facts
}

func buildFactsPrompt(in FactsInput) string {
	var b strings.Builder
	b.WriteString("Headline: ")
	b.WriteString(strings.TrimSpace(in.Headline))
	b.WriteString("\n\nSources:\n")
	for i, src := range in.Sources {
		fmt.Fprintf(&b, "\n[%d] %s\n", i+1, strings.TrimSpace(src.Title))
		if snippet := strings.TrimSpace(src.Snippet); snippet != "" {
			b.WriteString(snippet)
			b.WriteString("\n")
		}
		if body := strings.TrimSpace(src.Body); body != "" {
			b.WriteString(body)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ParseFacts decodes a model response into AccidentFacts. List fields that
// are not arrays are replaced with empty lists, missing keys become null,
// counts and ages are coerced to integers, and unrepairable people or
// vehicle entries are dropped before the object is checked against the
// embedded schema.
func ParseFacts(raw string) (*incident.AccidentFacts, error) {
	trimmed := strings.TrimSpace(stripCodeFence(raw))
	if trimmed == "" {
		return nil, fmt.Errorf("facts response is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader([]byte(trimmed)))
	decoder.UseNumber()
	var value map[string]any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode facts JSON: %w", err)
	}
	if value == nil {
		return nil, fmt.Errorf("facts response is not an object")
	}

	coerceFacts(value)

	schema, err := loadFactsSchema()
	if err != nil {
		return nil, fmt.Errorf("load facts schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("facts schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize facts JSON: %w", err)
	}
	var facts incident.AccidentFacts
	if err := json.Unmarshal(normalized, &facts); err != nil {
		return nil, fmt.Errorf("unmarshal facts: %w", err)
	}
	facts.Normalize()
	return &facts, nil
}

func coerceFacts(value map[string]any) {
	for _, key := range factArrayKeys {
		items, ok := value[key].([]any)
		if !ok {
			value[key] = []any{}
			continue
		}
		kept := make([]any, 0, len(items))
		for _, item := range items {
			switch key {
			case "peopleInvolved":
				if obj, ok := coercePerson(item); ok {
					kept = append(kept, obj)
				}
			case "vehicles":
				if obj, ok := coerceVehicle(item); ok {
					kept = append(kept, obj)
				}
			default:
				if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					kept = append(kept, strings.TrimSpace(s))
				}
			}
		}
		value[key] = kept
	}

	for _, key := range factScalarKeys {
		if _, ok := value[key]; !ok {
			value[key] = nil
		}
	}
	for _, key := range []string{"injuriesCount", "fatalitiesCount"} {
		if value[key] == nil {
			continue
		}
		if n, ok := coerceInt(value[key]); ok {
			value[key] = n
		} else {
			value[key] = nil
		}
	}
}

// coercePerson reports false for items that cannot be repaired into a
// person object. Such items are dropped without failing the whole response.
func coercePerson(item any) (map[string]any, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return nil, false
	}
	if !coerceRequiredString(obj, "role") {
		return nil, false
	}
	if !coerceOptionalString(obj, "description") || !coerceOptionalString(obj, "status") {
		return nil, false
	}
	if raw, present := obj["age"]; present && raw != nil {
		n, ok := coerceInt(raw)
		if !ok {
			obj["age"] = nil
		} else if age, _ := n.Int64(); age < 0 || age > maxPersonAge {
			obj["age"] = nil
		} else {
			obj["age"] = n
		}
	}
	return obj, true
}

func coerceVehicle(item any) (map[string]any, bool) {
	obj, ok := item.(map[string]any)
	if !ok {
		return nil, false
	}
	if !coerceRequiredString(obj, "type") || !coerceOptionalString(obj, "ownerCompany") {
		return nil, false
	}
	return obj, true
}

// coerceRequiredString turns a null or missing field into "".
func coerceRequiredString(obj map[string]any, key string) bool {
	switch obj[key].(type) {
	case nil:
		obj[key] = ""
		return true
	case string:
		return true
	default:
		return false
	}
}

func coerceOptionalString(obj map[string]any, key string) bool {
	switch obj[key].(type) {
	case nil, string:
		return true
	default:
		return false
	}
}

// coerceInt accepts integers, integral floats like 2.0 and numeric strings.
func coerceInt(raw any) (json.Number, bool) {
	var text string
	switch v := raw.(type) {
	case json.Number:
		text = v.String()
	case string:
		text = strings.TrimSpace(v)
	default:
		return "", false
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return json.Number(strconv.FormatInt(n, 10)), true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1e15 {
		return "", false
	}
	return json.Number(strconv.FormatInt(int64(f), 10)), true
}

func loadFactsSchema() (*jsonschema.Schema, error) {
	factsSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("accident_facts.schema.json", strings.NewReader(factsSchemaJSON)); err != nil {
			factsSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("accident_facts.schema.json")
		if err != nil {
			factsSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		factsSchema = schema
	})

	if factsSchemaErr != nil {
		return nil, factsSchemaErr
	}
	if factsSchema == nil {
		return nil, fmt.Errorf("facts schema not initialized")
	}
	return factsSchema, nil
}

// stripCodeFence unwraps a response that arrived inside ```json fences
// despite JSON mode.
func stripCodeFence(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		trimmed = trimmed[nl+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
}
