package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Operator defines the comparison operation for field filtering
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpRegex       Operator = "regex"
	OpGreaterThan Operator = "gt"
	OpLessThan    Operator = "lt"
)

// FieldFilterProcessor drops records whose JSON field matches a condition.
type FieldFilterProcessor struct {
	name     string
	path     string // gjson path
	operator Operator
	value    string
	number   float64        // parsed value for gt/lt
	regex    *regexp.Regexp // compiled regex if operator is OpRegex
}

// FieldFilterConfig holds configuration for creating a FieldFilterProcessor
type FieldFilterConfig struct {
	Name     string
	Path     string // user path, segments separated by '/'
	Operator Operator
	Value    string
}

// NewFieldFilterProcessor creates a new field filter processor.
func NewFieldFilterProcessor(cfg FieldFilterConfig) (*FieldFilterProcessor, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path must be specified")
	}

	p := &FieldFilterProcessor{
		name:     cfg.Name,
		path:     convertToGjsonPath(cfg.Path),
		operator: cfg.Operator,
		value:    cfg.Value,
	}
	if p.operator == "" {
		p.operator = OpEquals
	}

	switch p.operator {
	case OpEquals, OpContains:
	case OpRegex:
		re, err := regexp.Compile(cfg.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		p.regex = re
	case OpGreaterThan, OpLessThan:
		n, err := strconv.ParseFloat(cfg.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("operator %s needs a numeric value: %w", p.operator, err)
		}
		p.number = n
	default:
		return nil, fmt.Errorf("unknown operator %q", cfg.Operator)
	}

	return p, nil
}

func (p *FieldFilterProcessor) Name() string {
	return p.name
}

// Process returns drop=true when the field exists and matches.
// Missing fields pass through.
func (p *FieldFilterProcessor) Process(_ *ProcessingContext, payload []byte) (bool, error) {
	value := gjson.GetBytes(payload, p.path)
	if !value.Exists() {
		return false, nil
	}
	return p.matchValue(value), nil
}

func (p *FieldFilterProcessor) matchValue(value gjson.Result) bool {
	strValue := value.String()

	switch p.operator {
	case OpEquals:
		return strValue == p.value
	case OpContains:
		return strings.Contains(strValue, p.value)
	case OpRegex:
		return p.regex.MatchString(strValue)
	case OpGreaterThan:
		return value.Type == gjson.Number && value.Float() > p.number
	case OpLessThan:
		return value.Type == gjson.Number && value.Float() < p.number
	default:
		return false
	}
}

// convertToGjsonPath converts user-friendly path (using /) to gjson path.
// Example: "chair/Name" -> "chair.Name", "a.b" -> "a\.b"
func convertToGjsonPath(userPath string) string {
	parts := strings.Split(userPath, "/")
	for i, part := range parts {
		// Dots within a part are literal key characters.
		parts[i] = strings.ReplaceAll(part, ".", "\\.")
	}
	return strings.Join(parts, ".")
}
