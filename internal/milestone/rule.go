package milestone

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

type RuleType string

const (
	RuleCount          RuleType = "count"
	RuleWindowCount    RuleType = "window_count"
	RuleReturnAfterGap RuleType = "return_after_gap"
)

var (
	ErrUnknownRuleType  = errors.New("unknown rule type")
	ErrMissingRuleField = errors.New("missing rule field")
	ErrInvalidRuleValue = errors.New("invalid rule value")
)

// Rule is one of CountRule, WindowCountRule or ReturnAfterGapRule.
type Rule interface {
	Type() RuleType
	rule()
}

// CountRule fires once the named counter reaches Threshold.
type CountRule struct {
	Field     string `json:"field"`
	Threshold int    `json:"threshold"`
}

// WindowCountRule fires once Count events of the trigger type fall within the trailing Days.
type WindowCountRule struct {
	Count int `json:"count"`
	Days  int `json:"days"`
}

// ReturnAfterGapRule fires on a login at least GapDays after the previous one.
type ReturnAfterGapRule struct {
	GapDays int `json:"gap_days"`
}

func (CountRule) Type() RuleType          { return RuleCount }
func (WindowCountRule) Type() RuleType    { return RuleWindowCount }
func (ReturnAfterGapRule) Type() RuleType { return RuleReturnAfterGap }

func (CountRule) rule()          {}
func (WindowCountRule) rule()    {}
func (ReturnAfterGapRule) rule() {}

// ParseRule turns stored rule data into a typed rule. Every field is required
// and every number must be positive.
func ParseRule(ruleType string, data json.RawMessage) (Rule, error) {
	switch RuleType(ruleType) {
	case RuleCount:
		var raw struct {
			Field     *string `json:"field"`
			Threshold *int    `json:"threshold"`
		}
		if err := decodeRuleData(data, &raw); err != nil {
			return nil, err
		}
		if raw.Field == nil {
			return nil, fmt.Errorf("count rule: field: %w", ErrMissingRuleField)
		}
		if raw.Threshold == nil {
			return nil, fmt.Errorf("count rule: threshold: %w", ErrMissingRuleField)
		}
		if !knownField(*raw.Field) {
			return nil, fmt.Errorf("count rule: %q: %w", *raw.Field, ErrUnknownCounterField)
		}
		if *raw.Threshold < 1 {
			return nil, fmt.Errorf("count rule: threshold %d: %w", *raw.Threshold, ErrInvalidRuleValue)
		}
		return CountRule{Field: *raw.Field, Threshold: *raw.Threshold}, nil

	case RuleWindowCount:
		var raw struct {
			Count *int `json:"count"`
			Days  *int `json:"days"`
		}
		if err := decodeRuleData(data, &raw); err != nil {
			return nil, err
		}
		if raw.Count == nil {
			return nil, fmt.Errorf("window_count rule: count: %w", ErrMissingRuleField)
		}
		if raw.Days == nil {
			return nil, fmt.Errorf("window_count rule: days: %w", ErrMissingRuleField)
		}
		if *raw.Count < 1 || *raw.Days < 1 {
			return nil, fmt.Errorf("window_count rule: count=%d days=%d: %w", *raw.Count, *raw.Days, ErrInvalidRuleValue)
		}
		return WindowCountRule{Count: *raw.Count, Days: *raw.Days}, nil

	case RuleReturnAfterGap:
		var raw struct {
			GapDays *int `json:"gap_days"`
		}
		if err := decodeRuleData(data, &raw); err != nil {
			return nil, err
		}
		if raw.GapDays == nil {
			return nil, fmt.Errorf("return_after_gap rule: gap_days: %w", ErrMissingRuleField)
		}
		if *raw.GapDays < 1 {
			return nil, fmt.Errorf("return_after_gap rule: gap_days %d: %w", *raw.GapDays, ErrInvalidRuleValue)
		}
		return ReturnAfterGapRule{GapDays: *raw.GapDays}, nil
	}
	return nil, fmt.Errorf("%q: %w", ruleType, ErrUnknownRuleType)
}

// EncodeRule is the inverse of ParseRule.
func EncodeRule(r Rule) (RuleType, json.RawMessage, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode %s rule: %w", r.Type(), err)
	}
	return r.Type(), data, nil
}

func decodeRuleData(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("empty rule data: %w", ErrMissingRuleField)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed rule data: %v: %w", err, ErrInvalidRuleValue)
	}
	return nil
}
