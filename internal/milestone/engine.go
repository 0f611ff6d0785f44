package milestone

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownTriggerEvent = errors.New("unknown trigger event")
	ErrDuplicateCode       = errors.New("duplicate milestone code")
	ErrRuleTriggerMismatch = errors.New("return_after_gap rules must trigger on UserLoggedIn")
)

const DefaultAnimation = "confetti"

// DefinitionRecord is a milestone definition as stored and edited.
type DefinitionRecord struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	Code           string          `json:"code" db:"code"`
	TitleKey       string          `json:"title_key" db:"title_key"`
	DescriptionKey string          `json:"description_key" db:"description_key"`
	Icon           string          `json:"icon" db:"icon"`
	TriggerEvent   EventType       `json:"trigger_event" db:"trigger_event"`
	RuleType       string          `json:"rule_type" db:"rule_type"`
	RuleData       json.RawMessage `json:"rule_data" db:"rule_data"`
	AnimationType  string          `json:"animation_type" db:"animation_type"`
	AnimationData  *string         `json:"animation_data" db:"animation_data"`
	SortOrder      int             `json:"sort_order" db:"sort_order"`
	IsActive       bool            `json:"is_active" db:"is_active"`
}

// Definition is a record whose rule data has been parsed.
type Definition struct {
	DefinitionRecord
	Rule Rule `json:"-"`
}

// DefinitionError reports a record NewEngine refused to load.
type DefinitionError struct {
	ID   uuid.UUID
	Code string
	Err  error
}

func (e DefinitionError) Error() string {
	return fmt.Sprintf("milestone definition %q (%s): %v", e.Code, e.ID, e.Err)
}

func (e DefinitionError) Unwrap() error { return e.Err }

// Engine evaluates a fixed set of definitions. It is immutable and safe for concurrent use.
type Engine struct {
	byTrigger map[EventType][]Definition
	all       []Definition
}

// NewEngine parses every record. Malformed records are returned as errors and left out;
// they never prevent the rest from loading.
func NewEngine(records []DefinitionRecord) (*Engine, []DefinitionError) {
	e := &Engine{byTrigger: make(map[EventType][]Definition)}
	var errs []DefinitionError
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		def, err := parseDefinition(rec)
		if err == nil && seen[rec.Code] {
			err = ErrDuplicateCode
		}
		if err != nil {
			errs = append(errs, DefinitionError{ID: rec.ID, Code: rec.Code, Err: err})
			continue
		}
		seen[rec.Code] = true
		e.all = append(e.all, def)
		e.byTrigger[def.TriggerEvent] = append(e.byTrigger[def.TriggerEvent], def)
	}

	sortDefinitions(e.all)
	for _, defs := range e.byTrigger {
		sortDefinitions(defs)
	}
	return e, errs
}

func parseDefinition(rec DefinitionRecord) (Definition, error) {
	if rec.Code == "" {
		return Definition{}, fmt.Errorf("code: %w", ErrMissingRuleField)
	}
	if !rec.TriggerEvent.Valid() {
		return Definition{}, fmt.Errorf("%q: %w", rec.TriggerEvent, ErrUnknownTriggerEvent)
	}
	r, err := ParseRule(rec.RuleType, rec.RuleData)
	if err != nil {
		return Definition{}, err
	}
	if r.Type() == RuleReturnAfterGap && rec.TriggerEvent != UserLoggedIn {
		return Definition{}, ErrRuleTriggerMismatch
	}
	if rec.AnimationType == "" {
		rec.AnimationType = DefaultAnimation
	}
	return Definition{DefinitionRecord: rec, Rule: r}, nil
}

func sortDefinitions(defs []Definition) {
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].SortOrder != defs[j].SortOrder {
			return defs[i].SortOrder < defs[j].SortOrder
		}
		return defs[i].Code < defs[j].Code
	})
}

// Definitions returns every loaded definition, active or not, in display order.
func (e *Engine) Definitions() []Definition {
	out := make([]Definition, len(e.all))
	copy(out, e.all)
	return out
}

type Input struct {
	UserID     uuid.UUID
	EventType  EventType
	OccurredAt time.Time
	// Counters after the triggering event has been applied.
	Stats Stats
	// Event log slice used by window rules. May be nil when no window rule can trigger.
	Events EventCounter
	// Definitions already awarded to this user.
	Awarded map[uuid.UUID]bool
}

// Fired is a newly earned milestone with what the caller needs to render and persist it.
type Fired struct {
	DefinitionID   uuid.UUID `json:"milestone_definition_id"`
	Code           string    `json:"code"`
	TitleKey       string    `json:"title_key"`
	DescriptionKey string    `json:"description_key"`
	Icon           string    `json:"icon"`
	AnimationType  string    `json:"animation_type"`
	AnimationData  *string   `json:"animation_data"`
}

type Result struct {
	Fired []Fired
}

func (r Result) Codes() []string {
	codes := make([]string, len(r.Fired))
	for i, f := range r.Fired {
		codes[i] = f.Code
	}
	return codes
}

// Evaluate returns the active definitions for in.EventType that are satisfied and not yet awarded.
// The result is deterministic for a given input, so retries are safe.
func (e *Engine) Evaluate(in Input) Result {
	var res Result
	for _, def := range e.byTrigger[in.EventType] {
		if !def.IsActive || in.Awarded[def.ID] {
			continue
		}
		if !satisfied(def, in) {
			continue
		}
		res.Fired = append(res.Fired, Fired{
			DefinitionID:   def.ID,
			Code:           def.Code,
			TitleKey:       def.TitleKey,
			DescriptionKey: def.DescriptionKey,
			Icon:           def.Icon,
			AnimationType:  def.AnimationType,
			AnimationData:  def.AnimationData,
		})
	}
	return res
}

func satisfied(def Definition, in Input) bool {
	switch r := def.Rule.(type) {
	case CountRule:
		v, err := in.Stats.Field(r.Field)
		return err == nil && v >= r.Threshold
	case WindowCountRule:
		if in.Events == nil {
			return false
		}
		since := in.OccurredAt.Add(-time.Duration(r.Days) * 24 * time.Hour)
		return in.Events.CountSince(def.TriggerEvent, since) >= r.Count
	case ReturnAfterGapRule:
		if in.EventType != UserLoggedIn || in.Stats.LastLoginAt == nil || in.Stats.PreviousLoginAt == nil {
			return false
		}
		gap := in.Stats.LastLoginAt.Sub(*in.Stats.PreviousLoginAt)
		return gap >= time.Duration(r.GapDays)*24*time.Hour
	}
	return false
}
