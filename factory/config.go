/*
Package factory converts JSON organization configuration into leave types.

PURPOSE:
  Categories, workflow groups, warning rules and users are data. HR keeps
  them in one JSON document; the factory validates it, fills defaults and
  produces the typed values the stores and services consume.

JSON SCHEMA:
  {
    "categories": [
      {"code": "ANNUAL", "name": "Annual", "quota": "annual"},
      {"code": "MENSTRUAL", "name": "Menstrual", "allowed_gender": "FEMALE_ONLY"}
    ],
    "workflow_groups": [
      {
        "id": "default",
        "name": "Default",
        "steps": [{"name": "Manager", "approver_role": "manager"}],
        "title_rules": [{"job_title": "Director", "max_level": 1}]
      }
    ],
    "warning_rules": [
      {"id": "sick-3", "name": "Frequent sick leave", "target_type": "SICK",
       "threshold": 3, "message": "3+ sick days", "color": "#f59e0b"}
    ],
    "users": [
      {"id": "u1", "employee_id": "E001", "name": "Alex", "gender": "FEMALE",
       "workflow_group_id": "default", "annual_quota": {"2024": 14}}
    ]
  }

DEFAULTS:
  - category allowed_gender: ALL
  - category name: the code
  - step level: position in the list, starting at 1
  - workflow group name: the id

USAGE:
  f := factory.NewConfigFactory()
  cfg, err := f.Parse(jsonBytes)
  err = factory.Apply(ctx, store, cfg)

SEE ALSO:
  - leave/category.go, leave/workflow.go, leave/warning.go: Target types
  - api/scenarios.go: Demo fixtures built from JSON
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type ConfigJSON struct {
	Categories     []CategoryJSON      `json:"categories,omitempty"`
	WorkflowGroups []WorkflowGroupJSON `json:"workflow_groups,omitempty"`
	WarningRules   []WarningRuleJSON   `json:"warning_rules,omitempty"`
	Users          []UserJSON          `json:"users,omitempty"`
}

type CategoryJSON struct {
	Code          string `json:"code"`
	Name          string `json:"name,omitempty"`
	Quota         string `json:"quota,omitempty"` // "", annual, overtime_balance
	AllowedGender string `json:"allowed_gender,omitempty"`
}

type WorkflowGroupJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name,omitempty"`
	Steps      []StepJSON      `json:"steps"`
	TitleRules []TitleRuleJSON `json:"title_rules,omitempty"`
}

type StepJSON struct {
	Level        int    `json:"level,omitempty"`
	Name         string `json:"name"`
	ApproverRole string `json:"approver_role,omitempty"`
}

type TitleRuleJSON struct {
	JobTitle string `json:"job_title"`
	MaxLevel int    `json:"max_level"`
}

type WarningRuleJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	TargetType string          `json:"target_type"`
	Threshold  decimal.Decimal `json:"threshold"`
	Message    string          `json:"message,omitempty"`
	Color      string          `json:"color,omitempty"`
}

type UserJSON struct {
	ID              string                     `json:"id"`
	EmployeeID      string                     `json:"employee_id,omitempty"`
	Name            string                     `json:"name"`
	Department      string                     `json:"department,omitempty"`
	JobTitle        string                     `json:"job_title,omitempty"`
	Gender          string                     `json:"gender,omitempty"`
	WorkflowGroupID string                     `json:"workflow_group_id,omitempty"`
	AnnualQuota     map[string]decimal.Decimal `json:"annual_quota,omitempty"`
}

// Config is the typed result of parsing.
type Config struct {
	Categories     []leave.CategoryDef
	WorkflowGroups []leave.WorkflowGroup
	WarningRules   []leave.WarningRule
	Users          []leave.User
}

// =============================================================================
// CONFIG FACTORY
// =============================================================================

type ConfigFactory struct{}

func NewConfigFactory() *ConfigFactory {
	return &ConfigFactory{}
}

// Parse decodes and converts a JSON document.
func (f *ConfigFactory) Parse(data []byte) (Config, error) {
	var cj ConfigJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return Config{}, fmt.Errorf("%w: failed to parse config JSON: %v", generic.ErrValidation, err)
	}
	return f.FromJSON(cj)
}

// FromJSON validates cj and converts it.
func (f *ConfigFactory) FromJSON(cj ConfigJSON) (Config, error) {
	var cfg Config
	for _, c := range cj.Categories {
		def, err := parseCategory(c)
		if err != nil {
			return Config{}, err
		}
		cfg.Categories = append(cfg.Categories, def)
	}
	groups := make(map[string]bool)
	for _, g := range cj.WorkflowGroups {
		group, err := parseWorkflowGroup(g)
		if err != nil {
			return Config{}, err
		}
		groups[group.ID] = true
		cfg.WorkflowGroups = append(cfg.WorkflowGroups, group)
	}
	for _, r := range cj.WarningRules {
		rule, err := parseWarningRule(r)
		if err != nil {
			return Config{}, err
		}
		cfg.WarningRules = append(cfg.WarningRules, rule)
	}
	for _, u := range cj.Users {
		user, err := parseUser(u)
		if err != nil {
			return Config{}, err
		}
		if user.WorkflowGroupID != "" && len(groups) > 0 && !groups[user.WorkflowGroupID] {
			return Config{}, invalid("user %s: unknown workflow group %q", user.ID, user.WorkflowGroupID)
		}
		cfg.Users = append(cfg.Users, user)
	}
	return cfg, nil
}

// ToJSON converts typed configuration back to its JSON form.
func (f *ConfigFactory) ToJSON(cfg Config) ConfigJSON {
	var cj ConfigJSON
	for _, c := range cfg.Categories {
		cj.Categories = append(cj.Categories, CategoryJSON{
			Code: string(c.Code), Name: c.Name, Quota: string(c.Quota), AllowedGender: string(c.AllowedGender),
		})
	}
	for _, g := range cfg.WorkflowGroups {
		gj := WorkflowGroupJSON{ID: g.ID, Name: g.Name}
		for _, s := range g.Steps {
			gj.Steps = append(gj.Steps, StepJSON{Level: s.Level, Name: s.Name, ApproverRole: s.ApproverRole})
		}
		for _, t := range g.TitleRules {
			gj.TitleRules = append(gj.TitleRules, TitleRuleJSON{JobTitle: t.JobTitle, MaxLevel: t.MaxLevel})
		}
		cj.WorkflowGroups = append(cj.WorkflowGroups, gj)
	}
	for _, r := range cfg.WarningRules {
		cj.WarningRules = append(cj.WarningRules, WarningRuleJSON{
			ID: r.ID, Name: r.Name, TargetType: string(r.TargetType), Threshold: r.Threshold, Message: r.Message, Color: r.Color,
		})
	}
	for _, u := range cfg.Users {
		uj := UserJSON{
			ID: string(u.ID), EmployeeID: u.EmployeeID, Name: u.Name, Department: u.Department,
			JobTitle: u.JobTitle, Gender: string(u.Gender), WorkflowGroupID: u.WorkflowGroupID,
		}
		if len(u.Quota.Annual) > 0 {
			uj.AnnualQuota = make(map[string]decimal.Decimal, len(u.Quota.Annual))
			for y, d := range u.Quota.Annual {
				uj.AnnualQuota[strconv.Itoa(y)] = d
			}
		}
		cj.Users = append(cj.Users, uj)
	}
	return cj
}

func parseCategory(c CategoryJSON) (leave.CategoryDef, error) {
	if c.Code == "" {
		return leave.CategoryDef{}, invalid("category code is required")
	}
	def := leave.CategoryDef{
		Code:          leave.Category(c.Code),
		Name:          c.Name,
		Quota:         leave.QuotaKind(c.Quota),
		AllowedGender: leave.GenderRestriction(c.AllowedGender),
	}
	if def.Name == "" {
		def.Name = c.Code
	}
	switch def.Quota {
	case leave.QuotaNone, leave.QuotaAnnual, leave.QuotaOvertimeBalance:
	default:
		return leave.CategoryDef{}, invalid("category %s: unknown quota kind %q", c.Code, c.Quota)
	}
	switch def.AllowedGender {
	case "":
		def.AllowedGender = leave.AllowAll
	case leave.AllowAll, leave.MaleOnly, leave.FemaleOnly:
	default:
		return leave.CategoryDef{}, invalid("category %s: unknown gender restriction %q", c.Code, c.AllowedGender)
	}
	return def, nil
}

func parseWorkflowGroup(g WorkflowGroupJSON) (leave.WorkflowGroup, error) {
	if g.ID == "" {
		return leave.WorkflowGroup{}, invalid("workflow group id is required")
	}
	group := leave.WorkflowGroup{ID: g.ID, Name: g.Name}
	if group.Name == "" {
		group.Name = g.ID
	}
	for i, s := range g.Steps {
		level := s.Level
		if level == 0 {
			level = i + 1
		}
		group.Steps = append(group.Steps, leave.WorkflowStep{Level: level, Name: s.Name, ApproverRole: s.ApproverRole})
	}
	for _, t := range g.TitleRules {
		if t.JobTitle == "" || t.MaxLevel < 0 {
			return leave.WorkflowGroup{}, invalid("workflow group %s: title rule needs a job title and max_level >= 0", g.ID)
		}
		group.TitleRules = append(group.TitleRules, leave.TitleRule{JobTitle: t.JobTitle, MaxLevel: t.MaxLevel})
	}
	return group, nil
}

func parseWarningRule(r WarningRuleJSON) (leave.WarningRule, error) {
	if r.ID == "" || r.TargetType == "" {
		return leave.WarningRule{}, invalid("warning rule needs an id and target_type")
	}
	if !r.Threshold.IsPositive() {
		return leave.WarningRule{}, invalid("warning rule %s: threshold must be positive", r.ID)
	}
	return leave.WarningRule{
		ID:         r.ID,
		Name:       r.Name,
		TargetType: leave.Category(r.TargetType),
		Threshold:  r.Threshold,
		Message:    r.Message,
		Color:      r.Color,
	}, nil
}

func parseUser(u UserJSON) (leave.User, error) {
	if u.ID == "" || u.Name == "" {
		return leave.User{}, invalid("user needs an id and name")
	}
	user := leave.User{
		ID:              generic.UserID(u.ID),
		EmployeeID:      u.EmployeeID,
		Name:            u.Name,
		Department:      u.Department,
		JobTitle:        u.JobTitle,
		Gender:          leave.Gender(u.Gender),
		WorkflowGroupID: u.WorkflowGroupID,
		Quota:           leave.Quota{Annual: make(map[int]decimal.Decimal, len(u.AnnualQuota))},
	}
	switch user.Gender {
	case "", leave.GenderMale, leave.GenderFemale:
	default:
		return leave.User{}, invalid("user %s: unknown gender %q", u.ID, u.Gender)
	}
	for year, days := range u.AnnualQuota {
		y, err := strconv.Atoi(year)
		if err != nil {
			return leave.User{}, invalid("user %s: annual quota year %q", u.ID, year)
		}
		if days.IsNegative() {
			return leave.User{}, invalid("user %s: annual quota for %d is negative", u.ID, y)
		}
		user.Quota.Annual[y] = days
	}
	return user, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{generic.ErrValidation}, args...)...)
}

// =============================================================================
// APPLY
// =============================================================================

// Writer is what Apply needs from a store.
type Writer interface {
	SaveCategory(ctx context.Context, c leave.CategoryDef) error
	SaveWorkflowGroup(ctx context.Context, g leave.WorkflowGroup) error
	SaveWarningRule(ctx context.Context, r leave.WarningRule) error
	SaveUser(ctx context.Context, u leave.User) error
}

// Apply upserts every item of cfg into w.
func Apply(ctx context.Context, w Writer, cfg Config) error {
	for _, c := range cfg.Categories {
		if err := w.SaveCategory(ctx, c); err != nil {
			return fmt.Errorf("save category %s: %w", c.Code, err)
		}
	}
	for _, g := range cfg.WorkflowGroups {
		if err := w.SaveWorkflowGroup(ctx, g); err != nil {
			return fmt.Errorf("save workflow group %s: %w", g.ID, err)
		}
	}
	for _, r := range cfg.WarningRules {
		if err := w.SaveWarningRule(ctx, r); err != nil {
			return fmt.Errorf("save warning rule %s: %w", r.ID, err)
		}
	}
	for _, u := range cfg.Users {
		if err := w.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("save user %s: %w", u.ID, err)
		}
	}
	return nil
}
