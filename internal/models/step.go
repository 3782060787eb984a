package models

import "gorm.io/datatypes"

type StepCategory string

const (
	CategoryCritical StepCategory = "critical"
	CategoryMajor    StepCategory = "major"
	CategoryMinor    StepCategory = "minor"
	CategoryCosmetic StepCategory = "cosmetic"
)

const DefaultStdTimeSeconds = 30

func (c StepCategory) Valid() bool {
	switch c {
	case CategoryCritical, CategoryMajor, CategoryMinor, CategoryCosmetic:
		return true
	}
	return false
}

// Step is one checkable item of a template. Code is unique within the template.
type Step struct {
	ID                 uint              `gorm:"primaryKey" json:"id"`
	TemplateID         uint              `gorm:"not null;uniqueIndex:idx_step_template_code,priority:1" json:"template_id"`
	Position           int               `gorm:"not null;default:0" json:"position"`
	Code               string            `gorm:"size:20;not null;uniqueIndex:idx_step_template_code,priority:2" json:"code"`
	Description        string            `gorm:"type:text;not null" json:"description"`
	Requirement        string            `gorm:"type:text" json:"requirement"`
	Category           StepCategory      `gorm:"type:varchar(20);not null;default:major" json:"category"`
	AcceptanceCriteria string            `gorm:"type:text" json:"acceptance_criteria,omitempty"`
	RequiresPhoto      bool              `gorm:"not null;default:false" json:"requires_photo"`
	StdTimeSeconds     int               `gorm:"not null" json:"std_time_seconds"`
	Metadata           datatypes.JSONMap `json:"metadata"`
}

// CloneFor copies the step content for another template. The copy has no ID.
func (s Step) CloneFor(templateID uint) Step {
	return Step{
		TemplateID:         templateID,
		Position:           s.Position,
		Code:               s.Code,
		Description:        s.Description,
		Requirement:        s.Requirement,
		Category:           s.Category,
		AcceptanceCriteria: s.AcceptanceCriteria,
		RequiresPhoto:      s.RequiresPhoto,
		StdTimeSeconds:     s.StdTimeSeconds,
		Metadata:           CopyJSONMap(s.Metadata),
	}
}
