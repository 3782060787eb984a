package models

import (
	"time"

	"gorm.io/datatypes"
)

type TemplateStatus string
type TemplateTier string

const (
	TemplateDraft     TemplateStatus = "draft"
	TemplatePublished TemplateStatus = "published"
	TemplateArchived  TemplateStatus = "archived"

	TierNone TemplateTier = ""
	Tier1    TemplateTier = "tier1"
	Tier2    TemplateTier = "tier2"
	Tier3    TemplateTier = "tier3"
)

func (s TemplateStatus) Valid() bool {
	switch s {
	case TemplateDraft, TemplatePublished, TemplateArchived:
		return true
	}
	return false
}

func (t TemplateTier) Valid() bool {
	switch t {
	case TierNone, Tier1, Tier2, Tier3:
		return true
	}
	return false
}

// Template is one revision of an inspection procedure. (Code, Revision) is unique.
type Template struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	Code         string            `gorm:"size:20;not null;uniqueIndex:idx_template_code_revision,priority:1" json:"code"`
	Revision     string            `gorm:"size:10;not null;uniqueIndex:idx_template_code_revision,priority:2" json:"revision"`
	Name         string            `gorm:"size:100;not null;index" json:"name"`
	Status       TemplateStatus    `gorm:"type:varchar(20);not null;default:draft;index" json:"status"`
	Tier         TemplateTier      `gorm:"type:varchar(10)" json:"tier,omitempty"`
	ModelID      *uint             `gorm:"index" json:"model_id"`
	Model        *ProductModel     `gorm:"foreignKey:ModelID" json:"model,omitempty"`
	StageID      *uint             `gorm:"index" json:"stage_id"`
	Stage        *Stage            `gorm:"foreignKey:StageID" json:"stage,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	CreatedByID  uint              `gorm:"index" json:"created_by_id"`
	ApprovedByID *uint             `json:"approved_by_id"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `gorm:"index" json:"updated_at"`
	PublishedAt  *time.Time        `json:"published_at"`

	Steps []Step `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"steps,omitempty"`
}

// TemplateStats summarizes executions of one template revision.
type TemplateStats struct {
	TemplateID           uint     `json:"template_id"`
	StepCount            int64    `json:"step_count"`
	ChecklistCount       int64    `json:"checklist_count"`
	CompletedCount       int64    `json:"completed_count"`
	FPYPercentage        *float64 `json:"fpy_percentage"`
	AverageExecutionTime *int     `json:"average_execution_time"`
}
