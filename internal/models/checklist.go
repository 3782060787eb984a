package models

import (
	"time"

	"gorm.io/datatypes"
)

type QCDocStatus string

const (
	QCDocInProgress QCDocStatus = "in_progress"
	QCDocCompleted  QCDocStatus = "completed"
	QCDocRejected   QCDocStatus = "rejected"
)

func (s QCDocStatus) Valid() bool {
	switch s {
	case QCDocInProgress, QCDocCompleted, QCDocRejected:
		return true
	}
	return false
}

// Terminal reports whether no transition can leave s.
func (s QCDocStatus) Terminal() bool {
	return s == QCDocCompleted || s == QCDocRejected
}

// QCDoc is one execution of a template revision against a serialized unit.
type QCDoc struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	ClientID      *string           `gorm:"size:36;uniqueIndex" json:"client_id,omitempty"`
	TemplateID    uint              `gorm:"not null;index" json:"template_id"`
	Template      *Template         `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
	SerialNo      string            `gorm:"size:50;not null;index" json:"serial_no"`
	Status        QCDocStatus       `gorm:"type:varchar(20);not null;default:in_progress;index" json:"status"`
	CreatedByID   uint              `gorm:"not null;index" json:"created_by_id"`
	SignedOffByID *uint             `gorm:"index" json:"signed_off_by_id"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `gorm:"index" json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at"`
	ExecutionTime *int              `json:"execution_time"`
	Metadata      datatypes.JSONMap `json:"metadata"`

	Results []QCResult `gorm:"foreignKey:QCDocID;constraint:OnDelete:CASCADE" json:"results"`
}

// QCResult is the outcome of one step within one QCDoc. (QCDocID, StepID) is unique.
type QCResult struct {
	ID            uint              `gorm:"primaryKey" json:"id"`
	QCDocID       uint              `gorm:"not null;uniqueIndex:idx_result_doc_step,priority:1" json:"qc_doc_id"`
	StepID        uint              `gorm:"not null;uniqueIndex:idx_result_doc_step,priority:2" json:"step_id"`
	OKFlag        bool              `gorm:"not null" json:"ok_flag"`
	Comment       *string           `gorm:"type:text" json:"comment"`
	PhotoPath     *string           `gorm:"size:512" json:"photo_path"`
	ExecutionTime *int              `json:"execution_time"`
	Metadata      datatypes.JSONMap `json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}
