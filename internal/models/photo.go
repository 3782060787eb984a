package models

import "time"

type Photo struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Filename         string    `gorm:"size:255;not null;uniqueIndex" json:"filename"`
	OriginalFilename string    `gorm:"size:255" json:"original_filename"`
	Path             string    `gorm:"size:512;not null" json:"path"`
	Size             int64     `json:"size"`
	ContentType      string    `gorm:"size:128" json:"content_type"`
	UploadedByID     uint      `gorm:"not null;index" json:"uploaded_by_id"`
	Note             *string   `gorm:"type:text" json:"note"`
	QCDocID          *uint     `gorm:"index" json:"qc_doc_id"`
	QCResultID       *uint     `gorm:"index" json:"qc_result_id"`
	CreatedAt        time.Time `json:"created_at"`
}
