package models

// Column widths of the string columns that take user input.
const (
	MaxTemplateCodeLen = 20
	MaxRevisionLen     = 10
	MaxNameLen         = 100
	MaxStepCodeLen     = 20
	MaxSerialNoLen     = 50
	MaxUsernameLen     = 50
	MaxEmailLen        = 100
)
