package models

// Role sets allowed for each operation group. There is no ordering between
// roles; every check is a membership test.
var (
	TemplateAuthors  = []UserRole{RoleAdmin, RoleQCEngineer}
	CatalogEditors   = []UserRole{RoleAdmin, RoleQCEngineer}
	ChecklistRunners = []UserRole{RoleAdmin, RoleQCEngineer, RoleProductionLeader, RoleQCOperator}
	ChecklistJudges  = []UserRole{RoleAdmin, RoleQCEngineer, RoleProductionLeader}
	UserAdmins       = []UserRole{RoleAdmin}
	AuditReaders     = []UserRole{RoleAdmin}
)

// SelfRegisterable reports whether a role may be picked at registration.
func SelfRegisterable(r UserRole) bool {
	return r.Valid() && r != RoleAdmin
}
