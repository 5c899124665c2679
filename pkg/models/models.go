package models

// AllModels returns every model for GORM AutoMigrate, ordered so that
// referenced tables migrate before their dependents.
func AllModels() []any {
	return []any{
		&User{},
		&OrganizationTag{},
		&FileUpload{},
		&ChunkInfo{},
		&DocumentVector{},
	}
}
