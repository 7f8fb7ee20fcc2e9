package entities

import (
	"database/sql"
	"fmt"

	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// Repositories bundles one tenant.Repository per entity type
type Repositories struct {
	Projects  *tenant.Repository[*Project]
	Tasks     *tenant.Repository[*Task]
	Documents *tenant.Repository[*Document]
	Contracts *tenant.Repository[*Contract]
	Templates *tenant.Repository[*Template]
}

// NewRepositories creates every repository with the same options
func NewRepositories(db *sql.DB, opts ...tenant.RepositoryOption) (*Repositories, error) {
	var (
		repos Repositories
		err   error
	)
	if repos.Projects, err = tenant.NewRepository(db, ProjectMapper, opts...); err != nil {
		return nil, fmt.Errorf("projects: %w", err)
	}
	if repos.Tasks, err = tenant.NewRepository(db, TaskMapper, opts...); err != nil {
		return nil, fmt.Errorf("tasks: %w", err)
	}
	if repos.Documents, err = tenant.NewRepository(db, DocumentMapper, opts...); err != nil {
		return nil, fmt.Errorf("documents: %w", err)
	}
	if repos.Contracts, err = tenant.NewRepository(db, ContractMapper, opts...); err != nil {
		return nil, fmt.Errorf("contracts: %w", err)
	}
	if repos.Templates, err = tenant.NewRepository(db, TemplateMapper, opts...); err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	return &repos, nil
}
