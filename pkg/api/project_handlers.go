package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/entities"
	"github.com/platinummonkey/tenantguard/pkg/httputil"
	"github.com/platinummonkey/tenantguard/pkg/policy"
	"github.com/platinummonkey/tenantguard/pkg/tenant"
)

// ProjectRequest is the body of project create and update. Absent fields are
// left unchanged on update.
type ProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

func (req ProjectRequest) apply(p *entities.Project) {
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
}

// ProjectHandlers serves /v1/projects
type ProjectHandlers struct {
	repo     *tenant.Repository[*entities.Project]
	engine   *policy.Engine
	recorder *audit.Recorder
}

// NewProjectHandlers creates project handlers
func NewProjectHandlers(repo *tenant.Repository[*entities.Project], engine *policy.Engine, recorder *audit.Recorder) *ProjectHandlers {
	return &ProjectHandlers{repo: repo, engine: engine, recorder: recorder}
}

// RegisterRoutes registers project routes
func (h *ProjectHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/projects", h.list).Methods(http.MethodGet)
	router.HandleFunc("/projects", h.create).Methods(http.MethodPost)
	router.HandleFunc("/projects/{id}", h.get).Methods(http.MethodGet)
	router.HandleFunc("/projects/{id}", h.update).Methods(http.MethodPut)
	router.HandleFunc("/projects/{id}", h.delete).Methods(http.MethodDelete)
}

// list handles GET /v1/projects
func (h *ProjectHandlers) list(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorizeType(w, r, h.engine, policy.ActionViewAny, entities.TypeProject); !ok {
		return
	}

	opts, err := pageOptions(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Filters = append(opts.Filters, tenant.Filter{Column: "status", Value: status})
	}

	projects, err := h.repo.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := h.repo.Count(r.Context(), opts.Filters...)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if projects == nil {
		projects = []*entities.Project{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"projects": projects,
		"total":    total,
	})
}

// create handles POST /v1/projects
func (h *ProjectHandlers) create(w http.ResponseWriter, r *http.Request) {
	subject, ok := authorizeType(w, r, h.engine, policy.ActionCreate, entities.TypeProject)
	if !ok {
		return
	}

	var req ProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	project := &entities.Project{CreatedBy: subject.ID}
	req.apply(project)
	if err := project.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.repo.Create(r.Context(), project); err != nil {
		writeError(w, r, err)
		return
	}
	if err := recordChange(r, h.recorder, audit.ActionCreated, project, nil, project.Snapshot()); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, project)
}

// get handles GET /v1/projects/{id}
func (h *ProjectHandlers) get(w http.ResponseWriter, r *http.Request) {
	project, _, ok := loadAuthorized(w, r, h.repo, h.engine, policy.ActionView)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, project)
}

// update handles PUT /v1/projects/{id}
func (h *ProjectHandlers) update(w http.ResponseWriter, r *http.Request) {
	project, _, ok := loadAuthorized(w, r, h.repo, h.engine, policy.ActionUpdate)
	if !ok {
		return
	}

	var req ProjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	old := project.Snapshot()
	req.apply(project)
	if err := project.Validate(); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.repo.Update(r.Context(), project); err != nil {
		writeError(w, r, err)
		return
	}
	if err := recordChange(r, h.recorder, audit.ActionUpdated, project, old, project.Snapshot()); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

// delete handles DELETE /v1/projects/{id}
func (h *ProjectHandlers) delete(w http.ResponseWriter, r *http.Request) {
	project, _, ok := loadAuthorized(w, r, h.repo, h.engine, policy.ActionDelete)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), project.ID); err != nil {
		writeError(w, r, err)
		return
	}
	if err := recordChange(r, h.recorder, audit.ActionDeleted, project, project.Snapshot(), nil); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
