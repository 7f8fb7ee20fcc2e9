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

// ContractRequest is the body of contract create and update. Status only
// changes through the workflow routes.
type ContractRequest struct {
	ProjectID    *int64  `json:"project_id"`
	Title        *string `json:"title"`
	Counterparty *string `json:"counterparty"`
	ValueCents   *int64  `json:"value_cents"`
}

func (req ContractRequest) apply(c *entities.Contract) {
	if req.ProjectID != nil {
		c.ProjectID = req.ProjectID
	}
	if req.Title != nil {
		c.Title = *req.Title
	}
	if req.Counterparty != nil {
		c.Counterparty = *req.Counterparty
	}
	if req.ValueCents != nil {
		c.ValueCents = *req.ValueCents
	}
}

// ContractHandlers serves /v1/contracts and the approval workflow
type ContractHandlers struct {
	repo     *tenant.Repository[*entities.Contract]
	projects *tenant.Repository[*entities.Project]
	engine   *policy.Engine
	recorder *audit.Recorder
}

// NewContractHandlers creates contract handlers. projects resolves the
// optional project reference, which must be visible to the caller.
func NewContractHandlers(repo *tenant.Repository[*entities.Contract], projects *tenant.Repository[*entities.Project], engine *policy.Engine, recorder *audit.Recorder) *ContractHandlers {
	return &ContractHandlers{repo: repo, projects: projects, engine: engine, recorder: recorder}
}

// RegisterRoutes registers contract routes
func (h *ContractHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/contracts", h.list).Methods(http.MethodGet)
	router.HandleFunc("/contracts", h.create).Methods(http.MethodPost)
	router.HandleFunc("/contracts/{id}", h.get).Methods(http.MethodGet)
	router.HandleFunc("/contracts/{id}", h.update).Methods(http.MethodPut)
	router.HandleFunc("/contracts/{id}/submit", h.transition(entities.ActionSubmit, entities.ContractSubmitted)).Methods(http.MethodPost)
	router.HandleFunc("/contracts/{id}/approve", h.transition(entities.ActionApprove, entities.ContractApproved)).Methods(http.MethodPost)
	router.HandleFunc("/contracts/{id}/reject", h.transition(entities.ActionReject, entities.ContractRejected)).Methods(http.MethodPost)
}

// list handles GET /v1/contracts
func (h *ContractHandlers) list(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorizeType(w, r, h.engine, policy.ActionViewAny, entities.TypeContract); !ok {
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

	contracts, err := h.repo.List(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if contracts == nil {
		contracts = []*entities.Contract{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"contracts": contracts,
		"count":     len(contracts),
	})
}

// create handles POST /v1/contracts
func (h *ContractHandlers) create(w http.ResponseWriter, r *http.Request) {
	subject, ok := authorizeType(w, r, h.engine, policy.ActionCreate, entities.TypeContract)
	if !ok {
		return
	}

	var req ContractRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	contract := &entities.Contract{CreatedBy: subject.ID, Status: entities.ContractDraft}
	req.apply(contract)
	if !h.validate(w, r, contract) {
		return
	}

	if err := h.repo.Create(r.Context(), contract); err != nil {
		writeError(w, r, err)
		return
	}
	if err := recordChange(r, h.recorder, audit.ActionCreated, contract, nil, contract.Snapshot()); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, contract)
}

// get handles GET /v1/contracts/{id}
func (h *ContractHandlers) get(w http.ResponseWriter, r *http.Request) {
	contract, _, ok := loadAuthorized(w, r, h.repo, h.engine, policy.ActionView)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, contract)
}

// update handles PUT /v1/contracts/{id}
func (h *ContractHandlers) update(w http.ResponseWriter, r *http.Request) {
	contract, _, ok := loadAuthorized(w, r, h.repo, h.engine, policy.ActionUpdate)
	if !ok {
		return
	}

	var req ContractRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	old := contract.Snapshot()
	req.apply(contract)
	if !h.validate(w, r, contract) {
		return
	}

	if err := h.repo.Update(r.Context(), contract); err != nil {
		writeError(w, r, err)
		return
	}
	if err := recordChange(r, h.recorder, audit.ActionUpdated, contract, old, contract.Snapshot()); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, contract)
}

// transition handles the workflow routes. action is checked against the
// contract before its status moves to status.
func (h *ContractHandlers) transition(action, status string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		contract, subject, ok := loadAuthorized(w, r, h.repo, h.engine, action)
		if !ok {
			return
		}

		old := contract.Snapshot()
		if err := contract.Transition(status, subject.ID); err != nil {
			writeError(w, r, err)
			return
		}

		if err := h.repo.Update(r.Context(), contract); err != nil {
			writeError(w, r, err)
			return
		}
		if err := recordChange(r, h.recorder, audit.ActionUpdated, contract, old, contract.Snapshot()); err != nil {
			writeError(w, r, err)
			return
		}
		httputil.WriteSuccess(w, contract)
	}
}

// validate checks the contract and that its project is visible in the caller's tenant
func (h *ContractHandlers) validate(w http.ResponseWriter, r *http.Request, contract *entities.Contract) bool {
	if err := contract.Validate(); err != nil {
		writeError(w, r, err)
		return false
	}
	if contract.ProjectID == nil {
		return true
	}
	if _, err := h.projects.Get(r.Context(), *contract.ProjectID); err != nil {
		if tenant.IsDenied(err) {
			httputil.WriteBadRequest(w, "unknown project")
			return false
		}
		writeError(w, r, err)
		return false
	}
	return true
}
