// Package policy decides whether a subject may perform an action.
//
// Every check goes through Engine.CanPerform (or Authorize, which also
// returns the internal reason). Evaluation is ordered:
//
//  1. no subject: deny
//  2. tenant check: the entity must belong to the subject's tenant, unless
//     the request runs under a system scope. This runs before any
//     permission or ownership logic, so a subject holding every permission
//     in tenant A still cannot touch tenant B.
//  3. the Rule registered for (entityType, action), or by default the
//     permission "<entityType>.<action>" (viewAny checks "<entityType>.view")
//
// A panicking rule denies. Callers must answer every denial the same way,
// see ErrForbidden.
//
//	engine := policy.NewEngine(resolver, policy.WithLogger(logger))
//	engine.Registry().MustRegister("contract", "approve",
//		policy.NotOwnerAndPermission("contract.approve"))
//
//	if !engine.CanPerform(ctx, subject, policy.ActionUpdate, "project", project) {
//		return policy.ErrForbidden
//	}
package policy
