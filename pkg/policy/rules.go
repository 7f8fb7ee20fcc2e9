package policy

import (
	"context"
	"fmt"
)

// RequirePermission allows subjects holding code
func RequirePermission(code string) Rule {
	return func(ctx context.Context, c Check) Decision {
		if c.HasPermission(ctx, code) {
			return Allow("granted " + code)
		}
		return Deny("missing permission " + code)
	}
}

// OwnerOrPermission allows the entity's owner, or anyone holding code
func OwnerOrPermission(code string) Rule {
	return func(ctx context.Context, c Check) Decision {
		if c.IsOwner() {
			return Allow("owner")
		}
		return RequirePermission(code)(ctx, c)
	}
}

// OwnerAndPermission allows the owner only when they also hold code
func OwnerAndPermission(code string) Rule {
	return func(ctx context.Context, c Check) Decision {
		if !c.IsOwner() {
			return Deny("not the owner")
		}
		return RequirePermission(code)(ctx, c)
	}
}

// NotOwnerAndPermission allows subjects holding code who are not the owner.
// It is used for approvals, where creators may not approve their own work.
func NotOwnerAndPermission(code string) Rule {
	return func(ctx context.Context, c Check) Decision {
		if _, ok := c.Entity.(Owned); !ok {
			return Deny("entity has no owner")
		}
		if c.IsOwner() {
			return Deny("owner may not " + c.Action)
		}
		return RequirePermission(code)(ctx, c)
	}
}

// AnyOf allows when at least one rule allows
func AnyOf(rules ...Rule) Rule {
	return func(ctx context.Context, c Check) Decision {
		last := Deny("no rules")
		for _, rule := range rules {
			d := rule(ctx, c)
			if d.Allowed {
				return d
			}
			last = d
		}
		return last
	}
}

// AllOf allows when every rule allows. An empty AllOf denies.
func AllOf(rules ...Rule) Rule {
	return func(ctx context.Context, c Check) Decision {
		if len(rules) == 0 {
			return Deny("no rules")
		}
		for i, rule := range rules {
			if d := rule(ctx, c); !d.Allowed {
				return Deny(fmt.Sprintf("rule %d: %s", i, d.Reason))
			}
		}
		return Allow("all rules allowed")
	}
}
