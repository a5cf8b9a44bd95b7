// Package dashboard decides which screen a session may see and assembles the
// per-role summaries behind each dashboard.
package dashboard

import "github.com/emperorhan/recycle-trace/internal/domain/model"

type Screen string

const (
	ScreenLogin         Screen = "login"
	ScreenRequestRole   Screen = "request_role"
	ScreenUnderRevision Screen = "under_revision"
	ScreenRejected      Screen = "rejected"
	ScreenCanceled      Screen = "canceled"
	ScreenNoDashboard   Screen = "no_dashboard"
	ScreenDashboard     Screen = "dashboard"
)

// Route is the outcome of gating an account.
type Route struct {
	Screen  Screen     `json:"screen"`
	Role    model.Role `json:"role,omitempty"`
	Message string     `json:"message"`
}

// Granted reports whether the route opens a role dashboard.
func (r Route) Granted() bool {
	return r.Screen == ScreenDashboard
}

// Resolve gates acct. A nil account means no session. Only an approved
// account with a recognized role reaches a dashboard; anything else lands on
// a screen without ledger data.
func Resolve(acct *model.Account) Route {
	if acct == nil {
		return Route{Screen: ScreenLogin, Message: "Connect a wallet to continue."}
	}
	if !acct.Role.Assigned() {
		if acct.Role != "" {
			return Route{Screen: ScreenNoDashboard, Message: "No dashboard is assigned to this account."}
		}
		return Route{Screen: ScreenRequestRole, Message: "Request a role to get access."}
	}

	switch acct.Status {
	case model.AccountStatusApproved:
		return Route{Screen: ScreenDashboard, Role: acct.Role, Message: acct.Role.Label() + " dashboard"}
	case model.AccountStatusPending:
		return Route{Screen: ScreenUnderRevision, Role: acct.Role, Message: "Your request is under review."}
	case model.AccountStatusRejected:
		return Route{Screen: ScreenRejected, Role: acct.Role, Message: "Your request was rejected. Contact an administrator."}
	case model.AccountStatusCanceled:
		return Route{Screen: ScreenCanceled, Role: acct.Role, Message: "Your access was canceled."}
	default:
		return Route{Screen: ScreenRequestRole, Role: acct.Role, Message: "Request a role to get access."}
	}
}
