// Package bot routes inbound events: the admin's chat drives the control
// plane, everyone else goes through the intake flow.
package bot

import (
	"context"

	"contestbot/internal/intake"
)

type Router struct {
	adminID int64
	admin   intake.EventHandler
	intake  intake.EventHandler
}

// NewRouter sends events from adminID to adminHandler. adminID 0 disables
// chat administration.
func NewRouter(adminID int64, adminHandler, intakeHandler intake.EventHandler) *Router {
	return &Router{adminID: adminID, admin: adminHandler, intake: intakeHandler}
}

func (r *Router) Handle(ctx context.Context, ev intake.Event) (intake.State, error) {
	if r.adminID != 0 && ev.ParticipantID == r.adminID {
		return r.admin.Handle(ctx, ev)
	}
	return r.intake.Handle(ctx, ev)
}
