package orders

import (
	"fmt"

	"github.com/forkline-app/forkline-backend/pkg/enums"
	pkgerrors "github.com/forkline-app/forkline-backend/pkg/errors"
)

// successors is the exhaustive transition table. A target not listed for the
// current status is illegal; terminal statuses have no successors.
var successors = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {
		enums.OrderStatusAccepted,
		enums.OrderStatusRejected,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusAccepted: {
		enums.OrderStatusPreparing,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusPreparing: {
		enums.OrderStatusReadyForPickup,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusReadyForPickup: {
		enums.OrderStatusInTransit,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusInTransit: {
		enums.OrderStatusDelivered,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusDelivered: {},
	enums.OrderStatusCancelled: {},
	enums.OrderStatusRejected:  {},
}

// transitionActors lists which roles may drive each target status.
var transitionActors = map[enums.OrderStatus][]enums.ActorRole{
	enums.OrderStatusAccepted:       {enums.ActorRoleVendor, enums.ActorRoleSystem},
	enums.OrderStatusRejected:       {enums.ActorRoleVendor, enums.ActorRoleSystem},
	enums.OrderStatusPreparing:      {enums.ActorRoleVendor, enums.ActorRoleSystem},
	enums.OrderStatusReadyForPickup: {enums.ActorRoleVendor, enums.ActorRoleSystem},
	enums.OrderStatusInTransit:      {enums.ActorRoleVendor, enums.ActorRoleRider, enums.ActorRoleSystem},
	enums.OrderStatusDelivered:      {enums.ActorRoleRider, enums.ActorRoleSystem},
	enums.OrderStatusCancelled:      {enums.ActorRoleUser, enums.ActorRoleVendor, enums.ActorRoleSystem},
}

// CanTransition reports whether target is a legal successor of current.
func CanTransition(current, target enums.OrderStatus) bool {
	for _, next := range successors[current] {
		if next == target {
			return true
		}
	}
	return false
}

// validateTransition checks both the successor table and the acting role.
func validateTransition(current, target enums.OrderStatus, actor enums.ActorRole) error {
	if !target.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if !CanTransition(current, target) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", current, target))
	}
	for _, allowed := range transitionActors[target] {
		if allowed == actor {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeForbidden,
		fmt.Sprintf("role %s may not move an order to %s", actor, target))
}
