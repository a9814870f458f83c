// Package access decides what a signed-in caller may do.
//
// Role is a closed set of variants: Customer, Worker and Admin. Authorize is a
// pure function of the caller snapshot, the action and the owner of the target
// booking; it never touches storage.
package access

import (
	"errors"
	"fmt"
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
)

// Permissions are the toggles an admin grants to a worker.
type Permissions struct {
	ViewCustomers  bool `json:"viewCustomers"`
	ManageBookings bool `json:"manageBookings"`
	ViewPricing    bool `json:"viewPricing"`
	ManagePricing  bool `json:"managePricing"`
}

// Role is implemented by Customer, Worker and Admin only.
type Role interface {
	Name() string
	isRole()
}

type Customer struct{}

type Worker struct {
	Permissions Permissions
}

type Admin struct{}

func (Customer) Name() string { return "customer" }
func (Worker) Name() string   { return "worker" }
func (Admin) Name() string    { return "admin" }

func (Customer) isRole() {}
func (Worker) isRole()   {}
func (Admin) isRole()    {}

// RoleFromName rebuilds a Role from its stored name and permission flags.
func RoleFromName(name string, perms Permissions) (Role, error) {
	switch name {
	case "customer":
		return Customer{}, nil
	case "worker":
		return Worker{Permissions: perms}, nil
	case "admin":
		return Admin{}, nil
	}
	return nil, fmt.Errorf("unknown role %q", name)
}

// PermissionsOf returns the effective permission set of a role.
func PermissionsOf(r Role) Permissions {
	switch v := r.(type) {
	case Admin:
		return Permissions{ViewCustomers: true, ManageBookings: true, ViewPricing: true, ManagePricing: true}
	case Worker:
		return v.Permissions
	}
	return Permissions{}
}

// Caller is the identity snapshot taken when a session starts.
type Caller struct {
	UserID string
	Email  string
	Role   Role
}

// Anonymous is a caller with no session.
var Anonymous = Caller{}

func (c Caller) IsAnonymous() bool { return c.UserID == "" || c.Role == nil }

// IsStaff is true for workers and admins.
func (c Caller) IsStaff() bool {
	switch c.Role.(type) {
	case Worker, Admin:
		return true
	}
	return false
}

// Actor names the caller in audit records.
func (c Caller) Actor() string {
	if c.IsAnonymous() {
		return "anonymous"
	}
	if c.Email != "" {
		return c.Email
	}
	return c.UserID
}

type Action string

const (
	ActionQuote           Action = "quote"
	ActionCreateBooking   Action = "booking.create"
	ActionViewBooking     Action = "booking.view"
	ActionListAllBookings Action = "booking.list_all"
	ActionCancelBooking   Action = "booking.cancel"
	ActionProcessBooking  Action = "booking.process" // confirm, outsource, decline, complete
	ActionEditBooking     Action = "booking.edit"
	ActionDeleteBooking   Action = "booking.delete"
	ActionExportBookings  Action = "booking.export"
	ActionImportBookings  Action = "booking.import"
	ActionViewPricing     Action = "pricing.view"
	ActionManagePricing   Action = "pricing.manage"
	ActionViewCustomers   Action = "customers.view"
	ActionManageUsers     Action = "users.manage"
	ActionViewAudit       Action = "audit.view"
)

type Decision int

const (
	Allow Decision = iota
	DenyForbidden
	DenyNotFound
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyForbidden:
		return "forbidden"
	case DenyNotFound:
		return "not_found"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Err converts a denial into ErrForbidden or ErrNotFound, and Allow into nil.
func (d Decision) Err() error {
	switch d {
	case Allow:
		return nil
	case DenyNotFound:
		return ErrNotFound
	}
	return ErrForbidden
}

// ownedActions are the booking actions a customer may take on their own bookings.
var ownedActions = map[Action]bool{
	ActionViewBooking:   true,
	ActionCancelBooking: true,
}

// Authorize decides whether caller may perform action. ownerID is the owning
// user of the target booking, or "" when the action has no single target.
func Authorize(caller Caller, action Action, ownerID string) Decision {
	if action == ActionQuote {
		return Allow
	}
	if caller.IsAnonymous() {
		return DenyForbidden
	}

	switch role := caller.Role.(type) {
	case Admin:
		return Allow

	case Worker:
		p := role.Permissions
		switch action {
		case ActionCreateBooking:
			return Allow
		case ActionViewBooking, ActionListAllBookings, ActionCancelBooking,
			ActionProcessBooking, ActionExportBookings:
			return allowIf(p.ManageBookings)
		case ActionViewPricing:
			return allowIf(p.ViewPricing || p.ManagePricing)
		case ActionManagePricing:
			return allowIf(p.ManagePricing)
		case ActionViewCustomers:
			return allowIf(p.ViewCustomers)
		}
		return DenyForbidden

	case Customer:
		switch {
		case action == ActionCreateBooking, action == ActionViewPricing:
			return Allow
		case ownerID != "" && ownerID != caller.UserID:
			// Other customers' bookings are hidden, not refused.
			return DenyNotFound
		case ownedActions[action]:
			if ownerID == caller.UserID {
				return Allow
			}
			return DenyNotFound
		}
		return DenyForbidden
	}
	return DenyForbidden
}

func allowIf(ok bool) Decision {
	if ok {
		return Allow
	}
	return DenyForbidden
}
