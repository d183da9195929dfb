package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrInvalidEnum = errors.New("invalid enum value")

const (
	AdminRole   = "admin"
	FacultyRole = "faculty"
	StudentRole = "student"
)

var UserRoles = []string{AdminRole, FacultyRole, StudentRole}

const (
	MemberRole = "member"
	LeaderRole = "leader"
	GuestRole  = "guest"
)

var TeamRoles = []string{MemberRole, LeaderRole, GuestRole}

// Projects and tasks share the same set of statuses.
const (
	Planned    = "planned"
	InProgress = "in_progress"
	Completed  = "completed"
	OnHold     = "on_hold"
)

var WorkStatuses = []string{Planned, InProgress, Completed, OnHold}

const (
	LowPriority    = "low"
	MediumPriority = "medium"
	HighPriority   = "high"
	UrgentPriority = "urgent"
)

var TaskPriorities = []string{LowPriority, MediumPriority, HighPriority, UrgentPriority}

const (
	Draft     = "draft"
	Submitted = "submitted"
	Verified  = "verified"
	Rejected  = "rejected"
)

var DocumentStatuses = []string{Draft, Submitted, Verified, Rejected}

func checkEnum(kind, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%w: invalid %v '%v', must be one of %v", ErrInvalidEnum, kind, value, strings.Join(allowed, ", "))
}

func CheckValidUserRole(role string) error {
	return checkEnum("role", role, UserRoles)
}

func CheckValidTeamRole(role string) error {
	return checkEnum("team role", role, TeamRoles)
}

func CheckValidStatus(status string) error {
	return checkEnum("status", status, WorkStatuses)
}

func CheckValidPriority(priority string) error {
	return checkEnum("priority", priority, TaskPriorities)
}

func CheckValidDocumentStatus(status string) error {
	return checkEnum("document status", status, DocumentStatuses)
}
