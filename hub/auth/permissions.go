package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"campus_hub/hub/schema"
	"campus_hub/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidProjectId = errors.New("Invalid project ID format")

// StaffOnly restricts the route to admins and faculty.
func StaffOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if !user.IsStaff() {
				http.Error(w, fmt.Sprintf("user %v must be admin or faculty to access endpoint", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

func IsTeamLeader(team schema.Team, userId uuid.UUID, db *gorm.DB) (bool, error) {
	if team.LeaderId != nil && *team.LeaderId == userId {
		return true, nil
	}

	member, err := schema.GetTeamMembership(team.Id, userId, db)
	if err != nil {
		if errors.Is(err, schema.ErrTeamMemberNotFound) {
			return false, nil
		}
		return false, err
	}

	return member.Role == schema.LeaderRole, nil
}

func IsTeamMember(teamId, userId uuid.UUID, db *gorm.DB) (bool, error) {
	_, err := schema.GetTeamMembership(teamId, userId, db)
	if err != nil {
		if errors.Is(err, schema.ErrTeamMemberNotFound) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

func teamFromRequest(w http.ResponseWriter, r *http.Request, db *gorm.DB) (schema.Team, bool) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return schema.Team{}, false
	}

	team, err := schema.GetTeam(teamId, db.WithContext(r.Context()))
	if err != nil {
		if errors.Is(err, schema.ErrTeamNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return schema.Team{}, false
		}
		http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
		return schema.Team{}, false
	}

	return team, true
}

// StaffOrTeamLeaderOnly allows staff, the team's leader and members with the
// leader role.
func StaffOrTeamLeaderOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			team, ok := teamFromRequest(w, r, db)
			if !ok {
				return
			}

			if user.IsStaff() {
				next.ServeHTTP(w, r)
				return
			}

			isLeader, err := IsTeamLeader(team, user.Id, db.WithContext(r.Context()))
			if err != nil {
				http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
				return
			}

			if !isLeader {
				http.Error(w, "user must be admin, faculty, or team leader to access endpoint", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

// CanAccessProject reports whether the user may read or modify the project.
// Projects that are not bound to a team are open to every user, bound ones to
// the team's members and leader.
func CanAccessProject(project schema.Project, user schema.User, db *gorm.DB) (bool, error) {
	if user.IsStaff() || project.TeamId == nil {
		return true, nil
	}

	isMember, err := schema.IsProjectTeamMember(project, user.Id, db)
	if err != nil || isMember {
		return isMember, err
	}

	team, err := schema.GetTeam(*project.TeamId, db)
	if err != nil {
		if errors.Is(err, schema.ErrTeamNotFound) {
			return false, nil
		}
		return false, err
	}
	return IsTeamLeader(team, user.Id, db)
}

// ProjectAccessOnly resolves the {project_id} url parameter and stores the
// project in the request context for the handlers below it.
func ProjectAccessOnly(db *gorm.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			projectId, err := schema.ParseCanonicalId(chi.URLParam(r, "project_id"))
			if err != nil {
				http.Error(w, ErrInvalidProjectId.Error(), http.StatusBadRequest)
				return
			}

			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			txn := db.WithContext(r.Context())

			project, err := schema.GetProject(projectId, txn, false)
			if err != nil {
				if errors.Is(err, schema.ErrProjectNotFound) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
				return
			}

			allowed, err := CanAccessProject(project, user, txn)
			if err != nil {
				http.Error(w, schema.ErrDbAccessFailed.Error(), http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, fmt.Sprintf("user %v is not a member of the team for project %v", user.Id, project.Id), http.StatusForbidden)
				return
			}

			reqCtx := context.WithValue(r.Context(), ProjectRequestContextKey, project)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}
		return http.HandlerFunc(hfn)
	}
}

func ProjectFromContext(r *http.Request) (schema.Project, error) {
	projectUntyped := r.Context().Value(ProjectRequestContextKey)
	if projectUntyped == nil {
		return schema.Project{}, fmt.Errorf("project field not found in request context")
	}
	project, ok := projectUntyped.(schema.Project)
	if !ok {
		return schema.Project{}, fmt.Errorf("invalid value for project field")
	}
	return project, nil
}
