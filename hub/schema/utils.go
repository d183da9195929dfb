package schema

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrTeamMemberNotFound = errors.New("team member not found")
	ErrProjectNotFound    = errors.New("project not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDbAccessFailed     = errors.New("db access failed")
)

// DbError records which action failed so that it can be logged, while only
// exposing ErrDbAccessFailed to callers.
type DbError struct {
	action string
	err    error
}

func NewDbError(action string, err error) error {
	return &DbError{action: action, err: err}
}

func (e *DbError) Error() string {
	return fmt.Sprintf("sql error while %v: %v", e.action, e.err)
}

func (e *DbError) Unwrap() error {
	return e.err
}

func (e *DbError) Is(target error) bool {
	return target == ErrDbAccessFailed
}

var canonicalId = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// ParseCanonicalId only accepts the dashed 8-4-4-4-12 hex form. uuid.Parse
// also accepts urn and braced forms which are not valid ids in urls.
func ParseCanonicalId(value string) (uuid.UUID, error) {
	if !canonicalId.MatchString(value) {
		return uuid.Nil, fmt.Errorf("invalid id '%v'", value)
	}
	return uuid.Parse(value)
}

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		return user, NewDbError("getting user", result.Error)
	}

	return user, nil
}

func GetUserByEmail(email string, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		return user, NewDbError("getting user by email", result.Error)
	}

	return user, nil
}

func GetTeam(teamId uuid.UUID, db *gorm.DB) (Team, error) {
	var team Team

	result := db.First(&team, "id = ?", teamId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return team, ErrTeamNotFound
		}
		return team, NewDbError("getting team", result.Error)
	}

	return team, nil
}

func GetTeamMembership(teamId, userId uuid.UUID, db *gorm.DB) (TeamMember, error) {
	var member TeamMember

	result := db.First(&member, "team_id = ? AND user_id = ?", teamId, userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return member, ErrTeamMemberNotFound
		}
		return member, NewDbError("getting team membership", result.Error)
	}

	return member, nil
}

func GetUserTeamIds(userId uuid.UUID, db *gorm.DB) ([]uuid.UUID, error) {
	var members []TeamMember
	result := db.Find(&members, "user_id = ?", userId)
	if result.Error != nil {
		return nil, NewDbError("listing user teams", result.Error)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, member := range members {
		ids = append(ids, member.TeamId)
	}
	return ids, nil
}

func GetProject(projectId uuid.UUID, db *gorm.DB, loadTeam bool) (Project, error) {
	var project Project

	query := db
	if loadTeam {
		query = query.Preload("Team")
	}

	result := query.First(&project, "id = ?", projectId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return project, ErrProjectNotFound
		}
		return project, NewDbError("getting project", result.Error)
	}

	return project, nil
}

func GetTask(projectId, taskId uuid.UUID, db *gorm.DB) (Task, error) {
	var task Task

	result := db.Preload("Assignee").First(&task, "id = ? AND project_id = ?", taskId, projectId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return task, ErrTaskNotFound
		}
		return task, NewDbError("getting task", result.Error)
	}

	return task, nil
}

// IsProjectTeamMember reports whether the user belongs to the team the project
// is bound to. Projects without a team have no members.
func IsProjectTeamMember(project Project, userId uuid.UUID, db *gorm.DB) (bool, error) {
	if project.TeamId == nil {
		return false, nil
	}
	_, err := GetTeamMembership(*project.TeamId, userId, db)
	if err != nil {
		if errors.Is(err, ErrTeamMemberNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
