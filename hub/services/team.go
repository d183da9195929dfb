package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"campus_hub/hub/auth"
	"campus_hub/hub/schema"
	"campus_hub/utils"
	"campus_hub/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TeamService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
	logger   *slog.Logger
}

func (s *TeamService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Post("/", s.CreateTeam)
	r.Get("/", s.List)
	r.With(auth.StaffOnly()).Post("/import", s.ImportRoster)

	r.Route("/{team_id}", func(r chi.Router) {
		r.Get("/", s.Info)
		r.Get("/members", s.ListMembers)

		r.Group(func(r chi.Router) {
			r.Use(auth.StaffOrTeamLeaderOnly(s.db))

			r.Put("/", s.UpdateTeam)
			r.Delete("/", s.DeleteTeam)

			r.Post("/members", s.AddMember)
			r.Delete("/members/{member_id}", s.RemoveMember)
		})
	})

	return r
}

type TeamInfo struct {
	Id          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	LeaderId    *uuid.UUID `json:"leaderId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func convertToTeamInfo(team schema.Team) TeamInfo {
	return TeamInfo{
		Id:          team.Id,
		Name:        team.Name,
		Description: team.Description,
		LeaderId:    team.LeaderId,
		CreatedAt:   team.CreatedAt,
		UpdatedAt:   team.UpdatedAt,
	}
}

type MemberUser struct {
	Id        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarUrl *string   `json:"avatarUrl"`
}

type MemberInfo struct {
	Id       uuid.UUID  `json:"id"`
	TeamId   uuid.UUID  `json:"teamId"`
	UserId   uuid.UUID  `json:"userId"`
	Role     string     `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
	User     MemberUser `json:"user"`
}

func convertToMemberInfo(member schema.TeamMember) MemberInfo {
	info := MemberInfo{
		Id:       member.Id,
		TeamId:   member.TeamId,
		UserId:   member.UserId,
		Role:     member.Role,
		JoinedAt: member.JoinedAt,
	}
	if member.User != nil {
		info.User = MemberUser{
			Id:        member.User.Id,
			Name:      member.User.Name,
			Email:     member.User.Email,
			AvatarUrl: member.User.AvatarUrl,
		}
	}
	return info
}

type createTeamRequest struct {
	Name        string     `json:"name" validate:"required,max=255"`
	Description string     `json:"description"`
	LeaderId    *uuid.UUID `json:"leaderId"`
}

func (s *TeamService) CreateTeam(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	var params createTeamRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	leaderId := user.Id
	if params.LeaderId != nil {
		leaderId = *params.LeaderId
	}

	team := schema.Team{
		Id:          uuid.New(),
		Name:        params.Name,
		Description: params.Description,
		LeaderId:    &leaderId,
	}

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if err := checkUserReference(txn, leaderId, "leader"); err != nil {
			return err
		}

		if result := txn.Create(&team); result.Error != nil {
			return dbFailure(s.logger, "sql error creating team", result.Error)
		}
		return nil
	})

	if err != nil {
		writeError(w, s.logger, "creating team", err)
		return
	}

	s.logger.Info("created team", "team_id", team.Id, "name", team.Name, "user_id", user.Id, "code", logging.TEAM_UPDATE)

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, convertToTeamInfo(team))
}

func (s *TeamService) List(w http.ResponseWriter, r *http.Request) {
	var teams []schema.Team
	result := s.db.WithContext(r.Context()).Order("name").Find(&teams)
	if result.Error != nil {
		writeError(w, s.logger, "listing teams", dbFailure(s.logger, "sql error listing teams", result.Error))
		return
	}

	infos := make([]TeamInfo, 0, len(teams))
	for _, team := range teams {
		infos = append(infos, convertToTeamInfo(team))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *TeamService) Info(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	team, err := checkTeamExists(s.db.WithContext(r.Context()), teamId)
	if err != nil {
		writeError(w, s.logger, "retrieving team", err)
		return
	}

	utils.WriteJsonResponse(w, convertToTeamInfo(team))
}

type updateTeamRequest struct {
	Name        *string    `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string    `json:"description"`
	LeaderId    *uuid.UUID `json:"leaderId"`
}

func (s *TeamService) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateTeamRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var team schema.Team

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if _, err := checkTeamExists(txn, teamId); err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if params.Name != nil {
			updates["name"] = *params.Name
		}
		if params.Description != nil {
			updates["description"] = *params.Description
		}
		if params.LeaderId != nil {
			if err := checkUserReference(txn, *params.LeaderId, "leader"); err != nil {
				return err
			}
			updates["leader_id"] = *params.LeaderId
		}

		if len(updates) > 0 {
			if result := txn.Model(&schema.Team{Id: teamId}).Updates(updates); result.Error != nil {
				return dbFailure(s.logger, "sql error updating team", result.Error, "team_id", teamId)
			}
		}

		var err error
		team, err = checkTeamExists(txn, teamId)
		return err
	})

	if err != nil {
		writeError(w, s.logger, "updating team", err)
		return
	}

	s.logger.Info("updated team", "team_id", teamId, "code", logging.TEAM_UPDATE)

	utils.WriteJsonResponse(w, convertToTeamInfo(team))
}

func teamProjectIds(txn *gorm.DB, teamId uuid.UUID) *gorm.DB {
	return txn.Model(&schema.Project{}).Select("id").Where("team_id = ?", teamId)
}

func (s *TeamService) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if _, err := checkTeamExists(txn, teamId); err != nil {
			return err
		}

		// Tasks of the team's projects lose their assignees along with the
		// binding, otherwise they would reference users outside any team.
		result := txn.Model(&schema.Task{}).
			Where("project_id IN (?) AND assignee_id IS NOT NULL", teamProjectIds(txn, teamId)).
			Update("assignee_id", nil)
		if result.Error != nil {
			return dbFailure(s.logger, "sql error clearing task assignees for team", result.Error, "team_id", teamId)
		}

		result = txn.Model(&schema.Project{}).Where("team_id = ?", teamId).Update("team_id", nil)
		if result.Error != nil {
			return dbFailure(s.logger, "sql error unbinding projects from team", result.Error, "team_id", teamId)
		}

		result = txn.Where("team_id = ?", teamId).Delete(&schema.TeamMember{})
		if result.Error != nil {
			return dbFailure(s.logger, "sql error deleting team members", result.Error, "team_id", teamId)
		}

		result = txn.Delete(&schema.Team{Id: teamId})
		if result.Error != nil {
			return dbFailure(s.logger, "sql error deleting team", result.Error, "team_id", teamId)
		}

		return nil
	})

	if err != nil {
		writeError(w, s.logger, "deleting team", err)
		return
	}

	s.logger.Info("deleted team", "team_id", teamId, "code", logging.TEAM_UPDATE)

	utils.WriteSuccess(w)
}

func (s *TeamService) ListMembers(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var members []schema.TeamMember

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		if _, err := checkTeamExists(txn, teamId); err != nil {
			return err
		}

		result := txn.Preload("User").Where("team_id = ?", teamId).Order("joined_at").Find(&members)
		if result.Error != nil {
			return dbFailure(s.logger, "sql error listing team members", result.Error, "team_id", teamId)
		}
		return nil
	})

	if err != nil {
		writeError(w, s.logger, "listing team members", err)
		return
	}

	infos := make([]MemberInfo, 0, len(members))
	for _, member := range members {
		infos = append(infos, convertToMemberInfo(member))
	}

	utils.WriteJsonResponse(w, infos)
}

// addTeamMember adds the user with the given email to the team. Unknown
// emails get an unverified placeholder account without a credential, which
// the owner claims when they register.
func addTeamMember(txn *gorm.DB, teamId uuid.UUID, email, role string, logger *slog.Logger) (schema.TeamMember, error) {
	if role == "" {
		role = schema.MemberRole
	}
	if err := checkEnumValue(schema.CheckValidTeamRole, role); err != nil {
		return schema.TeamMember{}, err
	}

	if _, err := checkTeamExists(txn, teamId); err != nil {
		return schema.TeamMember{}, err
	}

	user, err := schema.GetUserByEmail(email, txn)
	if err != nil {
		if !errors.Is(err, schema.ErrUserNotFound) {
			return schema.TeamMember{}, CodedError(err, http.StatusInternalServerError)
		}

		invitedAt := time.Now().UTC()
		user = schema.User{
			Id:         uuid.New(),
			Email:      email,
			Name:       utils.EmailLocalPart(email),
			Role:       schema.StudentRole,
			IsVerified: false,
			IsActive:   true,
			InvitedAt:  &invitedAt,
		}
		if result := txn.Create(&user); result.Error != nil {
			return schema.TeamMember{}, dbFailure(logger, "sql error creating placeholder user", result.Error, "email", email)
		}
		logger.Info("created placeholder user for team invitation", "user_id", user.Id, "team_id", teamId, "code", logging.TEAM_MEMBERS)
	}

	_, err = schema.GetTeamMembership(teamId, user.Id, txn)
	if err == nil {
		return schema.TeamMember{}, CodedError(fmt.Errorf("user %v is already a member of team %v", email, teamId), http.StatusConflict)
	}
	if !errors.Is(err, schema.ErrTeamMemberNotFound) {
		return schema.TeamMember{}, CodedError(err, http.StatusInternalServerError)
	}

	member := schema.TeamMember{
		Id:       uuid.New(),
		TeamId:   teamId,
		UserId:   user.Id,
		Role:     role,
		JoinedAt: time.Now().UTC(),
	}
	if result := txn.Create(&member); result.Error != nil {
		return schema.TeamMember{}, dbFailure(logger, "sql error adding team member", result.Error, "team_id", teamId, "user_id", user.Id)
	}
	member.User = &user

	return member, nil
}

type addMemberRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role"`
}

func (r *addMemberRequest) Normalize() {
	r.Email = normalizeEmail(r.Email)
}

func (s *TeamService) AddMember(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params addMemberRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	var member schema.TeamMember
	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		var err error
		member, err = addTeamMember(txn, teamId, params.Email, params.Role, s.logger)
		return err
	})

	if err != nil {
		writeError(w, s.logger, "adding team member", err)
		return
	}

	s.logger.Info("added team member", "team_id", teamId, "user_id", member.UserId, "role", member.Role, "code", logging.TEAM_MEMBERS)

	utils.WriteJsonResponseWithStatus(w, http.StatusCreated, convertToMemberInfo(member))
}

func (s *TeamService) RemoveMember(w http.ResponseWriter, r *http.Request) {
	teamId, err := utils.URLParamUUID(r, "team_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	memberId, err := utils.URLParamUUID(r, "member_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.WithContext(r.Context()).Transaction(func(txn *gorm.DB) error {
		var member schema.TeamMember
		result := txn.Limit(1).Find(&member, "id = ? AND team_id = ?", memberId, teamId)
		if result.Error != nil {
			return dbFailure(s.logger, "sql error finding team member", result.Error, "team_id", teamId, "member_id", memberId)
		}
		if result.RowsAffected == 0 {
			return CodedError(schema.ErrTeamMemberNotFound, http.StatusNotFound)
		}

		if result := txn.Delete(&member); result.Error != nil {
			return dbFailure(s.logger, "sql error removing team member", result.Error, "team_id", teamId, "member_id", memberId)
		}

		result = txn.Model(&schema.Task{}).
			Where("assignee_id = ? AND project_id IN (?)", member.UserId, teamProjectIds(txn, teamId)).
			Update("assignee_id", nil)
		if result.Error != nil {
			return dbFailure(s.logger, "sql error unassigning tasks of removed member", result.Error, "team_id", teamId, "user_id", member.UserId)
		}
		if result.RowsAffected > 0 {
			s.logger.Info("unassigned tasks of removed member", "team_id", teamId, "user_id", member.UserId, "tasks", result.RowsAffected, "code", logging.TASK_ASSIGN)
		}

		return nil
	})

	if err != nil {
		writeError(w, s.logger, "removing team member", err)
		return
	}

	s.logger.Info("removed team member", "team_id", teamId, "member_id", memberId, "code", logging.TEAM_MEMBERS)

	utils.WriteSuccess(w)
}
