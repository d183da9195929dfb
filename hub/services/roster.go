package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"campus_hub/hub/schema"
	"campus_hub/utils"
	"campus_hub/utils/logging"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// Roster describes teams and their members, typically exported from a course
// enrollment list.
type Roster struct {
	Teams []RosterTeam `yaml:"teams"`
}

type RosterTeam struct {
	Name        string         `yaml:"name" validate:"required"`
	Description string         `yaml:"description"`
	Leader      string         `yaml:"leader" validate:"omitempty,email"`
	Members     []RosterMember `yaml:"members" validate:"dive"`
}

type RosterMember struct {
	Email string `yaml:"email" validate:"required,email"`
	Role  string `yaml:"role"`
}

type RosterReport struct {
	TeamsCreated   int `json:"teamsCreated" yaml:"teamsCreated"`
	MembersAdded   int `json:"membersAdded" yaml:"membersAdded"`
	MembersSkipped int `json:"membersSkipped" yaml:"membersSkipped"`
}

func ParseRoster(r io.Reader) (Roster, error) {
	var roster Roster
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&roster); err != nil {
		return Roster{}, fmt.Errorf("error parsing roster: %w", err)
	}

	for i := range roster.Teams {
		team := &roster.Teams[i]
		team.Leader = normalizeEmail(team.Leader)
		for j := range team.Members {
			team.Members[j].Email = normalizeEmail(team.Members[j].Email)
		}
	}

	for i, team := range roster.Teams {
		if err := utils.ValidateStruct(&team); err != nil {
			return Roster{}, fmt.Errorf("invalid roster team %d: %w", i, err)
		}
		for _, member := range team.Members {
			if member.Role != "" {
				if err := schema.CheckValidTeamRole(member.Role); err != nil {
					return Roster{}, fmt.Errorf("invalid roster team '%v': %w", team.Name, err)
				}
			}
		}
	}

	return roster, nil
}

func findOrCreateTeam(txn *gorm.DB, team RosterTeam, logger *slog.Logger) (schema.Team, bool, error) {
	var existing schema.Team
	result := txn.Limit(1).Find(&existing, "name = ?", team.Name)
	if result.Error != nil {
		return schema.Team{}, false, dbFailure(logger, "sql error finding roster team", result.Error, "team", team.Name)
	}
	if result.RowsAffected != 0 {
		return existing, false, nil
	}

	created := schema.Team{Id: uuid.New(), Name: team.Name, Description: team.Description}
	if result := txn.Create(&created); result.Error != nil {
		return schema.Team{}, false, dbFailure(logger, "sql error creating roster team", result.Error, "team", team.Name)
	}
	return created, true, nil
}

// ImportRoster applies the roster in one transaction. Teams are matched by
// name, members that already belong to a team are skipped.
func ImportRoster(ctx context.Context, db *gorm.DB, roster Roster, logger *slog.Logger) (RosterReport, error) {
	var report RosterReport

	err := db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		for _, rosterTeam := range roster.Teams {
			team, created, err := findOrCreateTeam(txn, rosterTeam, logger)
			if err != nil {
				return err
			}
			if created {
				report.TeamsCreated++
			}

			members := rosterTeam.Members
			if rosterTeam.Leader != "" {
				members = append([]RosterMember{{Email: rosterTeam.Leader, Role: schema.LeaderRole}}, members...)
			}

			for _, member := range members {
				added, err := addTeamMember(txn, team.Id, member.Email, member.Role, logger)
				if err != nil {
					if GetResponseCode(err) == http.StatusConflict {
						report.MembersSkipped++
						continue
					}
					return fmt.Errorf("error adding %v to team '%v': %w", member.Email, team.Name, err)
				}
				report.MembersAdded++

				if member.Role == schema.LeaderRole && team.LeaderId == nil {
					team.LeaderId = &added.UserId
					if result := txn.Model(&schema.Team{Id: team.Id}).Update("leader_id", added.UserId); result.Error != nil {
						return dbFailure(logger, "sql error setting roster team leader", result.Error, "team_id", team.Id)
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return RosterReport{}, err
	}

	logger.Info("imported roster", "teams_created", report.TeamsCreated, "members_added", report.MembersAdded, "members_skipped", report.MembersSkipped, "code", logging.TEAM_MEMBERS)

	return report, nil
}

func (s *TeamService) ImportRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := ParseRoster(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	report, err := ImportRoster(r.Context(), s.db, roster, s.logger)
	if err != nil {
		if errors.Is(err, schema.ErrInvalidEnum) {
			err = CodedError(err, http.StatusBadRequest)
		}
		writeError(w, s.logger, "importing roster", err)
		return
	}

	utils.WriteJsonResponse(w, report)
}
