package versions

import (
	"campus_hub/hub/schema"

	"gorm.io/gorm"
)

// Earlier deployments could add the same user to a team more than once. The
// oldest membership row is kept and the others are removed before the unique
// index is created.
func Migration_1_unique_team_members(txn *gorm.DB) error {
	err := txn.Exec(`
		DELETE FROM team_members a
		USING team_members b
		WHERE a.team_id = b.team_id AND a.user_id = b.user_id
		AND (a.joined_at > b.joined_at OR (a.joined_at = b.joined_at AND a.id > b.id))`,
	).Error
	if err != nil {
		return err
	}

	if txn.Migrator().HasIndex(&schema.TeamMember{}, "idx_team_member") {
		return nil
	}
	return txn.Migrator().CreateIndex(&schema.TeamMember{}, "idx_team_member")
}
