package versions

import (
	"fmt"

	"campus_hub/hub/schema"

	"gorm.io/gorm"
)

// Logins compare against lowercased emails, so accounts stored with mixed
// case could no longer sign in. Accounts that would collide once lowercased
// must be merged by hand and cause the migration to fail.
func Migration_2_lowercase_emails(txn *gorm.DB) error {
	var collisions []string
	err := txn.Model(&schema.User{}).
		Select("LOWER(email)").
		Group("LOWER(email)").
		Having("COUNT(*) > 1").
		Pluck("LOWER(email)", &collisions).Error
	if err != nil {
		return err
	}
	if len(collisions) > 0 {
		return fmt.Errorf("found %d emails that differ only by case: %v", len(collisions), collisions)
	}

	return txn.Model(&schema.User{}).
		Where("email <> LOWER(email)").
		Update("email", gorm.Expr("LOWER(email)")).Error
}

func Rollback_2_lowercase_emails(txn *gorm.DB) error {
	return nil
}
