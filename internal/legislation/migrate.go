package legislation

import "gorm.io/gorm"

// Migrate binds the explicit join models and creates the legislative tables.
func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&Bill{}, "Cosponsors", &BillCosponsor{}); err != nil {
		return err
	}
	if err := db.SetupJoinTable(&Bill{}, "SecondaryIssues", &BillSecondaryIssue{}); err != nil {
		return err
	}
	return db.AutoMigrate(Models()...)
}
