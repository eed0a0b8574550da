package database

import (
	"errors"
	"time"

	"github.com/Breakdown/breakdown-services-sub000/internal/legislation"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const migrationSeedIssueTaxonomy = "2024-01-15_seed_issue_taxonomy"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedIssueTaxonomy, apply: seedIssueTaxonomy},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// defaultIssues maps curated issues onto the ProPublica subject vocabulary.
var defaultIssues = []legislation.Issue{
	{Slug: "health", Name: "Health", Subjects: []string{"Health", "Medicare", "Medicaid", "Health care coverage and access", "Prescription drugs"}},
	{Slug: "economy", Name: "Economy", Subjects: []string{"Economics and Public Finance", "Commerce", "Finance and Financial Sector", "Labor and Employment"}},
	{Slug: "taxes", Name: "Taxes", Subjects: []string{"Taxation", "Income tax", "Tax credits"}},
	{Slug: "immigration", Name: "Immigration", Subjects: []string{"Immigration", "Border security and unlawful immigration", "Refugees, asylum, displaced persons"}},
	{Slug: "defense", Name: "Defense", Subjects: []string{"Armed Forces and National Security", "Military personnel and dependents", "Defense spending"}},
	{Slug: "environment", Name: "Environment", Subjects: []string{"Environmental Protection", "Climate change and greenhouse gases", "Public Lands and Natural Resources", "Water Resources Development"}},
	{Slug: "energy", Name: "Energy", Subjects: []string{"Energy", "Oil and gas", "Alternative and renewable resources"}},
	{Slug: "education", Name: "Education", Subjects: []string{"Education", "Higher education", "Elementary and secondary education"}},
	{Slug: "justice", Name: "Criminal Justice", Subjects: []string{"Crime and Law Enforcement", "Law", "Firearms and explosives"}},
	{Slug: "civil-rights", Name: "Civil Rights", Subjects: []string{"Civil Rights and Liberties, Minority Issues", "Voting rights", "Government information and archives"}},
	{Slug: "foreign-policy", Name: "Foreign Policy", Subjects: []string{"International Affairs", "Foreign Trade and International Finance", "Sanctions"}},
	{Slug: "infrastructure", Name: "Infrastructure", Subjects: []string{"Transportation and Public Works", "Housing and Community Development", "Science, Technology, Communications"}},
	{Slug: "veterans", Name: "Veterans", Subjects: []string{"Veterans' medical care", "Veterans' education, employment, rehabilitation", "Veterans' pensions and compensation"}},
	{Slug: "agriculture", Name: "Agriculture", Subjects: []string{"Agriculture and Food", "Food assistance and relief"}},
	{Slug: "government", Name: "Government Operations", Subjects: []string{"Government Operations and Politics", "Congress", "Appropriations", "Emergency Management"}},
}

func seedIssueTaxonomy(db *gorm.DB) error {
	issues := make([]legislation.Issue, len(defaultIssues))
	copy(issues, defaultIssues)
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&issues).Error
}
