package schema

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type User struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Email    string `gorm:"unique;size:254;not null"`
	Name     string `gorm:"size:255;not null"`
	Role     string `gorm:"size:20;not null;default:'student'"`
	Password []byte

	Department *string `gorm:"size:255"`
	AvatarUrl  *string

	IsVerified bool `gorm:"not null;default:false"`
	IsActive   bool `gorm:"not null;default:true"`

	VerificationToken *string `gorm:"size:64;index"`
	ResetToken        *string `gorm:"size:64;index"`
	ResetTokenExpiry  *time.Time
	LastLoginAt       *time.Time

	// InvitedAt is set on accounts created by a team invitation before the
	// owner registered.
	InvitedAt *time.Time

	Preferences datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time

	Teams []TeamMember `gorm:"constraint:OnDelete:CASCADE"`
}

func (u *User) IsStaff() bool {
	return u.Role == AdminRole || u.Role == FacultyRole
}

type Team struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"size:255;not null"`
	Description string

	LeaderId *uuid.UUID `gorm:"type:uuid"`
	Leader   *User      `gorm:"foreignKey:LeaderId;constraint:OnDelete:SET NULL"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Members []TeamMember `gorm:"constraint:OnDelete:CASCADE"`
}

type TeamMember struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	TeamId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_team_member"`
	UserId uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_team_member"`
	Role   string    `gorm:"size:20;not null;default:'member'"`

	JoinedAt time.Time

	User *User
	Team *Team
}

type Project struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name        string `gorm:"size:255;not null"`
	Description string
	Status      string `gorm:"size:20;not null;default:'planned'"`

	TeamId *uuid.UUID `gorm:"type:uuid;index"`
	Team   *Team      `gorm:"constraint:OnDelete:SET NULL"`

	StartDate *time.Time
	EndDate   *time.Time
	StartTime *string `gorm:"size:5"`
	EndTime   *string `gorm:"size:5"`

	Metadata datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Task struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProjectId uuid.UUID `gorm:"type:uuid;not null;index"`
	Project   *Project  `gorm:"constraint:OnDelete:CASCADE"`

	Title       string `gorm:"size:255;not null"`
	Description string
	Status      string `gorm:"size:20;not null;default:'planned'"`
	Priority    string `gorm:"size:20;not null;default:'medium'"`

	DueDate *time.Time

	AssigneeId *uuid.UUID `gorm:"type:uuid;index"`
	Assignee   *User      `gorm:"foreignKey:AssigneeId;constraint:OnDelete:SET NULL"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Document struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProjectId uuid.UUID `gorm:"type:uuid;not null;index"`
	Project   *Project  `gorm:"constraint:OnDelete:CASCADE"`

	Title       string `gorm:"size:255;not null"`
	Description string
	FileUrl     string `gorm:"not null"`
	FileType    string `gorm:"size:100;not null"`
	Size        int64
	Status      string `gorm:"size:20;not null;default:'draft'"`

	UploaderId uuid.UUID `gorm:"type:uuid;not null"`
	Uploader   *User     `gorm:"foreignKey:UploaderId"`

	VerifierId *uuid.UUID `gorm:"type:uuid"`
	Verifier   *User      `gorm:"foreignKey:VerifierId;constraint:OnDelete:SET NULL"`

	Metadata datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AllModels lists every table in the order they must be migrated.
func AllModels() []interface{} {
	return []interface{}{
		&User{}, &Team{}, &TeamMember{}, &Project{}, &Task{}, &Document{},
	}
}
