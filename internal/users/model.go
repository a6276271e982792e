package users

import "time"

// Role enumerates the coarse account roles recognised by the service.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// User models a registered account.
type User struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Username    string    `gorm:"column:username;size:64;not null;uniqueIndex"`
	DisplayName string    `gorm:"column:display_name;size:190;not null;default:''"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512;not null;default:''"`
	Bio         string    `gorm:"column:bio;type:text;not null;default:''"`
	Verified    bool      `gorm:"column:verified;not null;default:false"`
	Role        Role      `gorm:"column:role;size:32;not null;default:'user'"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Follow records a directed follower edge between two users.
type Follow struct {
	FollowerID int64     `gorm:"column:follower_id;primaryKey;not null"`
	FolloweeID int64     `gorm:"column:followee_id;primaryKey;not null;index"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Follow) TableName() string {
	return "user_follows"
}
