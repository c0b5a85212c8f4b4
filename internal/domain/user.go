package domain

import "time"

type Position string

const (
	PositionMember        Position = "member"
	PositionCouncilMember Position = "council_member"
	PositionParishLeader  Position = "parish_leader"
)

func (p Position) Valid() bool {
	switch p {
	case PositionMember, PositionCouncilMember, PositionParishLeader:
		return true
	}
	return false
}

// CanManage reports whether the position may administer its community.
func (p Position) CanManage() bool {
	return p == PositionParishLeader || p == PositionCouncilMember
}

type User struct {
	ID          string
	Name        string
	CPF         string
	Phone       string
	Email       string
	Position    Position
	Birthday    *time.Time
	Image       *string
	CommunityID string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (u *User) Customer() Customer {
	return Customer{Name: u.Name, CPF: u.CPF, Phone: u.Phone}
}

// UserUpdate merges profile fields. CommunityID is resolved from a community
// name by the caller.
type UserUpdate struct {
	Name        *string
	Position    *Position
	Birthday    *time.Time
	Email       *string
	Image       *string
	Phone       *string
	CommunityID *string
}

func (u UserUpdate) Apply(user *User) bool {
	changed := false
	if u.Name != nil {
		user.Name = *u.Name
		changed = true
	}
	if u.Position != nil && u.Position.Valid() {
		user.Position = *u.Position
		changed = true
	}
	if u.Birthday != nil {
		user.Birthday = u.Birthday
		changed = true
	}
	if u.Email != nil {
		user.Email = *u.Email
		changed = true
	}
	if u.Image != nil {
		user.Image = u.Image
		changed = true
	}
	if u.Phone != nil {
		user.Phone = *u.Phone
		changed = true
	}
	if u.CommunityID != nil {
		user.CommunityID = *u.CommunityID
		changed = true
	}
	if changed {
		user.UpdatedAt = time.Now()
	}
	return changed
}

// Login holds credentials. Its ID is the owning user's ID.
type Login struct {
	ID           string
	CPFHash      string
	PasswordHash string
	Position     Position
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginUpdate carries an already hashed password.
type LoginUpdate struct {
	PasswordHash *string
	Position     *Position
}

func (u LoginUpdate) Apply(l *Login) bool {
	changed := false
	if u.PasswordHash != nil {
		l.PasswordHash = *u.PasswordHash
		changed = true
	}
	if u.Position != nil && u.Position.Valid() {
		l.Position = *u.Position
		changed = true
	}
	if changed {
		l.UpdatedAt = time.Now()
	}
	return changed
}
