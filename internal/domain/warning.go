package domain

import "time"

type WarningScope string

const (
	WarningScopeCommunity WarningScope = "community"
	WarningScopeParish    WarningScope = "parish"
	WarningScopeCouncil   WarningScope = "council"
)

func (s WarningScope) Valid() bool {
	switch s {
	case WarningScopeCommunity, WarningScopeParish, WarningScopeCouncil:
		return true
	}
	return false
}

// Warning is an announcement posted to a community.
type Warning struct {
	ID          string
	CommunityID string
	Scope       WarningScope
	Title       string
	Description string
	Image       *string
	PostedAt    time.Time
	EditedAt    *time.Time
}

type WarningUpdate struct {
	Scope       *WarningScope
	Title       *string
	Description *string
	Image       *string
}

func (u WarningUpdate) Apply(w *Warning) bool {
	changed := false
	if u.Scope != nil {
		w.Scope = *u.Scope
		changed = true
	}
	if u.Title != nil {
		w.Title = *u.Title
		changed = true
	}
	if u.Description != nil {
		w.Description = *u.Description
		changed = true
	}
	if u.Image != nil {
		w.Image = u.Image
		changed = true
	}
	if changed {
		now := time.Now()
		w.EditedAt = &now
	}
	return changed
}

type WebPushSubscription struct {
	ID        string
	UserID    string
	Endpoint  string
	P256dh    string
	Auth      string
	CreatedAt time.Time
}
