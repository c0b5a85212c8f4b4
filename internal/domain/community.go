package domain

import "time"

type Community struct {
	ID                      string
	Name                    string
	Patron                  string
	Location                string
	Email                   string
	Image                   *string
	ActualMonthPaymentValue int64
	LastMonthPaymentValue   int64
	LastRolloverPeriod      *string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

type CommunityUpdate struct {
	Name     *string
	Patron   *string
	Email    *string
	Image    *string
	Location *string
}

func (u CommunityUpdate) Apply(c *Community) bool {
	changed := false
	if u.Name != nil {
		c.Name = *u.Name
		changed = true
	}
	if u.Patron != nil {
		c.Patron = *u.Patron
		changed = true
	}
	if u.Email != nil {
		c.Email = *u.Email
		changed = true
	}
	if u.Image != nil {
		c.Image = u.Image
		changed = true
	}
	if u.Location != nil {
		c.Location = *u.Location
		changed = true
	}
	if changed {
		c.UpdatedAt = time.Now()
	}
	return changed
}
