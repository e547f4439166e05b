package domain

import "time"

// Group 群組 (conversation)
type Group struct {
	ID        string        `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string        `gorm:"type:varchar(255);not null" json:"name"`
	Members   []GroupMember `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time     `json:"created_at"`
}

// GroupMember 群組成員
type GroupMember struct {
	GroupID  string    `gorm:"primaryKey;type:varchar(64)"`
	MemberID string    `gorm:"primaryKey;type:varchar(64);index"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

// MemberIDs list member ids of the group
func (g Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.MemberID)
	}
	return ids
}

// GroupView group as exposed to the presentation layer
type GroupView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MemberIDs []string  `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// View convert the stored group
func (g Group) View() GroupView {
	return GroupView{ID: g.ID, Name: g.Name, MemberIDs: g.MemberIDs(), CreatedAt: g.CreatedAt}
}
