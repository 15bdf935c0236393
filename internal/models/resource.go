package models

import "time"

// Resource is reference data owned by the external catalog service and synced
// into this service through the resource consumer. The engine never creates
// resources; it only reads them and takes row locks on them to serialize
// scheduling per resource.
type Resource struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"not null" json:"name"`
	Timezone         string    `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`
	Available        bool      `gorm:"not null;default:true" json:"available"`
	RequiresApproval bool      `gorm:"not null;default:false" json:"requires_approval"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`

	Hours     []BusinessHours `gorm:"foreignKey:ResourceID" json:"hours,omitempty"`
	Blackouts []BlackoutDate  `gorm:"foreignKey:ResourceID" json:"blackouts,omitempty"`
}

// Location resolves the resource's IANA timezone, falling back to UTC when
// the name is empty or unknown.
func (r *Resource) Location() *time.Location {
	if r.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BusinessHours is one open window for one weekday, expressed in minutes from
// local midnight (0..1440) in the resource's timezone. A resource may carry
// several windows per day; a resource with no rows at all is always open.
type BusinessHours struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	ResourceID  uint `gorm:"index;not null" json:"resource_id"`
	Weekday     int  `gorm:"not null" json:"weekday"` // time.Weekday: Sunday = 0
	OpenMinute  int  `gorm:"not null" json:"open_minute"`
	CloseMinute int  `gorm:"not null" json:"close_minute"`
}

// BlackoutDate closes a resource for one whole calendar day in the resource's
// timezone, regardless of configured hours.
type BlackoutDate struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ResourceID uint      `gorm:"index;not null" json:"resource_id"`
	Date       time.Time `gorm:"type:date;not null" json:"date"`
	Reason     string    `json:"reason,omitempty"`
}
