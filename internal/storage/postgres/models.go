package postgres

import "time"

// RestartRecordModel maps to the "restart_records" table. Each row is one
// member of an owner's record set; the composite unique index gives the set
// its append-without-duplicates semantics.
type RestartRecordModel struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	OwnerID           int64  `gorm:"not null;index;uniqueIndex:idx_restart_record_set,priority:1"`
	StatusChatID      int64  `gorm:"not null;uniqueIndex:idx_restart_record_set,priority:2"`
	StatusMessageID   int64  `gorm:"not null;uniqueIndex:idx_restart_record_set,priority:3"`
	ScheduledAtMicros int64  `gorm:"not null;uniqueIndex:idx_restart_record_set,priority:4"`
	Reason            string `gorm:"not null;size:16;uniqueIndex:idx_restart_record_set,priority:5"`
	CreatedAt         time.Time
}

func (RestartRecordModel) TableName() string { return "restart_records" }
