package postgres

import (
	"github.com/jkaninda/mlinzi/internal/restart"
)

func toRestartRecordModel(ownerID int64, rec restart.Record) RestartRecordModel {
	return RestartRecordModel{
		OwnerID:           ownerID,
		StatusChatID:      rec.StatusChatID,
		StatusMessageID:   rec.StatusMessageID,
		ScheduledAtMicros: rec.ScheduledAtMicros,
		Reason:            string(rec.Reason),
	}
}

func toRestartRecordDomain(m *RestartRecordModel) (restart.Record, error) {
	reason, err := restart.ParseReason(m.Reason)
	if err != nil {
		return restart.Record{}, err
	}
	return restart.Record{
		StatusChatID:      m.StatusChatID,
		StatusMessageID:   m.StatusMessageID,
		ScheduledAtMicros: m.ScheduledAtMicros,
		Reason:            reason,
	}, nil
}
