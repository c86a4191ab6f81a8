package controllers

import (
	"time"

	"examgate_backend/internal/models"
	"examgate_backend/internal/ws"
)

// broadcastAttendance mirrors an attendance mutation onto both hubs:
// targeted to the student, fanned out to proctor dashboards.
func broadcastAttendance(hubs *ws.Hubs, record *models.AttendanceRecord, eventType, reason string) {
	if hubs == nil || record == nil {
		return
	}

	sessionID := ""
	if record.SessionID != nil {
		sessionID = *record.SessionID
	}
	courseID, level, _ := models.ParseTestIdentifier(record.TestIdentifier)

	hubs.Student.Notify(record.UserID, ws.StudentMessage{
		Type:      eventType,
		Status:    record.Status,
		Locked:    record.IsLocked(),
		Reason:    reason,
		SessionID: sessionID,
	})
	hubs.Proctor.Broadcast(ws.ProctorEvent{
		Type:           eventType,
		UserID:         record.UserID,
		TestIdentifier: record.TestIdentifier,
		CourseID:       courseID,
		Level:          level,
		SessionID:      sessionID,
		Status:         record.Status,
		Locked:         record.IsLocked(),
		Reason:         reason,
		At:             time.Now(),
	})
}
