package ws

import "time"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// Event types pushed over the hubs.
const (
	EventAttendanceUpdate = "attendance_update"
	EventForceBlocked     = "force_blocked"
	EventForceSubmitted   = "force_submitted"
	EventSessionStarted   = "session_started"
	EventSessionEnded     = "session_ended"
)

type Hubs struct {
	Proctor *ProctorHub
	Student *StudentHub
}

func NewHubs() *Hubs {
	return &Hubs{
		Proctor: NewProctorHub(),
		Student: NewStudentHub(),
	}
}

// Run starts both hub loops.
func (h *Hubs) Run() {
	go h.Proctor.Run()
	go h.Student.Run()
}
