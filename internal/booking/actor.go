package booking

import "github.com/google/uuid"

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Actor identifies who is asking for a transition. The surrounding auth
// layer is out of scope; it hands the core a resolved actor.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

func (a Actor) canActOn(appt *Appointment) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RolePatient:
		return a.ID == appt.PatientID
	case RoleDoctor:
		return a.ID == appt.DoctorID
	}
	return false
}

// boundByWindow reports whether the cancellation window applies to this
// actor. Doctors and admins may cancel late, which is what makes the
// reduced late refund reachable.
func (a Actor) boundByWindow() bool {
	return a.Role == RolePatient
}
