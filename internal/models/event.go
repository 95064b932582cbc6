package models

// Attendee is a person registered for an event, either as a driver or an instructor.
// Text attributes are nil when the API left them empty or omitted them.
type Attendee struct {
	MemberID   string  `json:"member_id" yaml:"member_id"`
	Name       *string `json:"name" yaml:"name"`
	Status     *string `json:"status" yaml:"status"`
	Email      *string `json:"email" yaml:"email"`
	FirstTimer bool    `json:"first_timer" yaml:"first_timer"`
}

// Assignment places one driver in a run group and class, optionally paired with an instructor.
type Assignment struct {
	ID         string    `json:"id" yaml:"id"`
	Group      *string   `json:"group" yaml:"group"`
	Class      *string   `json:"class" yaml:"class"`
	Modifier   *string   `json:"modifier" yaml:"modifier"`
	Car        *string   `json:"car" yaml:"car"`
	Driver     *Attendee `json:"driver" yaml:"driver"`
	Instructor *Attendee `json:"instructor" yaml:"instructor"` // nil if unassigned or unresolved
}

// InGroup reports whether the assignment belongs to the given run group.
func (a *Assignment) InGroup(code string) bool {
	return a.Group != nil && *a.Group == code
}

// Stats summarizes one join of attendees and assignments.
type Stats struct {
	Attendees             int
	Assignments           int
	UnresolvedInstructors int
}
