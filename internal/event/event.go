// Package event joins an event's attendees with its run group assignments.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"pairings/internal/models"
	"pairings/internal/msr"
	"pairings/internal/record"
)

// ErrNotSupported is returned by queries that are declared but not implemented.
var ErrNotSupported = errors.New("not supported")

// UnresolvedDriverError reports an assignment whose driver is not among the attendees.
type UnresolvedDriverError struct {
	AssignmentID string
	MemberID     string // empty when the assignment has no member reference
}

func (e *UnresolvedDriverError) Error() string {
	if e.MemberID == "" {
		return fmt.Sprintf("assignment %s has no driver", e.AssignmentID)
	}
	return fmt.Sprintf("assignment %s: driver %s not found in attendees", e.AssignmentID, e.MemberID)
}

// MalformedRecordError reports an item that lacks a required identifier.
type MalformedRecordError struct {
	Kind  string
	Field string
	Index int
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("%s #%d: missing %s", e.Kind, e.Index, e.Field)
}

// Source supplies the raw attendee and assignment items of an event.
type Source interface {
	FetchAttendees(ctx context.Context, eventID string) ([]*msr.Node, error)
	FetchAssignments(ctx context.Context, eventID string) ([]*msr.Node, error)
}

// Event holds the joined attendees and assignments of one event.
// It is not modified after construction.
type Event struct {
	id          string
	attendees   *index[models.Attendee]
	assignments *index[models.Assignment]
	unresolved  int
}

// New fetches the attendees and assignments of eventID and joins them.
// Either the whole join succeeds or no Event is returned.
func New(ctx context.Context, logger *slog.Logger, src Source, eventID string) (*Event, error) {
	attendees, err := src.FetchAttendees(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch attendees: %w", err)
	}
	assignments, err := src.FetchAssignments(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assignments: %w", err)
	}

	return Join(logger, eventID, attendees, assignments)
}

// Join builds an Event from already fetched items. Duplicate attendee or
// assignment ids are not rejected: the later item replaces the earlier one.
func Join(logger *slog.Logger, eventID string, attendees, assignments []*msr.Node) (*Event, error) {
	e := &Event{
		id:          eventID,
		attendees:   newIndex[models.Attendee](),
		assignments: newIndex[models.Assignment](),
	}

	for i, item := range attendees {
		id, err := record.MemberID(item.Field("memberuri"))
		if err != nil {
			return nil, fmt.Errorf("attendee #%d: %w", i, err)
		}
		if id == nil {
			logger.Warn("Skipping attendee without member reference", "index", i,
				"name", record.Value(record.Text(item.Field("firstname"), item.Field("lastname"))))
			continue
		}
		e.attendees.put(*id, &models.Attendee{
			MemberID:   *id,
			Name:       record.Text(item.Field("firstname"), item.Field("lastname")),
			Status:     record.Text(item.Field("status")),
			Email:      record.Text(item.Field("email")),
			FirstTimer: record.Value(record.Text(item.Field("isfirstevent"))) == "true",
		})
	}

	for i, item := range assignments {
		a, err := e.resolve(logger, i, item)
		if err != nil {
			return nil, err
		}
		e.assignments.put(a.ID, a)
	}

	return e, nil
}

func (e *Event) resolve(logger *slog.Logger, i int, item *msr.Node) (*models.Assignment, error) {
	id := record.Text(item.Field("id"))
	if id == nil {
		return nil, &MalformedRecordError{Kind: "assignment", Field: "id", Index: i}
	}

	driverID, err := record.MemberID(item.Field("memberuri"))
	if err != nil {
		return nil, fmt.Errorf("assignment %s: driver: %w", *id, err)
	}
	instructorID, err := record.MemberID(item.Field("instructoruri"))
	if err != nil {
		return nil, fmt.Errorf("assignment %s: instructor: %w", *id, err)
	}

	if driverID == nil {
		return nil, &UnresolvedDriverError{AssignmentID: *id}
	}
	driver, ok := e.attendees.get(*driverID)
	if !ok {
		return nil, &UnresolvedDriverError{AssignmentID: *id, MemberID: *driverID}
	}

	var instructor *models.Attendee
	if instructorID != nil {
		instructor, ok = e.attendees.get(*instructorID)
		if !ok {
			e.unresolved++
			logger.Error("Cannot find instructor in attendees",
				"assignment", *id,
				"instructor", *instructorID,
				"name", record.Value(record.Text(item.Field("instructorfirstname"), item.Field("instructorlastname"))))
		}
	}

	return &models.Assignment{
		ID:         *id,
		Group:      record.Text(item.Field("groupshort")),
		Class:      record.Text(item.Field("classshort")),
		Modifier:   record.Text(item.Field("classmodifier")),
		Car:        record.Text(item.Field("make"), item.Field("model")),
		Driver:     driver,
		Instructor: instructor,
	}, nil
}

// EventID returns the id the event was constructed with.
func (e *Event) EventID() string {
	return e.id
}

// GetGroup returns the assignments of a run group. The code is matched
// exactly; an unknown group yields an empty slice.
func (e *Event) GetGroup(code string) []*models.Assignment {
	out := []*models.Assignment{}
	for _, a := range e.assignments.values() {
		if a.InGroup(code) {
			out = append(out, a)
		}
	}
	return out
}

// Groups returns the distinct group codes in the order they first appear.
func (e *Event) Groups() []string {
	seen := make(map[string]bool)
	var out []string
	for _, a := range e.assignments.values() {
		if a.Group == nil || seen[*a.Group] {
			continue
		}
		seen[*a.Group] = true
		out = append(out, *a.Group)
	}
	return out
}

// Attendees returns all attendees in the order they were listed.
func (e *Event) Attendees() []*models.Attendee {
	return e.attendees.values()
}

// Assignments returns all assignments in the order they were listed.
func (e *Event) Assignments() []*models.Assignment {
	return e.assignments.values()
}

// InstructorStudents would list the students paired with an instructor.
// It always fails with ErrNotSupported.
func (e *Event) InstructorStudents(memberID string) ([]*models.Assignment, error) {
	return nil, fmt.Errorf("students of instructor %s: %w", memberID, ErrNotSupported)
}

// Stats reports the size of the join and how many instructors did not resolve.
func (e *Event) Stats() models.Stats {
	return models.Stats{
		Attendees:             e.attendees.len(),
		Assignments:           e.assignments.len(),
		UnresolvedInstructors: e.unresolved,
	}
}
