package event

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"pairings/internal/msr"
	"pairings/internal/record"
)

const attendeesXML = `<response><attendees>
  <attendee><memberUri>/members/D1</memberUri><firstName>Dana</firstName><lastName>Driver</lastName>
    <status>Confirmed</status><email>dana@example.com</email><isFirstEvent>true</isFirstEvent></attendee>
  <attendee><memberUri>/members/D2</memberUri><firstName>Eli</firstName><lastName/>
    <status> </status><email/><isFirstEvent>false</isFirstEvent></attendee>
  <attendee><memberUri>/members/D3</memberUri><firstName>Fay</firstName><lastName>Fast</lastName></attendee>
  <attendee><memberUri>/members/I1</memberUri><firstName>Ian</firstName><lastName>Instructor</lastName>
    <status>Confirmed</status></attendee>
</attendees></response>`

const assignmentsXML = `<response><assignments>
  <assignment><id>A-1</id><memberUri>/members/D1</memberUri><instructorUri>/members/I1</instructorUri>
    <instructorFirstName>Ian</instructorFirstName><instructorLastName>Instructor</instructorLastName>
    <groupShort>A</groupShort><classShort>TT</classShort><classModifier/><make>Audi</make><model>RS3</model></assignment>
  <assignment><id>A-2</id><memberUri>/members/D2</memberUri><instructorUri/>
    <groupShort>A</groupShort><classShort>HPDE</classShort><make>Mazda</make><model>Miata</model></assignment>
  <assignment><id>B-1</id><memberUri>/members/D3</memberUri><instructorUri/>
    <groupShort>B</groupShort><classShort>HPDE</classShort><make>BMW</make><model/></assignment>
</assignments></response>`

type fakeSource struct {
	attendees, assignments string
	attErr, asgErr         error
}

func (f *fakeSource) FetchAttendees(ctx context.Context, eventID string) ([]*msr.Node, error) {
	if f.attErr != nil {
		return nil, f.attErr
	}
	return items(f.attendees, "attendee")
}

func (f *fakeSource) FetchAssignments(ctx context.Context, eventID string) ([]*msr.Node, error) {
	if f.asgErr != nil {
		return nil, f.asgErr
	}
	return items(f.assignments, "assignment")
}

func items(body, element string) ([]*msr.Node, error) {
	doc, err := msr.Parse(strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	return doc.FindAll(element), nil
}

func mustItems(t *testing.T, body, element string) []*msr.Node {
	t.Helper()
	out, err := items(body, element)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return out
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEvent(t *testing.T) *Event {
	t.Helper()
	e, err := New(context.Background(), discard(), &fakeSource{attendees: attendeesXML, assignments: assignmentsXML}, "EV-1")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return e
}

func TestNewBuildsAttendees(t *testing.T) {
	e := newTestEvent(t)

	if e.EventID() != "EV-1" {
		t.Errorf("EventID() = %q, want EV-1", e.EventID())
	}
	att := e.Attendees()
	if len(att) != 4 {
		t.Fatalf("Attendees() = %d, want 4", len(att))
	}

	dana := att[0]
	if dana.MemberID != "D1" || record.Value(dana.Name) != "Dana Driver" || !dana.FirstTimer {
		t.Errorf("dana = %+v", dana)
	}
	if record.Value(dana.Email) != "dana@example.com" || record.Value(dana.Status) != "Confirmed" {
		t.Errorf("dana contact = %v %v", dana.Email, dana.Status)
	}

	eli := att[1]
	if record.Value(eli.Name) != "Eli" {
		t.Errorf("eli name = %q, want Eli", record.Value(eli.Name))
	}
	if eli.Status != nil || eli.Email != nil {
		t.Errorf("blank fields must be nil, got status=%v email=%v", eli.Status, eli.Email)
	}
	if eli.FirstTimer {
		t.Error("eli is not a first timer")
	}
}

func TestGetGroup(t *testing.T) {
	e := newTestEvent(t)

	a := e.GetGroup("A")
	if len(a) != 2 {
		t.Fatalf("GetGroup(A) = %d assignments, want 2", len(a))
	}
	if a[0].ID != "A-1" || a[1].ID != "A-2" {
		t.Errorf("GetGroup(A) ids = %s, %s", a[0].ID, a[1].ID)
	}
	if a[0].Driver.MemberID != "D1" || a[0].Instructor == nil || a[0].Instructor.MemberID != "I1" {
		t.Errorf("A-1 pairing = %+v / %+v", a[0].Driver, a[0].Instructor)
	}
	if record.Value(a[0].Car) != "Audi RS3" || record.Value(a[0].Class) != "TT" || a[0].Modifier != nil {
		t.Errorf("A-1 fields = car %v class %v modifier %v", a[0].Car, a[0].Class, a[0].Modifier)
	}
	if a[1].Instructor != nil {
		t.Errorf("A-2 has no instructor, got %+v", a[1].Instructor)
	}

	b := e.GetGroup("B")
	if len(b) != 1 || record.Value(b[0].Car) != "BMW" {
		t.Errorf("GetGroup(B) = %+v", b)
	}
}

func TestGetGroupNoMatch(t *testing.T) {
	e := newTestEvent(t)

	for _, code := range []string{"D", "a", " A", ""} {
		got := e.GetGroup(code)
		if got == nil || len(got) != 0 {
			t.Errorf("GetGroup(%q) = %v, want empty non-nil slice", code, got)
		}
	}
}

func TestGroups(t *testing.T) {
	e := newTestEvent(t)
	if got := e.Groups(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("Groups() = %v, want [A B]", got)
	}
}

func TestUnknownInstructorIsLoggedOnce(t *testing.T) {
	assignments := `<assignment><id>X-1</id><memberUri>/members/D1</memberUri>
		<instructorUri>/members/GHOST</instructorUri>
		<instructorFirstName>Casper</instructorFirstName><instructorLastName>Friendly</instructorLastName>
		<groupShort>C</groupShort><classShort>HPDE</classShort><make>Audi</make><model>TT</model></assignment>`

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	e, err := Join(logger, "EV-1", mustItems(t, attendeesXML, "attendee"), mustItems(t, assignments, "assignment"))
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}

	got := e.GetGroup("C")
	if len(got) != 1 {
		t.Fatalf("GetGroup(C) = %d, want 1", len(got))
	}
	x := got[0]
	if x.Instructor != nil {
		t.Errorf("unresolved instructor should be nil, got %+v", x.Instructor)
	}
	if x.Driver.MemberID != "D1" || record.Value(x.Car) != "Audi TT" || record.Value(x.Class) != "HPDE" {
		t.Errorf("assignment fields changed: %+v", x)
	}

	out := buf.String()
	if n := strings.Count(out, "level=ERROR"); n != 1 {
		t.Fatalf("got %d error records, want 1:\n%s", n, out)
	}
	for _, want := range []string{"instructor=GHOST", `name="Casper Friendly"`, "assignment=X-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %s:\n%s", want, out)
		}
	}
	if e.Stats().UnresolvedInstructors != 1 {
		t.Errorf("Stats().UnresolvedInstructors = %d, want 1", e.Stats().UnresolvedInstructors)
	}
}

func TestUnknownDriverFailsJoin(t *testing.T) {
	assignments := `<assignment><id>OK-1</id><memberUri>/members/D1</memberUri><groupShort>A</groupShort></assignment>
		<assignment><id>BAD-1</id><memberUri>/members/NOBODY</memberUri><groupShort>A</groupShort></assignment>`

	e, err := New(context.Background(), discard(), &fakeSource{attendees: attendeesXML, assignments: assignments}, "EV-1")
	if e != nil {
		t.Errorf("New() returned a partial event: %+v", e)
	}
	var ude *UnresolvedDriverError
	if !errors.As(err, &ude) {
		t.Fatalf("error = %v, want *UnresolvedDriverError", err)
	}
	if ude.AssignmentID != "BAD-1" || ude.MemberID != "NOBODY" {
		t.Errorf("UnresolvedDriverError = %+v", ude)
	}
	if !strings.Contains(err.Error(), "BAD-1") {
		t.Errorf("error %q should name the assignment", err)
	}
}

func TestMissingDriverReferenceFailsJoin(t *testing.T) {
	assignments := `<assignment><id>N-1</id><groupShort>A</groupShort></assignment>`

	_, err := Join(discard(), "EV-1", mustItems(t, attendeesXML, "attendee"), mustItems(t, assignments, "assignment"))
	var ude *UnresolvedDriverError
	if !errors.As(err, &ude) || ude.AssignmentID != "N-1" || ude.MemberID != "" {
		t.Fatalf("error = %v, want UnresolvedDriverError for N-1", err)
	}
}

func TestMissingAssignmentID(t *testing.T) {
	assignments := `<assignment><memberUri>/members/D1</memberUri></assignment>`

	_, err := Join(discard(), "EV-1", mustItems(t, attendeesXML, "attendee"), mustItems(t, assignments, "assignment"))
	var mre *MalformedRecordError
	if !errors.As(err, &mre) || mre.Field != "id" {
		t.Fatalf("error = %v, want MalformedRecordError", err)
	}
}

func TestMalformedReferenceFailsJoin(t *testing.T) {
	attendees := `<attendee><memberUri>garbage</memberUri></attendee>`

	e, err := Join(discard(), "EV-1", mustItems(t, attendees, "attendee"), nil)
	if e != nil || !errors.Is(err, record.ErrMalformedReference) {
		t.Fatalf("Join() = %v, %v; want ErrMalformedReference", e, err)
	}

	assignments := `<assignment><id>A-1</id><memberUri>/members/D1</memberUri><instructorUri>oops</instructorUri></assignment>`
	_, err = Join(discard(), "EV-1", mustItems(t, attendeesXML, "attendee"), mustItems(t, assignments, "assignment"))
	if !errors.Is(err, record.ErrMalformedReference) {
		t.Fatalf("instructor reference error = %v, want ErrMalformedReference", err)
	}
}

func TestAttendeeWithoutReferenceSkipped(t *testing.T) {
	attendees := `<attendee><firstName>No</firstName><lastName>Uri</lastName></attendee>
		<attendee><memberUri>/members/D1</memberUri></attendee>`

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e, err := Join(logger, "EV-1", mustItems(t, attendees, "attendee"), nil)
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	if len(e.Attendees()) != 1 {
		t.Errorf("Attendees() = %d, want 1", len(e.Attendees()))
	}
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("expected a warning, got %q", buf.String())
	}
}

func TestDuplicateAssignmentLastWins(t *testing.T) {
	assignments := `<assignment><id>DUP</id><memberUri>/members/D1</memberUri><groupShort>A</groupShort><make>Old</make></assignment>
		<assignment><id>OTHER</id><memberUri>/members/D3</memberUri><groupShort>A</groupShort></assignment>
		<assignment><id>DUP</id><memberUri>/members/D2</memberUri><groupShort>A</groupShort><make>New</make></assignment>`

	e, err := Join(discard(), "EV-1", mustItems(t, attendeesXML, "attendee"), mustItems(t, assignments, "assignment"))
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}

	all := e.Assignments()
	if len(all) != 2 {
		t.Fatalf("Assignments() = %d, want 2", len(all))
	}
	dup := all[0]
	if dup.ID != "DUP" || record.Value(dup.Car) != "New" || dup.Driver.MemberID != "D2" {
		t.Errorf("DUP = %+v, want the later item in the first position", dup)
	}
}

func TestDuplicateAttendeeLastWins(t *testing.T) {
	attendees := `<attendee><memberUri>/members/D1</memberUri><firstName>First</firstName></attendee>
		<attendee><memberUri>/members/D1</memberUri><firstName>Second</firstName></attendee>`

	e, err := Join(discard(), "EV-1", mustItems(t, attendees, "attendee"), nil)
	if err != nil {
		t.Fatalf("Join() error: %v", err)
	}
	att := e.Attendees()
	if len(att) != 1 || record.Value(att[0].Name) != "Second" {
		t.Errorf("Attendees() = %+v", att)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	att := mustItems(t, attendeesXML, "attendee")
	asg := mustItems(t, assignmentsXML, "assignment")

	first, err := Join(discard(), "EV-1", att, asg)
	if err != nil {
		t.Fatalf("first Join() error: %v", err)
	}
	second, err := Join(discard(), "EV-1", att, asg)
	if err != nil {
		t.Fatalf("second Join() error: %v", err)
	}

	if !reflect.DeepEqual(first.Attendees(), second.Attendees()) {
		t.Error("attendee mappings differ between joins")
	}
	if !reflect.DeepEqual(first.Assignments(), second.Assignments()) {
		t.Error("assignment mappings differ between joins")
	}
	if first.Stats() != second.Stats() {
		t.Errorf("stats differ: %+v vs %+v", first.Stats(), second.Stats())
	}
}

func TestFetchErrorsPropagate(t *testing.T) {
	fetchErr := &msr.FetchError{Resource: "attendees", EventID: "EV-1", StatusCode: 500}

	_, err := New(context.Background(), discard(), &fakeSource{attErr: fetchErr}, "EV-1")
	var fe *msr.FetchError
	if !errors.As(err, &fe) || fe.StatusCode != 500 {
		t.Fatalf("attendee fetch error = %v, want FetchError", err)
	}

	_, err = New(context.Background(), discard(), &fakeSource{attendees: attendeesXML, asgErr: fetchErr}, "EV-1")
	if !errors.As(err, &fe) {
		t.Fatalf("assignment fetch error = %v, want FetchError", err)
	}
}

func TestNewLeavesFetchLoggingToSource(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := New(context.Background(), logger, &fakeSource{attendees: attendeesXML, assignments: assignmentsXML}, "EV-1")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("a clean join should log nothing, got:\n%s", buf.String())
	}
}

func TestInstructorStudentsNotSupported(t *testing.T) {
	e := newTestEvent(t)
	got, err := e.InstructorStudents("I1")
	if !errors.Is(err, ErrNotSupported) {
		t.Fatalf("InstructorStudents() error = %v, want ErrNotSupported", err)
	}
	if got != nil {
		t.Errorf("InstructorStudents() = %v, want nil", got)
	}
}

func TestStats(t *testing.T) {
	e := newTestEvent(t)
	s := e.Stats()
	if s.Attendees != 4 || s.Assignments != 3 || s.UnresolvedInstructors != 0 {
		t.Errorf("Stats() = %+v", s)
	}
}
