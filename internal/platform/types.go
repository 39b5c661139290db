// Package platform wraps the care-management platform API: cases, admissions,
// tasks, forms and subscriptions, spoken over an XML envelope transport.
package platform

// Admission lifecycle statuses as reported by the platform.
const (
	AdmissionIncomplete = "INCOMPLETE"
	AdmissionEnrolled   = "ENROLLED"
	AdmissionActive     = "ACTIVE"
	AdmissionDischarged = "DISCHARGED"
	AdmissionRejected   = "REJECTED"
)

// Case is the platform-side patient record.
type Case struct {
	ID        string
	FullName  string
	BirthDate string
	Gender    string
	Contact   Contact
}

// Contact carries the mutable demographic details of a case.
type Contact struct {
	Phone       string
	Address     string
	Nation      string
	Identifiers []Identifier
}

// Identifier is one external identity of a case, e.g. a national id card or
// the hospital's patient number.
type Identifier struct {
	Name  string
	Value string
}

// Find returns the value of the named identifier, or "".
func (c *Contact) Find(name string) string {
	for _, id := range c.Identifiers {
		if id.Name == name {
			return id.Value
		}
	}
	return ""
}

// Subscription binds a care program to a team; admissions are always created
// inside a subscription.
type Subscription struct {
	ID          string
	ProgramCode string
	TeamCode    string
}

// Admission is one enrollment of a case in a subscription.
type Admission struct {
	ID             string
	CaseID         string
	SubscriptionID string
	Status         string
	EnrolDate      string
	AdmissionDate  string
	DischargeDate  string
}

// Discharged reports whether the admission has left the active phase.
func (a *Admission) Discharged() bool {
	return a.Status == AdmissionDischarged
}

// Active reports whether the admission is in a phase that accepts updates.
func (a *Admission) Active() bool {
	return a.Status == AdmissionActive || a.Status == AdmissionEnrolled
}

// Task is one unit of work attached to an admission. Episode imports are
// carried by tasks holding the import form.
type Task struct {
	ID          string
	CaseID      string
	AdmissionID string
	Code        string
	Date        string
	Status      string
}

// Form is a filled or fillable questionnaire attached to a task.
type Form struct {
	ID        string
	TaskID    string
	Code      string
	Questions []Question
}

// Question is one item of a form. Table questions repeat per row; row 0 marks
// a non-table question.
type Question struct {
	ID    string
	Code  string
	Row   int
	Value string
}

// FindQuestion returns the first non-table question with the given code.
func (f *Form) FindQuestion(code string) *Question {
	for i := range f.Questions {
		if f.Questions[i].Code == code && f.Questions[i].Row == 0 {
			return &f.Questions[i]
		}
	}
	return nil
}

// FindRowQuestion returns the question with the given code on a table row.
func (f *Form) FindRowQuestion(code string, row int) *Question {
	for i := range f.Questions {
		if f.Questions[i].Code == code && f.Questions[i].Row == row {
			return &f.Questions[i]
		}
	}
	return nil
}

// Answer is one value written back to a form question.
type Answer struct {
	QuestionID string
	Code       string
	Row        int
	Value      string
}
