package platform

import "context"

// Client is the surface the publish pipeline needs from the platform. The
// production implementation speaks the XML transport; tests use the Fake.
type Client interface {
	// FindCaseByIdentifier resolves a case by one of its external
	// identifiers. Returns nil without error when no case matches.
	FindCaseByIdentifier(ctx context.Context, name, value string) (*Case, error)
	CreateCase(ctx context.Context, c *Case) (string, error)
	UpdateCaseContact(ctx context.Context, caseID string, contact *Contact) error

	// GetSubscription resolves the subscription binding a program to a team.
	GetSubscription(ctx context.Context, programCode, teamCode string) (*Subscription, error)

	ListAdmissions(ctx context.Context, caseID, subscriptionID string) ([]*Admission, error)
	CreateAdmission(ctx context.Context, caseID, subscriptionID, admissionDate string) (*Admission, error)
	GetAdmission(ctx context.Context, admissionID string) (*Admission, error)
	DischargeAdmission(ctx context.Context, admissionID, dischargeDate string) error
	SetAdmissionDischargeDate(ctx context.Context, admissionID, dischargeDate string) error

	ListTasks(ctx context.Context, caseID, taskCode string) ([]*Task, error)
	InsertTask(ctx context.Context, admissionID, taskCode string) (*Task, error)

	// GetTaskForm returns the named form of a task with all its questions.
	GetTaskForm(ctx context.Context, taskID, formCode string) (*Form, error)
	// SetFormAnswers writes the full answer set of a form in one call.
	SetFormAnswers(ctx context.Context, formID string, answers []Answer) error
}
