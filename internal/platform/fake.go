package platform

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/medlink/hospital-sync/pkg/errors"
)

// Fake is an in-memory Client for tests. Forms grow their question set as
// answers are written, the way the platform materializes table rows.
type Fake struct {
	mu     sync.Mutex
	nextID int

	Cases      map[string]*Case
	Subs       []*Subscription
	Admissions map[string]*Admission
	Tasks      map[string]*Task
	Forms      map[string]*Form // keyed task-id/form-code

	// Fail injects an error for the named method ("CreateCase", ...).
	Fail map[string]error
}

// NewFake returns an empty fake platform.
func NewFake() *Fake {
	return &Fake{
		Cases:      make(map[string]*Case),
		Admissions: make(map[string]*Admission),
		Tasks:      make(map[string]*Task),
		Forms:      make(map[string]*Form),
		Fail:       make(map[string]error),
	}
}

// AddSubscription registers a resolvable program/team pair.
func (f *Fake) AddSubscription(programCode, teamCode string) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &Subscription{ID: f.id("SUB"), ProgramCode: programCode, TeamCode: teamCode}
	f.Subs = append(f.Subs, sub)
	return sub
}

func (f *Fake) id(prefix string) string {
	f.nextID++
	return prefix + strconv.Itoa(f.nextID)
}

func (f *Fake) failure(method string) error {
	if err, ok := f.Fail[method]; ok {
		return err
	}
	return nil
}

func (f *Fake) FindCaseByIdentifier(ctx context.Context, name, value string) (*Case, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("FindCaseByIdentifier"); err != nil {
		return nil, err
	}
	for _, c := range f.Cases {
		if c.Contact.Find(name) == value {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *Fake) CreateCase(ctx context.Context, c *Case) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateCase"); err != nil {
		return "", err
	}
	cp := *c
	cp.ID = f.id("CASE")
	f.Cases[cp.ID] = &cp
	return cp.ID, nil
}

func (f *Fake) UpdateCaseContact(ctx context.Context, caseID string, contact *Contact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("UpdateCaseContact"); err != nil {
		return err
	}
	c, ok := f.Cases[caseID]
	if !ok {
		return errors.RemoteAPI("CASE_NOT_FOUND", caseID)
	}
	c.Contact = *contact
	return nil
}

func (f *Fake) GetSubscription(ctx context.Context, programCode, teamCode string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetSubscription"); err != nil {
		return nil, err
	}
	for _, s := range f.Subs {
		if s.ProgramCode == programCode && s.TeamCode == teamCode {
			cp := *s
			return &cp, nil
		}
	}
	return nil, errors.RemoteAPI("SUBSCRIPTION_NOT_FOUND",
		fmt.Sprintf("no subscription for program %s and team %s", programCode, teamCode))
}

func (f *Fake) ListAdmissions(ctx context.Context, caseID, subscriptionID string) ([]*Admission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ListAdmissions"); err != nil {
		return nil, err
	}
	var out []*Admission
	for _, a := range f.Admissions {
		if a.CaseID == caseID && a.SubscriptionID == subscriptionID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *Fake) CreateAdmission(ctx context.Context, caseID, subscriptionID, admissionDate string) (*Admission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateAdmission"); err != nil {
		return nil, err
	}
	a := &Admission{
		ID:             f.id("ADM"),
		CaseID:         caseID,
		SubscriptionID: subscriptionID,
		Status:         AdmissionActive,
		EnrolDate:      admissionDate,
		AdmissionDate:  admissionDate,
	}
	f.Admissions[a.ID] = a
	cp := *a
	return &cp, nil
}

func (f *Fake) GetAdmission(ctx context.Context, admissionID string) (*Admission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetAdmission"); err != nil {
		return nil, err
	}
	a, ok := f.Admissions[admissionID]
	if !ok {
		return nil, errors.RemoteAPI("ADMISSION_NOT_FOUND", admissionID)
	}
	cp := *a
	return &cp, nil
}

func (f *Fake) DischargeAdmission(ctx context.Context, admissionID, dischargeDate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DischargeAdmission"); err != nil {
		return err
	}
	a, ok := f.Admissions[admissionID]
	if !ok {
		return errors.RemoteAPI("ADMISSION_NOT_FOUND", admissionID)
	}
	a.Status = AdmissionDischarged
	a.DischargeDate = dischargeDate
	return nil
}

func (f *Fake) SetAdmissionDischargeDate(ctx context.Context, admissionID, dischargeDate string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("SetAdmissionDischargeDate"); err != nil {
		return err
	}
	a, ok := f.Admissions[admissionID]
	if !ok {
		return errors.RemoteAPI("ADMISSION_NOT_FOUND", admissionID)
	}
	a.DischargeDate = dischargeDate
	return nil
}

func (f *Fake) ListTasks(ctx context.Context, caseID, taskCode string) ([]*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ListTasks"); err != nil {
		return nil, err
	}
	var out []*Task
	for _, t := range f.Tasks {
		if t.CaseID == caseID && t.Code == taskCode {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *Fake) InsertTask(ctx context.Context, admissionID, taskCode string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("InsertTask"); err != nil {
		return nil, err
	}
	a, ok := f.Admissions[admissionID]
	if !ok {
		return nil, errors.RemoteAPI("ADMISSION_NOT_FOUND", admissionID)
	}
	t := &Task{
		ID:          f.id("TASK"),
		CaseID:      a.CaseID,
		AdmissionID: admissionID,
		Code:        taskCode,
		Status:      "OPEN",
	}
	f.Tasks[t.ID] = t
	cp := *t
	return &cp, nil
}

func (f *Fake) GetTaskForm(ctx context.Context, taskID, formCode string) (*Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetTaskForm"); err != nil {
		return nil, err
	}
	if _, ok := f.Tasks[taskID]; !ok {
		return nil, errors.RemoteAPI("TASK_NOT_FOUND", taskID)
	}
	key := taskID + "/" + formCode
	form, ok := f.Forms[key]
	if !ok {
		form = &Form{ID: f.id("FORM"), TaskID: taskID, Code: formCode}
		f.Forms[key] = form
	}
	cp := *form
	cp.Questions = append([]Question(nil), form.Questions...)
	return &cp, nil
}

func (f *Fake) SetFormAnswers(ctx context.Context, formID string, answers []Answer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("SetFormAnswers"); err != nil {
		return err
	}
	for _, form := range f.Forms {
		if form.ID != formID {
			continue
		}
		for _, a := range answers {
			if q := f.findQuestion(form, a.Code, a.Row); q != nil {
				q.Value = a.Value
				continue
			}
			form.Questions = append(form.Questions, Question{
				ID:    f.id("Q"),
				Code:  a.Code,
				Row:   a.Row,
				Value: a.Value,
			})
		}
		return nil
	}
	return errors.RemoteAPI("FORM_NOT_FOUND", formID)
}

func (f *Fake) findQuestion(form *Form, code string, row int) *Question {
	for i := range form.Questions {
		if form.Questions[i].Code == code && form.Questions[i].Row == row {
			return &form.Questions[i]
		}
	}
	return nil
}

var _ Client = (*Fake)(nil)
