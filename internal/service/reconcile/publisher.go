package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/medlink/hospital-sync/internal/config"
	"github.com/medlink/hospital-sync/internal/model"
	"github.com/medlink/hospital-sync/internal/notify"
	"github.com/medlink/hospital-sync/internal/platform"
	"github.com/medlink/hospital-sync/pkg/logger"
)

// Platform artifacts used by the publish flow.
const (
	// TaskCodeImport is the task type holding the episode import form; one
	// such task exists per imported admission.
	TaskCodeImport = "EPISODE_IMPORT"
	// FormCodeImport is the import form inside the task.
	FormCodeImport = "EPISODE_DATA"
	// CaseIdentifierName is the external identifier linking a platform case
	// to the hospital patient number.
	CaseIdentifierName = "HOSPITAL_PATIENT_ID"
	// IdentifierNationalID is the identifier for a national id card.
	IdentifierNationalID = "NAT_ID"
	// IdentifierPassport is the identifier for a passport.
	IdentifierPassport = "PASSPORT"

	defaultPhonePrefix = "+86"
)

// Publisher projects one consolidated episode onto the platform.
type Publisher struct {
	client   platform.Client
	notifier *notify.Notifier
	cfg      config.SyncConfig
	logger   *logger.Logger

	acute    *platform.Subscription
	followUp *platform.Subscription

	now func() time.Time
}

func NewPublisher(client platform.Client, notifier *notify.Notifier, cfg config.SyncConfig, log *logger.Logger) *Publisher {
	return &Publisher{
		client:   client,
		notifier: notifier,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
	}
}

// Init resolves the acute and follow-up subscriptions. Failure here is fatal
// for the whole reconcile run: without subscriptions nothing can be admitted.
func (p *Publisher) Init(ctx context.Context) error {
	acute, err := p.client.GetSubscription(ctx, p.cfg.AcuteProgramCode, p.cfg.TeamCode)
	if err != nil {
		return fmt.Errorf("failed to resolve acute subscription: %w", err)
	}
	followUp, err := p.client.GetSubscription(ctx, p.cfg.FollowUpProgramCode, p.cfg.TeamCode)
	if err != nil {
		return fmt.Errorf("failed to resolve follow-up subscription: %w", err)
	}
	p.acute = acute
	p.followUp = followUp
	return nil
}

// Publish runs the full projection for one episode. The first failing step
// aborts the episode; the caller marks all its fragments FAILED and continues
// with the next episode.
func (p *Publisher) Publish(ctx context.Context, episode *model.PatientEpisode) error {
	caseID, err := p.resolveCase(ctx, episode)
	if err != nil {
		return err
	}

	form, admissionID, err := p.resolveImportForm(ctx, caseID, episode)
	if err != nil {
		return err
	}

	if err := p.client.SetFormAnswers(ctx, form.ID, p.buildAnswers(episode)); err != nil {
		return fmt.Errorf("failed to write episode answers: %w", err)
	}

	if err := p.applyDischarge(ctx, admissionID, episode); err != nil {
		return err
	}

	followUpAdm, followUpIsNew, err := p.resolveFollowUp(ctx, caseID, form, episode)
	if err != nil {
		return err
	}

	if episode.HasChanges() && followUpAdm != nil && !followUpIsNew && followUpAdm.Active() {
		summary := episode.ChangeSummary()
		if err := p.notifier.NotifyChange(ctx, episode, summary); err != nil {
			return err
		}
		p.logger.Info("episode change notified",
			"patient", episode.PatientID, "episode", episode.EpisodeID, "summary", summary)
	}
	return nil
}

// resolveCase finds the platform case by the hospital patient number and
// creates it when absent. Contact details are rewritten idempotently.
func (p *Publisher) resolveCase(ctx context.Context, episode *model.PatientEpisode) (string, error) {
	contact := p.buildContact(episode)

	existing, err := p.client.FindCaseByIdentifier(ctx, CaseIdentifierName, episode.PatientID)
	if err != nil {
		return "", fmt.Errorf("failed to search case: %w", err)
	}
	if existing != nil {
		merged := mergeContact(existing.Contact, contact)
		if err := p.client.UpdateCaseContact(ctx, existing.ID, &merged); err != nil {
			return "", fmt.Errorf("failed to update case contact: %w", err)
		}
		return existing.ID, nil
	}

	caseID, err := p.client.CreateCase(ctx, &platform.Case{
		FullName:  episode.Name,
		BirthDate: episode.BirthDate,
		Gender:    episode.Sex,
		Contact:   contact,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create case: %w", err)
	}
	return caseID, nil
}

func (p *Publisher) buildContact(episode *model.PatientEpisode) platform.Contact {
	contact := platform.Contact{
		Phone:   normalizePhone(episode.Phone),
		Address: episode.Address,
		Nation:  episode.Nationality,
		Identifiers: []platform.Identifier{
			{Name: CaseIdentifierName, Value: episode.PatientID},
		},
	}
	if name := identifierNameForCardType(episode.IDCardType); name != "" && episode.IDCard != "" {
		contact.Identifiers = append(contact.Identifiers, platform.Identifier{Name: name, Value: episode.IDCard})
	}
	return contact
}

// mergeContact keeps identifiers the bridge does not manage.
func mergeContact(existing, incoming platform.Contact) platform.Contact {
	merged := incoming
	managed := make(map[string]bool, len(incoming.Identifiers))
	for _, id := range incoming.Identifiers {
		managed[id.Name] = true
	}
	for _, id := range existing.Identifiers {
		if !managed[id.Name] {
			merged.Identifiers = append(merged.Identifiers, id)
		}
	}
	return merged
}

// resolveImportForm locates the admission holding this episode by scanning
// import tasks for a form whose episode-id question matches, creating the
// admission and task on first import.
func (p *Publisher) resolveImportForm(ctx context.Context, caseID string, episode *model.PatientEpisode) (*platform.Form, string, error) {
	tasks, err := p.client.ListTasks(ctx, caseID, TaskCodeImport)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list import tasks: %w", err)
	}

	for _, task := range tasks {
		form, err := p.client.GetTaskForm(ctx, task.ID, FormCodeImport)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read import form of task %s: %w", task.ID, err)
		}
		if q := form.FindQuestion(model.CodeEpisodeID); q != nil && q.Value == episode.EpisodeID {
			return form, task.AdmissionID, nil
		}
	}

	admission, err := p.client.CreateAdmission(ctx, caseID, p.acute.ID, episode.AdmissionTime)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create admission: %w", err)
	}
	task, err := p.client.InsertTask(ctx, admission.ID, TaskCodeImport)
	if err != nil {
		return nil, "", fmt.Errorf("failed to insert import task: %w", err)
	}
	form, err := p.client.GetTaskForm(ctx, task.ID, FormCodeImport)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read import form of task %s: %w", task.ID, err)
	}
	return form, admission.ID, nil
}

// buildAnswers renders the full consolidated field set; every publish writes
// every answer so the form always mirrors the staging store.
func (p *Publisher) buildAnswers(episode *model.PatientEpisode) []platform.Answer {
	var answers []platform.Answer
	add := func(code, value string) {
		answers = append(answers, platform.Answer{Code: code, Value: value})
	}
	addRow := func(code string, row int, value string) {
		answers = append(answers, platform.Answer{Code: code, Row: row, Value: value})
	}

	add(model.CodePatientID, episode.PatientID)
	add(model.CodeMedicalRecordNum, episode.MedicalRecordNumber)
	add(model.CodeEpisodeID, episode.EpisodeID)
	add(model.CodeVisitNumber, episode.VisitNumber)
	add(model.CodeLastImport, p.now().Format(model.ClinicalTimeLayout))
	add(model.CodeLastUpdate, episode.UpdateTime)
	add(model.CodeSource, model.SourceSystemValue)

	add(model.CodeEthnicity, episode.Ethnicity)
	add(model.CodeIDCard, episode.IDCard)
	add(model.CodeIDCardType, episode.IDCardType)
	add(model.CodePhone, normalizePhone(episode.Phone))
	add(model.CodeMaritalStatus, episode.MaritalStatus)
	add(model.CodeProfession, episode.Profession)
	add(model.CodeContactName, episode.ContactName)
	add(model.CodeRelation, episode.Relation)
	add(model.CodeRelationship, relationshipCode(episode.Relation))
	add(model.CodeRelativeFamily, relativeFamilyCode(episode.Relation))
	add(model.CodeContactPhone, normalizePhone(episode.ContactPhone))
	add(model.CodeDrugAllergy, episode.DrugAllergy)

	doctorName, doctorCode := splitNameCode(episode.Doctor)
	addRow(model.CodeAdmissionTime, 1, episode.AdmissionTime)
	addRow(model.CodeAdmissionDepartment, 1, episode.AdmissionDepartment)
	addRow(model.CodeAdmissionDiagnosis, 1, episode.AdmissionDiagnosis)
	addRow(model.CodeHospitalAdmission, 1, episode.HospitalAdmission)
	addRow(model.CodeDischargeTime, 1, episode.DischargeTime)
	addRow(model.CodeDischargeDepartment, 1, episode.DischargeDepartment)
	addRow(model.CodeDischargeStatus, 1, episode.DischargeStatus)
	addRow(model.CodeDischargeSituation, 1, episode.DischargeSituation)
	addRow(model.CodeDischargeInstruction, 1, episode.DischargeInstructions)
	addRow(model.CodeDoctor, 1, doctorName)
	addRow(model.CodeDoctorCode, 1, doctorCode)
	addRow(model.CodeResponsibleNurse, 1, episode.ResponsibleNurse)

	add(model.CodeMainDiagnosisCode, episode.MainDiagnosisCode)
	add(model.CodeMainDiagnosis, episode.MainDiagnosis)
	for i, diag := range episode.Diagnoses() {
		addRow(model.CodeOtherDiagnosisCode, i+1, diag.Code)
		addRow(model.CodeOtherDiagnosis, i+1, diag.Name)
	}

	for i, proc := range episode.Procedures() {
		row := i + 1
		surgeonName, surgeonCode := splitNameCode(proc.Surgeon)
		addRow(model.CodeOperationID, row, proc.Key)
		addRow(model.CodeProcessOrder, row, proc.ProcessOrder)
		addRow(model.CodeOperationDate, row, proc.Date)
		addRow(model.CodeOperationLevel, row, proc.Level)
		addRow(model.CodeOperationSurgeon, row, surgeonName)
		addRow(model.CodeOperationSurgeonC, row, surgeonCode)
		addRow(model.CodeOperationType, row, proc.Type)
		addRow(model.CodeOperationCode, row, proc.Code)
		addRow(model.CodeOperationName, row, proc.Name)
		addRow(model.CodeOperationNotes1, row, proc.Name1)
		addRow(model.CodeOperationNotes2, row, proc.Name2)
		addRow(model.CodeOperationNotes3, row, proc.Name3)
		addRow(model.CodeOperationNotes4, row, proc.Name4)
	}

	return answers
}

// applyDischarge propagates the discharge state onto the acute admission.
// Episodes discharged before the configured cutoff are historical: they are
// closed on import. Later discharges leave the admission active so the care
// team drives the lifecycle itself. A changed discharge date on an already
// discharged admission is always corrected, whatever side of the cutoff.
func (p *Publisher) applyDischarge(ctx context.Context, admissionID string, episode *model.PatientEpisode) error {
	if episode.DischargeTime == "" {
		return nil
	}

	admission, err := p.client.GetAdmission(ctx, admissionID)
	if err != nil {
		return fmt.Errorf("failed to read admission %s: %w", admissionID, err)
	}

	if !admission.Discharged() {
		if p.cfg.DischargeDateThreshold == "" || episode.DischargeTime < p.cfg.DischargeDateThreshold {
			if err := p.client.DischargeAdmission(ctx, admission.ID, episode.DischargeTime); err != nil {
				return fmt.Errorf("failed to discharge admission %s: %w", admission.ID, err)
			}
		}
		return nil
	}
	if admission.DischargeDate != episode.DischargeTime {
		if err := p.client.SetAdmissionDischargeDate(ctx, admission.ID, episode.DischargeTime); err != nil {
			return fmt.Errorf("failed to correct discharge date of admission %s: %w", admission.ID, err)
		}
	}
	return nil
}

// resolveFollowUp maintains the admission in the follow-up subscription for
// episodes that are active or recently discharged. Returns (nil, false, nil)
// when the episode is out of the follow-up window.
func (p *Publisher) resolveFollowUp(ctx context.Context, caseID string, form *platform.Form, episode *model.PatientEpisode) (*platform.Admission, bool, error) {
	if !p.inFollowUpWindow(episode) {
		return nil, false, nil
	}

	// A previously linked follow-up admission is stored on the import form.
	if q := form.FindQuestion(model.CodeFollowUpAdmission); q != nil && q.Value != "" {
		admission, err := p.client.GetAdmission(ctx, q.Value)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read linked follow-up admission %s: %w", q.Value, err)
		}
		return admission, false, nil
	}

	admissions, err := p.client.ListAdmissions(ctx, caseID, p.followUp.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list follow-up admissions: %w", err)
	}
	for _, admission := range admissions {
		// An admission enrolled at or after this hospitalization is the same
		// follow-up episode; an older discharged one is history.
		if !admission.Discharged() || admission.EnrolDate >= episode.AdmissionTime {
			return p.linkFollowUp(ctx, form, admission, false)
		}
	}

	created, err := p.client.CreateAdmission(ctx, caseID, p.followUp.ID, episode.AdmissionTime)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create follow-up admission: %w", err)
	}
	return p.linkFollowUp(ctx, form, created, true)
}

func (p *Publisher) linkFollowUp(ctx context.Context, form *platform.Form, admission *platform.Admission, isNew bool) (*platform.Admission, bool, error) {
	err := p.client.SetFormAnswers(ctx, form.ID, []platform.Answer{
		{Code: model.CodeFollowUpAdmission, Value: admission.ID},
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to link follow-up admission %s: %w", admission.ID, err)
	}
	return admission, isNew, nil
}

func (p *Publisher) inFollowUpWindow(episode *model.PatientEpisode) bool {
	if episode.DischargeTime == "" {
		return true
	}
	discharged, err := model.ParseClinicalTime(episode.DischargeTime)
	if err != nil {
		return false
	}
	return p.now().Sub(discharged) <= p.cfg.RecentDischargeWindow
}

func splitNameCode(v string) (name, code string) {
	name, code, _ = strings.Cut(v, "/")
	return strings.TrimSpace(name), strings.TrimSpace(code)
}

func normalizePhone(phone string) string {
	phone = strings.ReplaceAll(strings.TrimSpace(phone), " ", "")
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return defaultPhonePrefix + phone
}

func identifierNameForCardType(cardType string) string {
	switch strings.TrimSpace(cardType) {
	case "01", "居民身份证":
		return IdentifierNationalID
	case "03", "护照":
		return IdentifierPassport
	}
	return ""
}

func relationshipCode(relation string) string {
	switch strings.TrimSpace(relation) {
	case "":
		return ""
	case "配偶", "夫", "妻":
		return "SPOUSE"
	case "子", "儿子", "女", "女儿":
		return "CHILD"
	case "父", "母", "父母", "父亲", "母亲":
		return "PARENT"
	case "兄", "弟", "姐", "妹", "兄弟", "姐妹":
		return "SIBLING"
	}
	return "OTHER"
}

func relativeFamilyCode(relation string) string {
	switch relationshipCode(relation) {
	case "":
		return ""
	case "OTHER":
		return "2"
	}
	return "1"
}
