package platform

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"github.com/medlink/hospital-sync/internal/config"
	"github.com/medlink/hospital-sync/pkg/errors"
	"github.com/medlink/hospital-sync/pkg/logger"
)

// SOAPClient implements Client over the platform's XML envelope API. A
// session token is negotiated lazily on first use and reused until the server
// rejects it. Form and subscription lookups are cached (go-cache) because the
// publish pipeline re-reads the same form several times per episode.
type SOAPClient struct {
	baseURL  string
	user     string
	password string
	http     *http.Client
	logger   *logger.Logger

	mu      sync.Mutex
	session string

	cache *gocache.Cache
}

// NewSOAPClient builds the production platform client.
func NewSOAPClient(cfg config.PlatformConfig, log *logger.Logger) *SOAPClient {
	return &SOAPClient{
		baseURL:  cfg.BaseURL,
		user:     cfg.User,
		password: cfg.Password,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   log,
		cache:    gocache.New(cfg.FieldCacheTTL, 2*cfg.FieldCacheTTL),
	}
}

type param struct {
	name  string
	value string
	raw   bool // value is pre-built inner XML, not text
}

// remoteResult is embedded in every response struct; a non-empty error code
// marks a business rejection by the platform.
type remoteResult struct {
	ErrorCode string `xml:"ErrorCode"`
	ErrorMsg  string `xml:"ErrorMsg"`
}

func (r remoteResult) remoteError() error {
	if r.ErrorCode != "" {
		return errors.RemoteAPI(r.ErrorCode, r.ErrorMsg)
	}
	return nil
}

type fallible interface {
	remoteError() error
}

type responseEnvelope struct {
	Body struct {
		Inner []byte `xml:",innerxml"`
	} `xml:"Body"`
}

func escape(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

func (c *SOAPClient) buildEnvelope(action, session string, params []param) []byte {
	var b bytes.Buffer
	b.WriteString(xml.Header)
	b.WriteString(`<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/"><SOAP-ENV:Body>`)
	fmt.Fprintf(&b, "<%s>", action)
	if session != "" {
		fmt.Fprintf(&b, "<session>%s</session>", escape(session))
	}
	for _, p := range params {
		if p.raw {
			fmt.Fprintf(&b, "<%s>%s</%s>", p.name, p.value, p.name)
		} else {
			fmt.Fprintf(&b, "<%s>%s</%s>", p.name, escape(p.value), p.name)
		}
	}
	fmt.Fprintf(&b, "</%s>", action)
	b.WriteString(`</SOAP-ENV:Body></SOAP-ENV:Envelope>`)
	return b.Bytes()
}

func (c *SOAPClient) post(ctx context.Context, action string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return errors.Unexpected(err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", action)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Communication(fmt.Sprintf("platform unreachable at %s", c.baseURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Communication(fmt.Sprintf("platform returned HTTP %d on %s", resp.StatusCode, action), nil)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Communication("failed to read platform response", err)
	}

	var env responseEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return errors.MalformedResponse(fmt.Sprintf("platform %s response is not a valid envelope", action), err)
	}
	if err := xml.Unmarshal(env.Body.Inner, out); err != nil {
		return errors.MalformedResponse(fmt.Sprintf("platform %s response body has unexpected shape", action), err)
	}
	if f, ok := out.(fallible); ok {
		if rerr := f.remoteError(); rerr != nil {
			return rerr
		}
	}
	return nil
}

type sessionInitResponse struct {
	XMLName xml.Name `xml:"session_initResponse"`
	remoteResult
	Session string `xml:"session"`
}

func (c *SOAPClient) ensureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != "" {
		return c.session, nil
	}

	var out sessionInitResponse
	body := c.buildEnvelope("session_init", "", []param{
		{name: "user", value: c.user},
		{name: "password", value: c.password},
	})
	if err := c.post(ctx, "session_init", body, &out); err != nil {
		return "", err
	}
	if out.Session == "" {
		return "", errors.MalformedResponse("platform session_init returned no session token", nil)
	}
	c.session = out.Session
	c.logger.Debug("platform session established")
	return c.session, nil
}

func (c *SOAPClient) call(ctx context.Context, action string, params []param, out interface{}) error {
	session, err := c.ensureSession(ctx)
	if err != nil {
		return err
	}
	return c.post(ctx, action, c.buildEnvelope(action, session, params), out)
}

type caseXML struct {
	Ref       string          `xml:"ref"`
	FullName  string          `xml:"full_name"`
	BirthDate string          `xml:"birthdate"`
	Gender    string          `xml:"gender"`
	Phone     string          `xml:"phone"`
	Address   string          `xml:"address"`
	Nation    string          `xml:"nation"`
	IDs       []identifierXML `xml:"identifiers>identifier"`
}

type identifierXML struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

func (x *caseXML) toCase() *Case {
	cs := &Case{
		ID:        x.Ref,
		FullName:  x.FullName,
		BirthDate: x.BirthDate,
		Gender:    x.Gender,
		Contact: Contact{
			Phone:   x.Phone,
			Address: x.Address,
			Nation:  x.Nation,
		},
	}
	for _, id := range x.IDs {
		cs.Contact.Identifiers = append(cs.Contact.Identifiers, Identifier{Name: id.Name, Value: id.Value})
	}
	return cs
}

type caseSearchResponse struct {
	XMLName xml.Name `xml:"case_searchResponse"`
	remoteResult
	Case *caseXML `xml:"case"`
}

func (c *SOAPClient) FindCaseByIdentifier(ctx context.Context, name, value string) (*Case, error) {
	var out caseSearchResponse
	err := c.call(ctx, "case_search", []param{
		{name: "identifier_name", value: name},
		{name: "identifier_value", value: value},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Case == nil || out.Case.Ref == "" {
		return nil, nil
	}
	return out.Case.toCase(), nil
}

type caseInsertResponse struct {
	XMLName xml.Name `xml:"case_insertResponse"`
	remoteResult
	Ref string `xml:"ref"`
}

func (c *SOAPClient) CreateCase(ctx context.Context, cs *Case) (string, error) {
	var out caseInsertResponse
	err := c.call(ctx, "case_insert", []param{
		{name: "full_name", value: cs.FullName},
		{name: "birthdate", value: cs.BirthDate},
		{name: "gender", value: cs.Gender},
		{name: "phone", value: cs.Contact.Phone},
		{name: "address", value: cs.Contact.Address},
		{name: "nation", value: cs.Contact.Nation},
		{name: "identifiers", value: identifiersXML(cs.Contact.Identifiers), raw: true},
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Ref == "" {
		return "", errors.MalformedResponse("platform case_insert returned no case reference", nil)
	}
	return out.Ref, nil
}

type caseSetContactResponse struct {
	XMLName xml.Name `xml:"case_set_contactResponse"`
	remoteResult
}

func (c *SOAPClient) UpdateCaseContact(ctx context.Context, caseID string, contact *Contact) error {
	var out caseSetContactResponse
	return c.call(ctx, "case_set_contact", []param{
		{name: "case", value: caseID},
		{name: "phone", value: contact.Phone},
		{name: "address", value: contact.Address},
		{name: "nation", value: contact.Nation},
		{name: "identifiers", value: identifiersXML(contact.Identifiers), raw: true},
	}, &out)
}

func identifiersXML(ids []Identifier) string {
	var b bytes.Buffer
	for _, id := range ids {
		fmt.Fprintf(&b, "<identifier><name>%s</name><value>%s</value></identifier>",
			escape(id.Name), escape(id.Value))
	}
	return b.String()
}

type subscriptionXML struct {
	Ref     string `xml:"ref"`
	Program string `xml:"program"`
	Team    string `xml:"team"`
}

type subscriptionListResponse struct {
	XMLName xml.Name `xml:"subscription_listResponse"`
	remoteResult
	Subscriptions []subscriptionXML `xml:"subscriptions>subscription"`
}

func (c *SOAPClient) GetSubscription(ctx context.Context, programCode, teamCode string) (*Subscription, error) {
	cacheKey := "subscription:" + programCode + ":" + teamCode
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(*Subscription), nil
	}

	var out subscriptionListResponse
	err := c.call(ctx, "subscription_list", []param{
		{name: "program", value: programCode},
		{name: "team", value: teamCode},
	}, &out)
	if err != nil {
		return nil, err
	}

	for _, s := range out.Subscriptions {
		if s.Program == programCode && s.Team == teamCode {
			sub := &Subscription{ID: s.Ref, ProgramCode: s.Program, TeamCode: s.Team}
			c.cache.SetDefault(cacheKey, sub)
			return sub, nil
		}
	}
	return nil, errors.RemoteAPI("SUBSCRIPTION_NOT_FOUND",
		fmt.Sprintf("no subscription for program %s and team %s", programCode, teamCode))
}

type admissionXML struct {
	Ref           string `xml:"ref"`
	Case          string `xml:"case"`
	Subscription  string `xml:"subscription"`
	Status        string `xml:"status"`
	EnrolDate     string `xml:"enrol_date"`
	AdmissionDate string `xml:"admission_date"`
	DischargeDate string `xml:"discharge_date"`
}

func (x *admissionXML) toAdmission() *Admission {
	return &Admission{
		ID:             x.Ref,
		CaseID:         x.Case,
		SubscriptionID: x.Subscription,
		Status:         x.Status,
		EnrolDate:      x.EnrolDate,
		AdmissionDate:  x.AdmissionDate,
		DischargeDate:  x.DischargeDate,
	}
}

type admissionListResponse struct {
	XMLName xml.Name `xml:"admission_listResponse"`
	remoteResult
	Admissions []admissionXML `xml:"admissions>admission"`
}

func (c *SOAPClient) ListAdmissions(ctx context.Context, caseID, subscriptionID string) ([]*Admission, error) {
	var out admissionListResponse
	err := c.call(ctx, "admission_list", []param{
		{name: "case", value: caseID},
		{name: "subscription", value: subscriptionID},
	}, &out)
	if err != nil {
		return nil, err
	}
	admissions := make([]*Admission, 0, len(out.Admissions))
	for i := range out.Admissions {
		admissions = append(admissions, out.Admissions[i].toAdmission())
	}
	return admissions, nil
}

type admissionCreateResponse struct {
	XMLName xml.Name `xml:"admission_createResponse"`
	remoteResult
	Admission *admissionXML `xml:"admission"`
}

func (c *SOAPClient) CreateAdmission(ctx context.Context, caseID, subscriptionID, admissionDate string) (*Admission, error) {
	var out admissionCreateResponse
	err := c.call(ctx, "admission_create", []param{
		{name: "case", value: caseID},
		{name: "subscription", value: subscriptionID},
		{name: "admission_date", value: admissionDate},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Admission == nil || out.Admission.Ref == "" {
		return nil, errors.MalformedResponse("platform admission_create returned no admission", nil)
	}
	return out.Admission.toAdmission(), nil
}

type admissionGetResponse struct {
	XMLName xml.Name `xml:"admission_getResponse"`
	remoteResult
	Admission *admissionXML `xml:"admission"`
}

func (c *SOAPClient) GetAdmission(ctx context.Context, admissionID string) (*Admission, error) {
	var out admissionGetResponse
	err := c.call(ctx, "admission_get", []param{
		{name: "admission", value: admissionID},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Admission == nil || out.Admission.Ref == "" {
		return nil, errors.MalformedResponse("platform admission_get returned no admission", nil)
	}
	return out.Admission.toAdmission(), nil
}

type admissionDischargeResponse struct {
	XMLName xml.Name `xml:"admission_dischargeResponse"`
	remoteResult
}

func (c *SOAPClient) DischargeAdmission(ctx context.Context, admissionID, dischargeDate string) error {
	var out admissionDischargeResponse
	return c.call(ctx, "admission_discharge", []param{
		{name: "admission", value: admissionID},
		{name: "discharge_date", value: dischargeDate},
	}, &out)
}

type admissionSetDischargeDateResponse struct {
	XMLName xml.Name `xml:"admission_set_discharge_dateResponse"`
	remoteResult
}

func (c *SOAPClient) SetAdmissionDischargeDate(ctx context.Context, admissionID, dischargeDate string) error {
	var out admissionSetDischargeDateResponse
	return c.call(ctx, "admission_set_discharge_date", []param{
		{name: "admission", value: admissionID},
		{name: "discharge_date", value: dischargeDate},
	}, &out)
}

type taskXML struct {
	Ref       string `xml:"ref"`
	Case      string `xml:"case"`
	Admission string `xml:"admission"`
	Code      string `xml:"code"`
	Date      string `xml:"date"`
	Status    string `xml:"status"`
}

func (x *taskXML) toTask() *Task {
	return &Task{
		ID:          x.Ref,
		CaseID:      x.Case,
		AdmissionID: x.Admission,
		Code:        x.Code,
		Date:        x.Date,
		Status:      x.Status,
	}
}

type taskListResponse struct {
	XMLName xml.Name `xml:"task_listResponse"`
	remoteResult
	Tasks []taskXML `xml:"tasks>task"`
}

func (c *SOAPClient) ListTasks(ctx context.Context, caseID, taskCode string) ([]*Task, error) {
	var out taskListResponse
	err := c.call(ctx, "task_list", []param{
		{name: "case", value: caseID},
		{name: "task_code", value: taskCode},
	}, &out)
	if err != nil {
		return nil, err
	}
	tasks := make([]*Task, 0, len(out.Tasks))
	for i := range out.Tasks {
		tasks = append(tasks, out.Tasks[i].toTask())
	}
	return tasks, nil
}

type taskInsertResponse struct {
	XMLName xml.Name `xml:"task_insertResponse"`
	remoteResult
	Task *taskXML `xml:"task"`
}

func (c *SOAPClient) InsertTask(ctx context.Context, admissionID, taskCode string) (*Task, error) {
	var out taskInsertResponse
	err := c.call(ctx, "task_insert", []param{
		{name: "admission", value: admissionID},
		{name: "task_code", value: taskCode},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Task == nil || out.Task.Ref == "" {
		return nil, errors.MalformedResponse("platform task_insert returned no task", nil)
	}
	return out.Task.toTask(), nil
}

type questionXML struct {
	Ref   string `xml:"ref"`
	Code  string `xml:"code"`
	Row   int    `xml:"row"`
	Value string `xml:"value"`
}

type formXML struct {
	Ref       string        `xml:"ref"`
	Task      string        `xml:"task"`
	Code      string        `xml:"code"`
	Questions []questionXML `xml:"questions>question"`
}

type formGetResponse struct {
	XMLName xml.Name `xml:"form_getResponse"`
	remoteResult
	Form *formXML `xml:"form"`
}

func (c *SOAPClient) GetTaskForm(ctx context.Context, taskID, formCode string) (*Form, error) {
	cacheKey := "form:" + taskID + ":" + formCode
	if cached, ok := c.cache.Get(cacheKey); ok {
		return cached.(*Form), nil
	}

	var out formGetResponse
	err := c.call(ctx, "form_get", []param{
		{name: "task", value: taskID},
		{name: "form_code", value: formCode},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Form == nil || out.Form.Ref == "" {
		return nil, errors.MalformedResponse(fmt.Sprintf("platform form_get found no %s form on task %s", formCode, taskID), nil)
	}

	form := &Form{ID: out.Form.Ref, TaskID: out.Form.Task, Code: out.Form.Code}
	for _, q := range out.Form.Questions {
		form.Questions = append(form.Questions, Question{ID: q.Ref, Code: q.Code, Row: q.Row, Value: q.Value})
	}
	c.cache.SetDefault(cacheKey, form)
	return form, nil
}

type formSetAllAnswersResponse struct {
	XMLName xml.Name `xml:"form_set_all_answersResponse"`
	remoteResult
}

func (c *SOAPClient) SetFormAnswers(ctx context.Context, formID string, answers []Answer) error {
	var b bytes.Buffer
	for _, a := range answers {
		b.WriteString("<answer>")
		fmt.Fprintf(&b, "<question>%s</question>", escape(a.QuestionID))
		fmt.Fprintf(&b, "<code>%s</code>", escape(a.Code))
		fmt.Fprintf(&b, "<row>%s</row>", strconv.Itoa(a.Row))
		fmt.Fprintf(&b, "<value>%s</value>", escape(a.Value))
		b.WriteString("</answer>")
	}

	var out formSetAllAnswersResponse
	err := c.call(ctx, "form_set_all_answers", []param{
		{name: "form", value: formID},
		{name: "answers", value: b.String(), raw: true},
	}, &out)
	if err != nil {
		return err
	}

	// Written answers invalidate any cached copy of the form.
	c.cache.Flush()
	return nil
}

var _ Client = (*SOAPClient)(nil)
