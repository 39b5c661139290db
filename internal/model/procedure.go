package model

import (
	"sort"
	"strings"
)

// Procedure is one intervention within an episode. Field updates during a
// tracked apply record the prior value whenever it differs, which feeds the
// episode change summary.
type Procedure struct {
	Key string // operation id, or positional index for delimited sources

	ProcessOrder string
	OrderDate    string
	Code         string
	Name         string
	Name1        string
	Name2        string
	Name3        string
	Name4        string
	Date         string
	Level        string
	Surgeon      string
	Type         string

	isNew   bool
	changes map[string]string // field -> previous value
}

func newProcedure(key string) *Procedure {
	return &Procedure{Key: key, changes: make(map[string]string)}
}

// SurgeonCode extracts the code part of a "name/code" surgeon value.
func (p *Procedure) SurgeonCode() string {
	if _, code, ok := strings.Cut(p.Surgeon, "/"); ok {
		return code
	}
	return ""
}

// IsNew reports whether the procedure appeared for the first time during a
// tracked update.
func (p *Procedure) IsNew() bool {
	return p.isNew
}

// HasChanges reports whether any field changed during a tracked update.
func (p *Procedure) HasChanges() bool {
	return len(p.changes) > 0
}

// ChangedFields lists the changed field names in deterministic order.
func (p *Procedure) ChangedFields() []string {
	fields := make([]string, 0, len(p.changes))
	for f := range p.changes {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func (p *Procedure) set(field string, dst *string, value string, track bool) {
	value = strings.TrimSpace(value)
	// Brand-new procedures are reported as additions; their individual field
	// writes are not deltas.
	if track && !p.isNew && value != *dst {
		if _, seen := p.changes[field]; !seen {
			p.changes[field] = *dst
		}
	}
	*dst = value
}

// procedureSetters maps payload field names onto procedure mutators. The
// table is exhaustive and built at init time; payload dispatch never uses
// reflection.
var procedureSetters = map[string]func(p *Procedure, v string, track bool){
	FieldProcessOrder:     func(p *Procedure, v string, track bool) { p.set(FieldProcessOrder, &p.ProcessOrder, v, track) },
	FieldOrderDate:        func(p *Procedure, v string, track bool) { p.set(FieldOrderDate, &p.OrderDate, v, track) },
	FieldOperationCode:    func(p *Procedure, v string, track bool) { p.set(FieldOperationCode, &p.Code, v, track) },
	FieldOperationName:    func(p *Procedure, v string, track bool) { p.set(FieldOperationName, &p.Name, v, track) },
	FieldOperationName1:   func(p *Procedure, v string, track bool) { p.set(FieldOperationName1, &p.Name1, v, track) },
	FieldOperationName2:   func(p *Procedure, v string, track bool) { p.set(FieldOperationName2, &p.Name2, v, track) },
	FieldOperationName3:   func(p *Procedure, v string, track bool) { p.set(FieldOperationName3, &p.Name3, v, track) },
	FieldOperationName4:   func(p *Procedure, v string, track bool) { p.set(FieldOperationName4, &p.Name4, v, track) },
	FieldOperationDate:    func(p *Procedure, v string, track bool) { p.set(FieldOperationDate, &p.Date, v, track) },
	FieldOperationLevel:   func(p *Procedure, v string, track bool) { p.set(FieldOperationLevel, &p.Level, v, track) },
	FieldOperationSurgeon: func(p *Procedure, v string, track bool) { p.set(FieldOperationSurgeon, &p.Surgeon, v, track) },
	FieldOperationType:    func(p *Procedure, v string, track bool) { p.set(FieldOperationType, &p.Type, v, track) },
}

// procedureFieldNames is the stable apply order for procedure fields.
var procedureFieldNames = []string{
	FieldProcessOrder,
	FieldOrderDate,
	FieldOperationCode,
	FieldOperationName,
	FieldOperationName1,
	FieldOperationName2,
	FieldOperationName3,
	FieldOperationName4,
	FieldOperationDate,
	FieldOperationLevel,
	FieldOperationSurgeon,
	FieldOperationType,
}
