package ilp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Request actions.
const (
	ActionCreate      = "create"
	ActionAdd         = "add"
	ActionUpdate      = "update"
	ActionChange      = "change"
	ActionRemove      = "remove"
	ActionDelete      = "delete"
	ActionDrop        = "drop"
	ActionGradeReport = "course_grade_user"
)

// ValidActions lists every action the service accepts.
var ValidActions = []string{
	ActionCreate, ActionAdd, ActionUpdate, ActionChange,
	ActionRemove, ActionDelete, ActionDrop,
	ActionGradeReport,
}

func validActionList() string {
	return strings.Join(ValidActions, ", ")
}

// Value is a request field that may be absent, present but empty, or
// present with a value. The three states drive different behaviour, e.g. an
// absent children field leaves metacourse links alone while an empty one
// detaches every child.
type Value struct {
	raw string
	set bool
}

// Present returns a Value that was supplied with the given text.
func Present(s string) Value {
	return Value{raw: s, set: true}
}

// Absent returns a Value that was not supplied.
func Absent() Value {
	return Value{}
}

// IsSet reports whether the field was supplied at all.
func (v Value) IsSet() bool { return v.set }

// IsEmpty reports whether the field is absent or supplied as "".
func (v Value) IsEmpty() bool { return v.raw == "" }

func (v Value) String() string { return v.raw }

// Data holds the named values of one request.
type Data struct {
	values map[string]Value
}

// NewData builds Data from plain key/value pairs; every key is present.
func NewData(kv map[string]string) Data {
	d := Data{values: make(map[string]Value, len(kv))}
	for k, v := range kv {
		d.values[k] = Present(v)
	}
	return d
}

// Get returns the named value, Absent if it was not supplied.
func (d Data) Get(name string) Value {
	if d.values == nil {
		return Absent()
	}
	return d.values[name]
}

// Set records a present value.
func (d *Data) Set(name, value string) {
	if d.values == nil {
		d.values = make(map[string]Value)
	}
	d.values[name] = Present(value)
}

// Delete makes the named value absent.
func (d *Data) Delete(name string) {
	delete(d.values, name)
}

// Names returns the names of every present value, sorted.
func (d Data) Names() []string {
	names := make([]string, 0, len(d.values))
	for name, v := range d.values {
		if v.set {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Request is a parsed and validated provisioning request.
type Request struct {
	Action string
	Data   Data
}

// xmlEnvelope is the wire shape of a request:
//
//	<data><datum action="update"><mapping name="idnumber">X</mapping></datum></data>
type xmlEnvelope struct {
	XMLName xml.Name   `xml:"data"`
	Datums  []xmlDatum `xml:"datum" validate:"len=1,dive"`
}

type xmlDatum struct {
	Action   string       `xml:"action,attr" validate:"required"`
	Mappings []xmlMapping `xml:"mapping" validate:"dive"`
}

type xmlMapping struct {
	Name  string `xml:"name,attr" validate:"required,max=64"`
	Value string `xml:",chardata"`
}

var requestValidator = validator.New()

// ParseRequest decodes and validates a request payload.
func ParseRequest(payload []byte) (*Request, error) {
	var env xmlEnvelope
	dec := xml.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&env); err != nil {
		return nil, NewValidationError("", fmt.Sprintf("malformed request XML: %v", err))
	}

	if err := requestValidator.Struct(&env); err != nil {
		return nil, NewValidationError("", describeValidation(err))
	}

	datum := env.Datums[0]
	req := &Request{Action: strings.TrimSpace(datum.Action)}
	for _, m := range datum.Mappings {
		req.Data.Set(strings.TrimSpace(m.Name), strings.TrimSpace(m.Value))
	}
	return req, nil
}

// EncodeRequest renders a request in the wire format ParseRequest reads.
func EncodeRequest(req *Request) ([]byte, error) {
	datum := xmlDatum{Action: req.Action}
	for _, name := range req.Data.Names() {
		datum.Mappings = append(datum.Mappings, xmlMapping{Name: name, Value: req.Data.Get(name).String()})
	}
	out, err := xml.MarshalIndent(xmlEnvelope{Datums: []xmlDatum{datum}}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return out, nil
}

// describeValidation turns validator output into a short message.
func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Sprintf("invalid request: %v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.StructField() {
		case "Datums":
			parts = append(parts, "request must contain exactly one datum")
		case "Action":
			parts = append(parts, "datum action attribute is required")
		case "Name":
			if fe.Tag() == "max" {
				parts = append(parts, "mapping name is too long")
			} else {
				parts = append(parts, "mapping name attribute is required")
			}
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
	}
	return "invalid request: " + strings.Join(parts, "; ")
}
