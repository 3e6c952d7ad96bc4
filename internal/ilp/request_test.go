package ilp_test

import (
	"errors"
	"strings"
	"testing"

	"ilp-go/internal/ilp"
)

func TestParseRequest(t *testing.T) {
	t.Run("reads action and mappings", func(t *testing.T) {
		req, err := ilp.ParseRequest([]byte(`<data>
  <datum action=" update ">
    <mapping name="idnumber"> C1 </mapping>
    <mapping name="fullname">Course one</mapping>
    <mapping name="children"></mapping>
  </datum>
</data>`))
		if err != nil {
			t.Fatalf("ParseRequest() error = %v", err)
		}
		if req.Action != "update" {
			t.Errorf("Action = %q, want update", req.Action)
		}
		if got := req.Data.Get("idnumber").String(); got != "C1" {
			t.Errorf("idnumber = %q, want C1", got)
		}

		children := req.Data.Get("children")
		if !children.IsSet() || !children.IsEmpty() {
			t.Errorf("children set/empty = %v/%v, want present and empty", children.IsSet(), children.IsEmpty())
		}
		if req.Data.Get("enddate").IsSet() {
			t.Error("enddate is set, want absent")
		}
	})

	tests := []struct {
		name    string
		payload string
		wantMsg string
	}{
		{"malformed", `<data><datum action="create">`, "malformed request XML"},
		{"no datum", `<data></data>`, "exactly one datum"},
		{"two datums", `<data><datum action="create"/><datum action="remove"/></data>`, "exactly one datum"},
		{"missing action", `<data><datum><mapping name="idnumber">C1</mapping></datum></data>`, "action attribute is required"},
		{"unnamed mapping", `<data><datum action="create"><mapping>C1</mapping></datum></data>`, "mapping name attribute is required"},
		{"long mapping name", `<data><datum action="create"><mapping name="` + strings.Repeat("n", 65) + `">x</mapping></datum></data>`, "mapping name is too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ilp.ParseRequest([]byte(tt.payload))
			if !errors.Is(err, ilp.ErrValidation) {
				t.Fatalf("ParseRequest() error = %v, want validation error", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err, tt.wantMsg)
			}
		})
	}

	t.Run("unknown action parses", func(t *testing.T) {
		req, err := ilp.ParseRequest([]byte(`<data><datum action="bogus"/></data>`))
		if err != nil {
			t.Fatalf("ParseRequest() error = %v", err)
		}
		if req.Action != "bogus" {
			t.Errorf("Action = %q, want bogus", req.Action)
		}
	})
}

func TestEncodeRequest(t *testing.T) {
	req := &ilp.Request{
		Action: ilp.ActionGradeReport,
		Data:   ilp.NewData(map[string]string{"id": "7", "perpage": "25", "note": "a < b"}),
	}

	out, err := ilp.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}
	if !strings.Contains(string(out), `<datum action="course_grade_user">`) {
		t.Errorf("encoded request missing datum:\n%s", out)
	}

	parsed, err := ilp.ParseRequest(out)
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if parsed.Action != req.Action {
		t.Errorf("Action = %q, want %q", parsed.Action, req.Action)
	}
	for _, name := range req.Data.Names() {
		if got, want := parsed.Data.Get(name).String(), req.Data.Get(name).String(); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestData(t *testing.T) {
	var d ilp.Data
	if d.Get("x").IsSet() {
		t.Error("zero Data reports x as set")
	}

	d.Set("b", "")
	d.Set("a", "1")
	if got := d.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Names() = %v, want [a b]", got)
	}

	d.Delete("b")
	if d.Get("b").IsSet() {
		t.Error("b is set after Delete")
	}
}
