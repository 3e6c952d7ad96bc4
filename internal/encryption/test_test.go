package encryption

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"ilp-go/internal/ilp"
)

func TestTestEncryptor_RequestPayload(t *testing.T) {
	t.Parallel()

	req := &ilp.Request{
		Action: ilp.ActionCreate,
		Data: ilp.NewData(map[string]string{
			"idnumber": "ENC-1", "shortname": "ENC-1", "fullname": "Encrypted & archived",
		}),
	}
	payload, err := ilp.EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest() error = %v", err)
	}

	e := NewTestEncryptor()
	var sealed bytes.Buffer
	if err := e.Encrypt(bytes.NewReader(payload), &sealed); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := ilp.ParseRequest(sealed.Bytes()); err == nil {
		t.Error("sealed payload still parses as a request")
	}

	ctx, err := e.Unlock("")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var opened bytes.Buffer
	if err := ctx.Decrypt(&sealed, &opened); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}

	got, err := ilp.ParseRequest(opened.Bytes())
	if err != nil {
		t.Fatalf("ParseRequest() error = %v", err)
	}
	if got.Action != ilp.ActionCreate || got.Data.Get("fullname").String() != "Encrypted & archived" {
		t.Errorf("round trip = %q %q", got.Action, got.Data.Get("fullname").String())
	}
}

func TestTestEncryptor_Configured(t *testing.T) {
	e := NewTestEncryptor()
	if err := e.Setup("unused"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !e.setupCalled || !e.IsConfigured() {
		t.Errorf("setupCalled/IsConfigured = %v/%v, want true/true", e.setupCalled, e.IsConfigured())
	}
}

func TestTestDecryptionContext_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"plain xml", "<data><datum action=\"create\"/></data>", "invalid test encryption header"},
		{"short header", "ILP", "reading test header"},
		{"empty", "", "reading test header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := (&TestDecryptionContext{}).Decrypt(strings.NewReader(tt.input), io.Discard)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Decrypt() error = %v, want %q", err, tt.wantErr)
			}
			if tt.input == "" && !errors.Is(err, io.EOF) {
				t.Errorf("Decrypt(empty) error = %v, want io.EOF", err)
			}
		})
	}
}
