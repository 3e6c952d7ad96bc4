package ilp_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"ilp-go/internal/ilp"
	"ilp-go/internal/testutil"
)

func createPayload(idnumber string) []byte {
	return []byte(fmt.Sprintf(`<data><datum action="create">
  <mapping name="idnumber">%[1]s</mapping>
  <mapping name="shortname">%[1]s</mapping>
  <mapping name="fullname">Course %[1]s</mapping>
</datum></data>`, idnumber))
}

type processorFixture struct {
	*testutil.Fixture
	archive   ilp.Archive
	encryptor ilp.Encryptor
	spool     ilp.Spool
	processor *ilp.Processor
}

func newProcessorFixture(t *testing.T, archive ilp.Archive, encryptor ilp.Encryptor, spool ilp.Spool) *processorFixture {
	t.Helper()
	f := testutil.NewFixture(t, ilp.DefaultSettings())
	return &processorFixture{
		Fixture:   f,
		archive:   archive,
		encryptor: encryptor,
		spool:     spool,
		processor: ilp.NewProcessor(f.Service, f.DB, archive, encryptor, spool,
			f.Clock, testutil.NewStubIDGenerator(), ilp.NewNopLogger()),
	}
}

func newFullProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	return newProcessorFixture(t, testutil.NewTestArchive(), testutil.NewTestEncryptor(), testutil.NewTestSpool())
}

func (f *processorFixture) history(t *testing.T) []*ilp.SyncOperation {
	t.Helper()
	ops, err := f.processor.History(50)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	return ops
}

func (f *processorFixture) showArchived(t *testing.T, requestID, name string) (string, error) {
	t.Helper()
	dc, err := f.encryptor.Unlock("secret")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var buf bytes.Buffer
	err = f.processor.ShowArchived(requestID, name, dc, &buf)
	return buf.String(), err
}

func TestProcessor_Process(t *testing.T) {
	t.Run("records and archives a handled request", func(t *testing.T) {
		f := newFullProcessorFixture(t)
		payload := createPayload("P-1")

		result, err := f.processor.Process(payload)
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if result.RequestID != "req-0001" {
			t.Errorf("RequestID = %q, want req-0001", result.RequestID)
		}
		if result.Response == nil || result.Response.Record.IDNumber != "P-1" {
			t.Fatalf("Response = %+v, want course P-1", result.Response)
		}

		ops := f.history(t)
		if len(ops) != 1 {
			t.Fatalf("history = %d operations, want 1", len(ops))
		}
		op := ops[0]
		if op.RequestID != "req-0001" || op.Action != "create" || op.IDNumber != "P-1" || op.Status != ilp.StatusSuccess {
			t.Errorf("operation = %+v", op)
		}
		if op.FinishedAt == nil {
			t.Error("FinishedAt = nil, want set")
		}

		var raw bytes.Buffer
		if err := f.archive.Get("req-0001", ilp.ArchiveRequest, &raw); err != nil {
			t.Fatalf("archive Get() error = %v", err)
		}
		if bytes.Equal(raw.Bytes(), payload) {
			t.Error("archived request is stored in plaintext")
		}

		got, err := f.showArchived(t, "req-0001", ilp.ArchiveRequest)
		if err != nil {
			t.Fatalf("ShowArchived(request) error = %v", err)
		}
		if got != string(payload) {
			t.Errorf("ShowArchived(request) = %q, want original payload", got)
		}
		got, err = f.showArchived(t, "req-0001", ilp.ArchiveResponse)
		if err != nil {
			t.Fatalf("ShowArchived(response) error = %v", err)
		}
		if got != string(result.Payload) {
			t.Errorf("ShowArchived(response) = %q, want response payload", got)
		}
	})

	t.Run("records unparseable payloads", func(t *testing.T) {
		f := newFullProcessorFixture(t)

		result, err := f.processor.Process([]byte("not xml"))
		if !errors.Is(err, ilp.ErrValidation) {
			t.Fatalf("Process() error = %v, want validation error", err)
		}

		ops := f.history(t)
		if len(ops) != 1 || ops[0].Status != ilp.StatusError || ops[0].Action != "" {
			t.Fatalf("history = %+v, want one failed operation without action", ops)
		}
		if !strings.Contains(ops[0].Message, "malformed") {
			t.Errorf("Message = %q, want parse failure", ops[0].Message)
		}

		if got, err := f.showArchived(t, result.RequestID, ilp.ArchiveRequest); err != nil || got != "not xml" {
			t.Errorf("ShowArchived(request) = %q, %v, want the raw payload", got, err)
		}
		if _, err := f.showArchived(t, result.RequestID, ilp.ArchiveResponse); err == nil {
			t.Error("ShowArchived(response) expected error for a failed request")
		}
	})

	t.Run("records handling failures", func(t *testing.T) {
		f := newFullProcessorFixture(t)

		_, err := f.processor.Process([]byte(`<data><datum action="remove"><mapping name="idnumber">NONE</mapping></datum></data>`))
		if !errors.Is(err, ilp.ErrNotFound) {
			t.Fatalf("Process() error = %v, want not found", err)
		}
		op := f.history(t)[0]
		if op.Status != ilp.StatusError || op.Action != "remove" || op.IDNumber != "NONE" {
			t.Errorf("operation = %+v", op)
		}
		if !strings.Contains(op.Message, "NONE") {
			t.Errorf("Message = %q, want it to name the course", op.Message)
		}
	})

	t.Run("grade reports record the course id", func(t *testing.T) {
		f := newFullProcessorFixture(t)
		result, err := f.processor.Process(createPayload("P-1"))
		if err != nil {
			t.Fatal(err)
		}
		id := result.Response.Record.ID

		if _, err := f.processor.Process([]byte(fmt.Sprintf(
			`<data><datum action="course_grade_user"><mapping name="id">%d</mapping></datum></data>`, id))); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		ops := f.history(t)
		if len(ops) != 2 {
			t.Fatalf("history = %d operations, want 2", len(ops))
		}
		if ops[0].Action != ilp.ActionGradeReport || ops[0].IDNumber != fmt.Sprint(id) {
			t.Errorf("newest operation = %+v", ops[0])
		}
	})

	t.Run("request archive failure fails the request", func(t *testing.T) {
		arch := &failingArchive{Archive: testutil.NewTestArchive(), failName: ilp.ArchiveRequest}
		f := newProcessorFixture(t, arch, testutil.NewTestEncryptor(), nil)

		_, err := f.processor.Process(createPayload("P-1"))
		if err == nil || !strings.Contains(err.Error(), "archiving request") {
			t.Fatalf("Process() error = %v, want archiving failure", err)
		}
		if c, _ := f.DB.FindCourseByIDNumber("P-1"); c != nil {
			t.Error("course created although the request could not be archived")
		}
		if op := f.history(t)[0]; op.Status != ilp.StatusError {
			t.Errorf("status = %q, want error", op.Status)
		}
	})

	t.Run("response archive failure is not fatal", func(t *testing.T) {
		arch := &failingArchive{Archive: testutil.NewTestArchive(), failName: ilp.ArchiveResponse}
		f := newProcessorFixture(t, arch, testutil.NewTestEncryptor(), nil)

		if _, err := f.processor.Process(createPayload("P-1")); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if op := f.history(t)[0]; op.Status != ilp.StatusSuccess {
			t.Errorf("status = %q, want success", op.Status)
		}
	})

	t.Run("without an archive", func(t *testing.T) {
		f := newProcessorFixture(t, nil, nil, nil)

		if _, err := f.processor.Process(createPayload("P-1")); err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		testutil.MustFindCourse(t, f.DB, "P-1")
		if err := f.processor.ShowArchived("req-0001", ilp.ArchiveRequest, nil, io.Discard); err == nil {
			t.Error("ShowArchived() expected error without an archive")
		}
	})
}

func TestProcessor_ShowArchived(t *testing.T) {
	t.Run("plaintext archive", func(t *testing.T) {
		f := newProcessorFixture(t, testutil.NewTestArchive(), nil, nil)
		payload := createPayload("P-1")
		if _, err := f.processor.Process(payload); err != nil {
			t.Fatal(err)
		}

		var buf bytes.Buffer
		if err := f.processor.ShowArchived("req-0001", ilp.ArchiveRequest, nil, &buf); err != nil {
			t.Fatalf("ShowArchived() error = %v", err)
		}
		if buf.String() != string(payload) {
			t.Errorf("ShowArchived() = %q, want payload", buf.String())
		}
	})

	t.Run("encrypted archive needs a decryption context", func(t *testing.T) {
		f := newFullProcessorFixture(t)
		if _, err := f.processor.Process(createPayload("P-1")); err != nil {
			t.Fatal(err)
		}

		err := f.processor.ShowArchived("req-0001", ilp.ArchiveRequest, nil, io.Discard)
		if err == nil || !strings.Contains(err.Error(), "passphrase") {
			t.Errorf("ShowArchived() error = %v, want passphrase error", err)
		}
	})

	t.Run("unknown request", func(t *testing.T) {
		f := newFullProcessorFixture(t)

		if _, err := f.showArchived(t, "missing", ilp.ArchiveRequest); err == nil {
			t.Error("ShowArchived() expected error for an unknown request")
		}
	})
}

func TestProcessor_Spool(t *testing.T) {
	t.Run("processes oldest first", func(t *testing.T) {
		f := newFullProcessorFixture(t)
		for _, id := range []string{"S-1", "S-2", "S-3"} {
			item, err := f.processor.Enqueue(id+".xml", bytes.NewReader(createPayload(id)))
			if err != nil {
				t.Fatalf("Enqueue() error = %v", err)
			}
			if want := testutil.SHA256Hex(createPayload(id)); item.Checksum != want {
				t.Errorf("Checksum = %s, want %s", item.Checksum, want)
			}
		}

		count, err := f.processor.ProcessSpool()
		if err != nil {
			t.Fatalf("ProcessSpool() error = %v", err)
		}
		if count != 3 {
			t.Errorf("ProcessSpool() = %d, want 3", count)
		}
		if n, _ := f.spool.Count(); n != 0 {
			t.Errorf("spool count = %d, want 0", n)
		}

		ops := f.history(t)
		if len(ops) != 3 {
			t.Fatalf("history = %d operations, want 3", len(ops))
		}
		// Newest first.
		for i, want := range []string{"S-3", "S-2", "S-1"} {
			if ops[i].IDNumber != want {
				t.Errorf("ops[%d].IDNumber = %q, want %q", i, ops[i].IDNumber, want)
			}
		}
	})

	t.Run("stops at the first failure", func(t *testing.T) {
		f := newFullProcessorFixture(t)
		payloads := map[string][]byte{
			"a.xml": createPayload("S-1"),
			"b.xml": []byte(`<data><datum action="drop"><mapping name="idnumber">NONE</mapping></datum></data>`),
			"c.xml": createPayload("S-3"),
		}
		for _, name := range []string{"a.xml", "b.xml", "c.xml"} {
			if _, err := f.processor.Enqueue(name, bytes.NewReader(payloads[name])); err != nil {
				t.Fatalf("Enqueue(%s) error = %v", name, err)
			}
		}

		count, err := f.processor.ProcessSpool()
		if err == nil || !strings.Contains(err.Error(), "b.xml") {
			t.Fatalf("ProcessSpool() error = %v, want failure on b.xml", err)
		}
		if count != 1 {
			t.Errorf("ProcessSpool() = %d, want 1", count)
		}

		next, err := f.spool.Next()
		if err != nil || next == nil || next.Name != "b.xml" {
			t.Fatalf("Next() = %+v, %v, want b.xml still queued", next, err)
		}
		if n, _ := f.spool.Count(); n != 2 {
			t.Errorf("spool count = %d, want 2", n)
		}
		if c, _ := f.DB.FindCourseByIDNumber("S-3"); c != nil {
			t.Error("S-3 was handled after an earlier failure")
		}
	})

	t.Run("enqueue respects the spool limit", func(t *testing.T) {
		f := newProcessorFixture(t, nil, nil, testutil.NewTestSpoolWithSize(16))

		if _, err := f.processor.Enqueue("big.xml", bytes.NewReader(createPayload("S-1"))); err == nil {
			t.Error("Enqueue() expected error for an oversized payload")
		}
	})

	t.Run("without a spool", func(t *testing.T) {
		f := newProcessorFixture(t, nil, nil, nil)

		if _, err := f.processor.Enqueue("a.xml", strings.NewReader("x")); err == nil {
			t.Error("Enqueue() expected error without a spool")
		}
		if _, err := f.processor.ProcessSpool(); err == nil {
			t.Error("ProcessSpool() expected error without a spool")
		}
	})
}

// failingArchive rejects payloads with one name.
type failingArchive struct {
	ilp.Archive
	failName string
}

func (a *failingArchive) Put(requestID, name string, r io.Reader, size int64) error {
	if name == a.failName {
		return errors.New("archive unavailable")
	}
	return a.Archive.Put(requestID, name, r, size)
}
