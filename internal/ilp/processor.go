package ilp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Result is the outcome of one processed payload.
type Result struct {
	RequestID string
	Response  *Response
	// Payload is the encoded response.
	Payload []byte
}

// Processor runs payloads through the Service while recording each request
// as a SyncOperation and archiving its request and response payloads.
type Processor struct {
	service   *Service
	ops       OperationLog
	archive   Archive
	encryptor Encryptor
	spool     Spool
	clock     Clock
	idgen     IDGenerator
	logger    Logger
}

// NewProcessor creates a Processor. archive, encryptor and spool may be nil:
// payloads are then not archived, archived unencrypted, or not spooled.
func NewProcessor(service *Service, ops OperationLog, archive Archive, encryptor Encryptor, spool Spool, clock Clock, idgen IDGenerator, logger Logger) *Processor {
	return &Processor{
		service:   service,
		ops:       ops,
		archive:   archive,
		encryptor: encryptor,
		spool:     spool,
		clock:     clock,
		idgen:     idgen,
		logger:    logger,
	}
}

// Process handles one request payload. The returned Result carries the
// request id even when handling failed.
func (p *Processor) Process(payload []byte) (*Result, error) {
	result := &Result{RequestID: p.idgen.New()}

	req, parseErr := ParseRequest(payload)
	var action, idnumber string
	if req != nil {
		action = req.Action
		idnumber = req.Data.Get("idnumber").String()
		if action == ActionGradeReport {
			idnumber = req.Data.Get("id").String()
		}
	}

	op, err := p.ops.CreateSyncOperation(result.RequestID, action, idnumber, p.clock.Now())
	if err != nil {
		return result, fmt.Errorf("recording operation: %w", err)
	}
	p.logger.Debug("request received", "request_id", result.RequestID, "action", action, "idnumber", idnumber)

	if err := p.store(result.RequestID, ArchiveRequest, payload); err != nil {
		return result, p.finish(op, fmt.Errorf("archiving request: %w", err))
	}
	if parseErr != nil {
		return result, p.finish(op, parseErr)
	}

	resp, err := p.service.HandleRequest(req)
	if err != nil {
		return result, p.finish(op, err)
	}
	result.Response = resp

	out, err := resp.Marshal()
	if err != nil {
		return result, p.finish(op, err)
	}
	result.Payload = out

	if err := p.store(result.RequestID, ArchiveResponse, out); err != nil {
		p.logger.Warn("archiving response failed", "request_id", result.RequestID, "error", err)
	}
	return result, p.finish(op, nil)
}

// finish records the outcome of op and returns cause. A failure to record
// the outcome is joined to cause.
func (p *Processor) finish(op *SyncOperation, cause error) error {
	status, message := StatusSuccess, ""
	if cause != nil {
		status, message = StatusError, cause.Error()
		p.logger.Error("request failed", "request_id", op.RequestID, "action", op.Action, "idnumber", op.IDNumber, "error", cause)
	}
	if err := p.ops.FinishSyncOperation(op.ID, status, message, p.clock.Now()); err != nil {
		return errors.Join(cause, fmt.Errorf("finishing operation: %w", err))
	}
	return cause
}

// store archives a payload, encrypting it when an encryptor is configured.
func (p *Processor) store(requestID, name string, payload []byte) error {
	if p.archive == nil {
		return nil
	}
	data := payload
	if p.encryptor != nil {
		var buf bytes.Buffer
		if err := p.encryptor.Encrypt(bytes.NewReader(payload), &buf); err != nil {
			return fmt.Errorf("encrypting %s: %w", name, err)
		}
		data = buf.Bytes()
	}
	return p.archive.Put(requestID, name, bytes.NewReader(data), int64(len(data)))
}

// Enqueue adds a payload to the spool.
func (p *Processor) Enqueue(name string, r io.Reader) (*SpoolItem, error) {
	if p.spool == nil {
		return nil, fmt.Errorf("no spool configured")
	}
	item, err := p.spool.Add(name, r)
	if err != nil {
		return nil, fmt.Errorf("spooling %s: %w", name, err)
	}
	p.logger.Info("payload spooled", "name", name, "checksum", item.Checksum, "size", item.Size)
	return item, nil
}

// ProcessSpool handles spooled payloads oldest first, removing each one
// after it succeeds. It stops at the first failure and leaves that payload
// queued. Returns the number of payloads handled.
func (p *Processor) ProcessSpool() (int, error) {
	if p.spool == nil {
		return 0, fmt.Errorf("no spool configured")
	}

	count := 0
	for {
		item, err := p.spool.Next()
		if err != nil {
			return count, fmt.Errorf("reading spool: %w", err)
		}
		if item == nil {
			break
		}

		payload, err := p.readItem(item)
		if err != nil {
			return count, err
		}
		result, err := p.Process(payload)
		if err != nil {
			return count, fmt.Errorf("processing %s (request %s): %w", item.Name, result.RequestID, err)
		}
		if err := p.spool.Remove(item); err != nil {
			return count, fmt.Errorf("removing %s from spool: %w", item.Name, err)
		}
		count++
	}

	p.logger.Info("spool processed", "count", count)
	return count, nil
}

func (p *Processor) readItem(item *SpoolItem) ([]byte, error) {
	r, err := p.spool.Open(item)
	if err != nil {
		return nil, fmt.Errorf("opening spooled %s: %w", item.Name, err)
	}
	defer r.Close()
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading spooled %s: %w", item.Name, err)
	}
	return payload, nil
}

// ShowArchived writes an archived payload to w. decryptCtx is required when
// the archive holds encrypted payloads.
func (p *Processor) ShowArchived(requestID, name string, decryptCtx DecryptionContext, w io.Writer) error {
	if p.archive == nil {
		return fmt.Errorf("no archive configured")
	}
	if p.encryptor == nil {
		return p.archive.Get(requestID, name, w)
	}
	if decryptCtx == nil {
		return fmt.Errorf("payload is encrypted but no passphrase was provided")
	}

	pr, pw := io.Pipe()
	archiveErrCh := make(chan error, 1)
	go func() {
		err := p.archive.Get(requestID, name, pw)
		pw.CloseWithError(err)
		archiveErrCh <- err
	}()

	decryptErr := decryptCtx.Decrypt(pr, w)
	pr.CloseWithError(decryptErr)
	archiveErr := <-archiveErrCh

	if archiveErr != nil {
		return fmt.Errorf("reading archived %s: %w", name, archiveErr)
	}
	if decryptErr != nil {
		return fmt.Errorf("decrypting %s: %w", name, decryptErr)
	}
	return nil
}

// History returns the most recent operations, newest first.
func (p *Processor) History(limit int) ([]*SyncOperation, error) {
	ops, err := p.ops.ListSyncOperations(limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync operations: %w", err)
	}
	return ops, nil
}
