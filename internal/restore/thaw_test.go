package restore

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqlab/annopipe/internal/coldstore"
	"github.com/seqlab/annopipe/internal/messages"
	"github.com/seqlab/annopipe/internal/stage"
)

type fakeThawRecords struct {
	clearErr error
	cleared  []string
}

func (f *fakeThawRecords) ClearArchiveByRetrieval(_ context.Context, retrievalJobID string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, retrievalJobID)
	return nil
}

type fakeUploader struct {
	putErr  error
	uploads map[string][]byte
}

func (f *fakeUploader) Put(_ context.Context, bucket, key string, body []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	if f.uploads == nil {
		f.uploads = make(map[string][]byte)
	}
	f.uploads[bucket+"/"+key] = body
	return nil
}

type fakeThawVault struct {
	coldstore.Vault

	status    coldstore.Status
	statusErr error
	output    []byte
	outputErr error
}

func (f *fakeThawVault) DescribeRetrieval(_ context.Context, _ string) (coldstore.Status, error) {
	if f.statusErr != nil {
		return "", f.statusErr
	}
	return f.status, nil
}

func (f *fakeThawVault) RetrievalOutput(_ context.Context, _ string) ([]byte, error) {
	if f.outputErr != nil {
		return nil, f.outputErr
	}
	return f.output, nil
}

func encodedThawNotification(t *testing.T) []byte {
	t.Helper()

	body, err := messages.Encode(messages.ThawNotification{
		ArchiveID:      "arch-1",
		RetrievalJobID: "ret-1",
		JobDescription: "annopipe/u1/j1~test.annot.vcf",
	})
	require.NoError(t, err)
	return body
}

func TestThawSucceeded(t *testing.T) {
	records := &fakeThawRecords{}
	uploader := &fakeUploader{}
	vault := &fakeThawVault{status: coldstore.StatusSucceeded, output: []byte("annotated")}

	s := NewThawStage(records, uploader, vault, "results", slog.Default())
	outcome := s.Handle(context.Background(), encodedThawNotification(t))

	assert.Equal(t, stage.Ack, outcome)
	assert.Equal(t, []byte("annotated"), uploader.uploads["results/annopipe/u1/j1~test.annot.vcf"])
	assert.Equal(t, []string{"ret-1"}, records.cleared)
}

func TestThawInProgressDefers(t *testing.T) {
	vault := &fakeThawVault{status: coldstore.StatusInProgress}

	s := NewThawStage(&fakeThawRecords{}, &fakeUploader{}, vault, "results", slog.Default())
	outcome := s.Handle(context.Background(), encodedThawNotification(t))

	assert.Equal(t, stage.RetryLater, outcome)
}

func TestThawFailedIsDeadLettered(t *testing.T) {
	records := &fakeThawRecords{}
	vault := &fakeThawVault{status: coldstore.StatusFailed}

	s := NewThawStage(records, &fakeUploader{}, vault, "results", slog.Default())
	outcome := s.Handle(context.Background(), encodedThawNotification(t))

	assert.Equal(t, stage.Reject, outcome)
	assert.Empty(t, records.cleared)
}

func TestThawUploadFailureRetries(t *testing.T) {
	records := &fakeThawRecords{}
	uploader := &fakeUploader{putErr: errors.New("storage unavailable")}
	vault := &fakeThawVault{status: coldstore.StatusSucceeded, output: []byte("annotated")}

	s := NewThawStage(records, uploader, vault, "results", slog.Default())
	outcome := s.Handle(context.Background(), encodedThawNotification(t))

	assert.Equal(t, stage.RetryLater, outcome)
	assert.Empty(t, records.cleared)
}

func TestThawMalformedPayload(t *testing.T) {
	s := NewThawStage(&fakeThawRecords{}, &fakeUploader{}, &fakeThawVault{}, "results", slog.Default())
	outcome := s.Handle(context.Background(), []byte(`{"ArchiveId":"arch-1"}`))

	assert.Equal(t, stage.Reject, outcome)
}
