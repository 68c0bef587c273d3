package coldstore

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seqlab/annopipe/internal/messages"
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Put(_ context.Context, bucket, key string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = body
	return nil
}

func (f *fakeObjects) Get(_ context.Context, bucket, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.objects[bucket+"/"+key], nil
}

func (f *fakeObjects) Exists(_ context.Context, bucket, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[bucket+"/"+key]
	return ok, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	published [][]byte
}

func (f *fakeNotifier) Publish(_ context.Context, _ string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, body)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func newTestVault(t *testing.T, quota int) (*ObjectVault, *fakeObjects, *fakeNotifier) {
	t.Helper()

	objects := newFakeObjects()
	notifier := &fakeNotifier{}
	vault := NewObjectVault(objects, notifier, &Config{
		Bucket:         "vault",
		ThawRoutingKey: "job.thaw",
		ExpeditedQuota: quota,
		ExpeditedDelay: time.Millisecond,
		StandardDelay:  5 * time.Millisecond,
	}, slog.Default())

	return vault, objects, notifier
}

func waitForNotification(t *testing.T, notifier *fakeNotifier) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if notifier.count() > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no thaw notification published")
}

func TestUploadAndRetrieve(t *testing.T) {
	ctx := context.Background()
	vault, _, notifier := newTestVault(t, 1)

	archiveID, err := vault.Upload(ctx, []byte("annotated genome"))
	require.NoError(t, err)
	require.NotEmpty(t, archiveID)

	retrievalJobID, err := vault.InitiateRetrieval(ctx, RetrievalRequest{
		ArchiveID:   archiveID,
		Tier:        TierExpedited,
		Description: "results/u1/j1~test.annot.vcf",
	})
	require.NoError(t, err)

	waitForNotification(t, notifier)

	status, err := vault.DescribeRetrieval(ctx, retrievalJobID)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, status)

	body, err := vault.RetrievalOutput(ctx, retrievalJobID)
	require.NoError(t, err)
	assert.Equal(t, []byte("annotated genome"), body)

	notification, err := messages.DecodeThawNotification(notifier.published[0])
	require.NoError(t, err)
	assert.Equal(t, archiveID, notification.ArchiveID)
	assert.Equal(t, retrievalJobID, notification.RetrievalJobID)
	assert.Equal(t, "results/u1/j1~test.annot.vcf", notification.JobDescription)
}

func TestExpeditedQuotaExhaustion(t *testing.T) {
	ctx := context.Background()
	vault, _, _ := newTestVault(t, 1)

	archiveID, err := vault.Upload(ctx, []byte("data"))
	require.NoError(t, err)

	_, err = vault.InitiateRetrieval(ctx, RetrievalRequest{
		ArchiveID: archiveID,
		Tier:      TierExpedited,
	})
	require.NoError(t, err)

	_, err = vault.InitiateRetrieval(ctx, RetrievalRequest{
		ArchiveID: archiveID,
		Tier:      TierExpedited,
	})
	assert.ErrorIs(t, err, ErrExpeditedUnavailable)

	// Standard tier remains available
	_, err = vault.InitiateRetrieval(ctx, RetrievalRequest{
		ArchiveID: archiveID,
		Tier:      TierStandard,
	})
	assert.NoError(t, err)
}

func TestInitiateRetrievalUnknownArchive(t *testing.T) {
	ctx := context.Background()
	vault, _, _ := newTestVault(t, 1)

	_, err := vault.InitiateRetrieval(ctx, RetrievalRequest{
		ArchiveID: "no-such-archive",
		Tier:      TierStandard,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestRetrievalOutputBeforeSucceeded(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjects()
	notifier := &fakeNotifier{}
	vault := NewObjectVault(objects, notifier, &Config{
		Bucket:         "vault",
		ThawRoutingKey: "job.thaw",
		ExpeditedQuota: 0,
		StandardDelay:  time.Hour, // never completes within the test
	}, slog.Default())

	archiveID, err := vault.Upload(ctx, []byte("data"))
	require.NoError(t, err)

	retrievalJobID, err := vault.InitiateRetrieval(ctx, RetrievalRequest{
		ArchiveID: archiveID,
		Tier:      TierStandard,
	})
	require.NoError(t, err)

	status, err := vault.DescribeRetrieval(ctx, retrievalJobID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, status)

	_, err = vault.RetrievalOutput(ctx, retrievalJobID)
	assert.ErrorIs(t, err, ErrRetrievalNotReady)
}

func TestDescribeRetrievalUnknownJob(t *testing.T) {
	vault, _, _ := newTestVault(t, 1)

	_, err := vault.DescribeRetrieval(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRetrievalNotFound)
}
