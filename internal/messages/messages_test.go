package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJobRequest(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantErr   bool
		errString string
	}{
		{
			name: "valid payload",
			body: `{"s3_inputs_bucket":"inputs","s3_key_input_file":"u1/j1~test.vcf",` +
				`"job_id":"j1","input_file_name":"test.vcf","user_id":"u1"}`,
		},
		{
			name:      "not json",
			body:      `{'s3_inputs_bucket': 'inputs'}`,
			wantErr:   true,
			errString: "failed to decode payload",
		},
		{
			name:      "missing job_id",
			body:      `{"s3_inputs_bucket":"inputs","s3_key_input_file":"k","input_file_name":"f","user_id":"u"}`,
			wantErr:   true,
			errString: `missing required field "job_id"`,
		},
		{
			name:      "empty user_id",
			body:      `{"s3_inputs_bucket":"b","s3_key_input_file":"k","job_id":"j","input_file_name":"f","user_id":""}`,
			wantErr:   true,
			errString: `missing required field "user_id"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := DecodeJobRequest([]byte(tt.body))

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, m)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "j1", m.JobID)
				assert.Equal(t, "u1", m.UserID)
				assert.Equal(t, "inputs", m.S3InputsBucket)
			}
		})
	}
}

func TestDecodeArchivalRequest(t *testing.T) {
	valid := `{"job_id":"j1","user_id":"u1","user_role":"free_user","complete_time":1700000000,` +
		`"file_annot":"test.annot.vcf","s3_results_bucket":"results","key_annot":"p/u1/j1~test.annot.vcf"}`

	t.Run("valid payload", func(t *testing.T) {
		m, err := DecodeArchivalRequest([]byte(valid))
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000), m.CompleteTime)
		assert.Equal(t, "free_user", m.UserRole)
	})

	t.Run("missing complete_time", func(t *testing.T) {
		body := `{"job_id":"j1","user_id":"u1","user_role":"free_user",` +
			`"file_annot":"f","s3_results_bucket":"b","key_annot":"k"}`
		_, err := DecodeArchivalRequest([]byte(body))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "complete_time")
	})

	t.Run("missing key_annot", func(t *testing.T) {
		body := `{"job_id":"j1","user_id":"u1","user_role":"free_user","complete_time":1,` +
			`"file_annot":"f","s3_results_bucket":"b"}`
		_, err := DecodeArchivalRequest([]byte(body))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "key_annot")
	})
}

func TestDecodeRestoreRequest(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		body := `{"results_file_archive_id":"arc-1","job_id":"j1","s3_key_result_file":"p/u1/j1~r.annot.vcf"}`
		m, err := DecodeRestoreRequest([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, "arc-1", m.ResultsFileArchiveID)
	})

	t.Run("missing archive id", func(t *testing.T) {
		body := `{"job_id":"j1","s3_key_result_file":"k"}`
		_, err := DecodeRestoreRequest([]byte(body))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "results_file_archive_id")
	})
}

func TestDecodeThawNotification(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		body := `{"ArchiveId":"arc-1","JobId":"ret-1","JobDescription":"p/u1/j1~r.annot.vcf"}`
		m, err := DecodeThawNotification([]byte(body))
		require.NoError(t, err)
		assert.Equal(t, "ret-1", m.RetrievalJobID)
		assert.Equal(t, "p/u1/j1~r.annot.vcf", m.JobDescription)
	})

	t.Run("missing description", func(t *testing.T) {
		body := `{"ArchiveId":"arc-1","JobId":"ret-1"}`
		_, err := DecodeThawNotification([]byte(body))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JobDescription")
	})
}

func TestDecodeNamesFirstMissingField(t *testing.T) {
	// With several fields absent the error names the first declared one,
	// deterministically, so repeated rejections of the same payload log the
	// same reason.
	for i := 0; i < 20; i++ {
		_, err := DecodeJobRequest([]byte(`{"user_id":"u1"}`))
		require.Error(t, err)
		assert.EqualError(t, err, `missing required field "s3_inputs_bucket"`)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	req := &JobRequest{
		S3InputsBucket: "inputs",
		S3KeyInputFile: "u1/j1~test.vcf",
		JobID:          "j1",
		InputFileName:  "test.vcf",
		UserID:         "u1",
	}

	body, err := Encode(req)
	require.NoError(t, err)

	decoded, err := DecodeJobRequest(body)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}
