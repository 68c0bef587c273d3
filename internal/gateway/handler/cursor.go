package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/seqlab/annopipe/internal/records"
)

func DecodeListCursor(cursorStr string) (*records.Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, err
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var submitTime int64
	_, err = fmt.Sscanf(decodedParts[0], "%d", &submitTime)
	if err != nil {
		return nil, fmt.Errorf("invalid submit time in cursor: %w", err)
	}

	return &records.Cursor{
		SubmitTime: time.Unix(submitTime, 0),
		JobID:      decodedParts[1],
	}, nil
}

func EncodeListCursor(cursor *records.Cursor) string {
	cs := fmt.Sprintf("%d|%s", cursor.SubmitTime.Unix(), cursor.JobID)
	return base64.StdEncoding.EncodeToString([]byte(cs))
}
