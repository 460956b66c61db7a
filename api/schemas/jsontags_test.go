package schemas_test

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/vibepilot/api/schemas"
)

// TestStructJSONTags uses reflection to verify the `json` tags of the
// persisted state. Stored blobs written by older builds must keep loading.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "Session",
			structRef: schemas.Session{},
			expectedTags: map[string]string{
				"ID":          "id",
				"Name":        "name",
				"Goal":        "goal",
				"Platform":    "platform",
				"Status":      "status",
				"Logs":        "logs",
				"LastUpdated": "lastUpdated",
				"CurrentStep": "currentStep",
				"TotalSteps":  "totalSteps",
			},
		},
		{
			name:      "LogEntry",
			structRef: schemas.LogEntry{},
			expectedTags: map[string]string{
				"ID":        "id",
				"Timestamp": "timestamp",
				"Type":      "type",
				"Message":   "message",
				"Details":   "details,omitempty",
			},
		},
		{
			name:      "LogDetails",
			structRef: schemas.LogDetails{},
			expectedTags: map[string]string{
				"Action":    "action",
				"Reasoning": "reasoning,omitempty",
				"Params":    "details,omitempty",
			},
		},
		{
			name:      "State",
			structRef: schemas.State{},
			expectedTags: map[string]string{
				"Sessions":        "sessions",
				"ActiveSessionID": "activeSessionId,omitempty",
			},
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			typ := reflect.TypeOf(tt.structRef)
			for fieldName, expectedTag := range tt.expectedTags {
				field, ok := typ.FieldByName(fieldName)
				if assert.True(t, ok, "field %s should exist", fieldName) {
					assert.Equal(t, expectedTag, field.Tag.Get("json"), "json tag mismatch on %s.%s", tt.name, fieldName)
				}
			}
		})
	}
}
