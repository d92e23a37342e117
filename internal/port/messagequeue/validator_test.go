package messagequeue

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		data    string
		wantErr string
	}{
		{"replaced", SubjectDistributionsReplaced, `{"batch_id":"b1","source":"leads.csv","agents":2,"tasks":5,"replaced_at":"2024-01-01T00:00:00Z"}`, ""},
		{"agent created", SubjectAgentCreated, `{"agent_id":"a1","name":"Ann","email":"ann@example.com"}`, ""},
		{"agent deleted", SubjectAgentDeleted, `{"agent_id":"a1"}`, ""},
		{"empty object", SubjectDistributionsReplaced, `{}`, ""},
		{"unknown subject", "unknown.subject", `{"foo":"bar"}`, ""},
		{"invalid json", SubjectAgentCreated, `{not valid json`, "invalid JSON"},
		{"wrong shape", SubjectDistributionsReplaced, `"just a string"`, "schema validation failed"},
		{"wrong field type", SubjectDistributionsReplaced, `{"tasks":"five"}`, "schema validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.subject, []byte(tt.data))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected %q in error, got: %v", tt.wantErr, err)
			}
		})
	}
}
