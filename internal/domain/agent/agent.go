// Package agent defines the Agent domain entity.
package agent

import "time"

// UnknownName is shown for distributions whose agent no longer resolves.
const UnknownName = "Unknown agent"

// Agent is a person who receives distributed contact records.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Mobile       string    `json:"mobile"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ref is the resolved agent reference embedded in listed distributions.
type Ref struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RefOf returns the display reference for a.
func RefOf(a Agent) Ref {
	return Ref{ID: a.ID, Name: a.Name, Email: a.Email}
}

// UnknownRef returns the placeholder for an agent id that no longer resolves.
func UnknownRef(id string) Ref {
	return Ref{ID: id, Name: UnknownName}
}

// CreateRequest holds the fields needed to register a new agent.
type CreateRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

// IDs returns the ids of agents in roster order.
func IDs(agents []Agent) []string {
	ids := make([]string, len(agents))
	for i := range agents {
		ids[i] = agents[i].ID
	}
	return ids
}
