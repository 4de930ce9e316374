package stash

// BatchRecord is the history entry written for every finished batch.
type BatchRecord struct {
	ID         string `json:"id"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at"`
	Outcome    string `json:"outcome"`
	Initial    int    `json:"initial"`
	Planned    int    `json:"planned"`
	Clicked    int    `json:"clicked"`
	Skipped    int    `json:"skipped"`

	// Code and Message describe the failure, if any
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	// Simulated is set for batches run against a scenario host
	Simulated bool `json:"simulated,omitempty"`
}
