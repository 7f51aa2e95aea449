package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status   HealthStatus    `json:"status"`
	Time     Timestamp       `json:"time"`
	Datasets []DatasetStatus `json:"datasets"`
}

// DatasetStatus reports one dataset source's load state.
type DatasetStatus struct {
	Category  string       `json:"category"`
	Source    string       `json:"source"`
	Status    HealthStatus `json:"status"`
	TimeSteps int          `json:"timeSteps,omitempty"`
	LoadedAt  *Timestamp   `json:"loadedAt,omitempty"`
}
