package flowise

import "time"

// Config holds settings for the Flowise prediction client.
type Config struct {
	// BaseURL is the HTTP endpoint of the Flowise API, e.g. http://localhost:3000/api
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey is sent as a bearer token when non-empty
	APIKey string `yaml:"api_key" json:"api_key"`
	// AnalysisFlowID is the chatflow used for posting analysis
	AnalysisFlowID string `yaml:"analysis_flow_id" json:"analysis_flow_id"`
	// ResponseFlowID is the chatflow used for response generation
	ResponseFlowID string `yaml:"response_flow_id" json:"response_flow_id"`
	// Timeout is the per-request timeout
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Retries is number of retry attempts for transient failures
	Retries int `yaml:"retries" json:"retries"`
	// Backoff is the base backoff between retries
	Backoff time.Duration `yaml:"backoff" json:"backoff"`
	// CircuitFailureThreshold opens circuit after this many consecutive failures
	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" json:"circuit_failure_threshold"`
	// CircuitReset is the duration after which the circuit attempts to half-open
	CircuitReset time.Duration `yaml:"circuit_reset" json:"circuit_reset"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:                 "http://localhost:3000/api",
		Timeout:                 60 * time.Second,
		Retries:                 3,
		Backoff:                 500 * time.Millisecond,
		CircuitFailureThreshold: 5,
		CircuitReset:            30 * time.Second,
	}
}
