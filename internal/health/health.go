package health

import (
	"encoding/json"
	"net/http"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// CredentialReporter is satisfied by the upstream client.
type CredentialReporter interface {
	HasCredential() bool
}

type Status struct {
	Status             string `json:"status"`
	Service            string `json:"service"`
	Version            string `json:"version"`
	UpstreamConfigured bool   `json:"upstream_configured"`
}

type Checker struct {
	service  string
	version  string
	upstream CredentialReporter
}

func NewChecker(service, version string, upstream CredentialReporter) *Checker {
	return &Checker{
		service:  service,
		version:  version,
		upstream: upstream,
	}
}

// Status is degraded when no credential is configured: the process is up but
// every generate request will fail.
func (c *Checker) Status() Status {
	configured := c.upstream != nil && c.upstream.HasCredential()

	status := StatusOK
	if !configured {
		status = StatusDegraded
	}

	return Status{
		Status:             status,
		Service:            c.service,
		Version:            c.version,
		UpstreamConfigured: configured,
	}
}

// ServeHTTP always answers 200 so orchestrators do not restart a process
// that only lacks configuration.
func (c *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	if err := json.NewEncoder(w).Encode(c.Status()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
