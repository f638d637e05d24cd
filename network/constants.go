package network

import "time"

const (
	GRPCDefaultDeadline = 30 * time.Second
	// HealthCheckInterval is how often the ledger is probed to refresh the health status
	HealthCheckInterval = 5 * time.Second
	// LedgerServiceName is the service name reported by the health endpoint
	LedgerServiceName = "circlepay.Ledger"
)
