package controller

import (
    "github.com/amirimatin/go-failover/pkg/topology"
)

// ControllerStatus is a high-level, JSON-serializable snapshot of every
// monitored cluster, suitable for the management status endpoint and tooling.
type ControllerStatus struct {
    // Healthy indicates the controller is started and no cluster is halted.
    Healthy bool `json:"healthy"`
    // Clusters holds a point-in-time snapshot per monitored cluster.
    Clusters []topology.Snapshot `json:"clusters"`
    // Warnings contains non-fatal observations (halt reasons, staleness).
    Warnings []string `json:"warnings,omitempty"`
}
