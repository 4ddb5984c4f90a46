// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package metrics

import (
	"time"

	dto "github.com/prometheus/client_model/go"
)

var startTime = time.Now()

// Snapshot is a flattened, JSON-friendly view over a handful of the
// counters registered in Registry, served as JSON by the health server's
// metrics handler for a client that wants headline numbers without scraping
// and parsing the full OpenMetrics text exposition.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`

	MessagesProcessed int `json:"messages_processed"`
	ReplayAttacks     int `json:"replay_attacks_detected"`
	HandshakesStarted int `json:"handshakes_initiated"`
	SessionsActive    int `json:"sessions_active"`
	CryptoOps         int `json:"crypto_operations"`
	CryptoErrors      int `json:"crypto_errors"`
}

// GetSnapshot gathers the current state of Registry and reduces it to a
// Snapshot. Gathering is read-only and safe to call concurrently with
// metric updates.
func GetSnapshot() (*Snapshot, error) {
	families, err := Registry.Gather()
	if err != nil {
		return nil, err
	}

	s := &Snapshot{Timestamp: time.Now(), Uptime: time.Since(startTime).String()}
	for _, fam := range families {
		switch fam.GetName() {
		case namespace + "_messages_processed_total":
			s.MessagesProcessed = sumCounters(fam.GetMetric())
		case namespace + "_messages_replay_attacks_detected_total":
			s.ReplayAttacks = sumCounters(fam.GetMetric())
		case namespace + "_handshakes_initiated_total":
			s.HandshakesStarted = sumCounters(fam.GetMetric())
		case namespace + "_sessions_active":
			s.SessionsActive = sumGauges(fam.GetMetric())
		case namespace + "_crypto_operations_total":
			s.CryptoOps = sumCounters(fam.GetMetric())
		case namespace + "_crypto_errors_total":
			s.CryptoErrors = sumCounters(fam.GetMetric())
		}
	}
	return s, nil
}

func sumCounters(metrics []*dto.Metric) int {
	var total float64
	for _, m := range metrics {
		if c := m.GetCounter(); c != nil {
			total += c.GetValue()
		}
	}
	return int(total)
}

func sumGauges(metrics []*dto.Metric) int {
	var total float64
	for _, m := range metrics {
		if g := m.GetGauge(); g != nil {
			total += g.GetValue()
		}
	}
	return int(total)
}
