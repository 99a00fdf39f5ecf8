// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package connection tracks reachability of the inference backend.
//
// A Monitor owns the process-wide ConnectionState. It probes the backend on
// demand (CheckStatus) and on a fixed interval (StartPolling), and notifies
// OnChange subscribers only when the state actually changes. Probe failures
// never escape the monitor; they become Disconnected.
//
// # Usage
//
//	mon := connection.NewMonitor(client, connection.DefaultConfig(), logger)
//	mon.OnChange(func(s connection.State) { fmt.Println("backend:", s) })
//	mon.StartPolling(ctx, 30*time.Second)
//	defer mon.Stop()
package connection
