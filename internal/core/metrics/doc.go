// Package metrics 中继节点的 Prometheus 指标
//
// 指标名形如 {namespace}_{subsystem}_{name}，默认 namespace 为 "relay"：
//
//	relay_swarm_connections_opened_total{direction}
//	relay_swarm_connections_closed_total{direction}
//	relay_swarm_connection_errors_total{direction}
//	relay_swarm_connections_active
//	relay_ping_rtt_seconds
//	relay_ping_failures_total
//	relay_ping_unresponsive_total
//	relay_identify_total{result}
//	relay_circuit_reservations_total{result}
//	relay_circuit_reservations_active
//	relay_circuit_requests_total{result}
//	relay_circuit_active
//	relay_circuit_bytes_total{direction}
//	relay_circuit_closed_total{state}
//	relay_eventloop_events_total{kind}
//	relay_eventloop_external_addrs
//
// 所有方法对 nil *Metrics 安全，未启用指标时组件可直接传 nil。
package metrics
