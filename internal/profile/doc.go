// Package profile layers an execution policy over a recipe: external
// buffer bindings with init and validate rules, pipelined clones of the
// recipe's execution, iteration loops and latency/throughput metrics.
//
// A profile description holds optional "qos" hardware context options,
// "bindings", one legacy unnamed "execution" policy and any number of
// named "executions". Execute runs the legacy policy first and then the
// named ones in declaration order.
package profile
