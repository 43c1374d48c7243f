// Package status tracks live execution state. Each execution gets a
// single-writer actor whose mailbox serialises transitions, giving
// subscribers a strongly ordered stream: state snapshot on attach, then
// every subsequent event until a terminal transition closes the channel.
package status
