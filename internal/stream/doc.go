// Package stream turns device-table mutations into an ordered stream of
// Records and delivers them to a Sink.
//
// SQLite triggers append every INSERT, state/status MODIFY and REMOVE of a
// device row to device_changes. A Poller reads that changelog in seq order
// from a persisted cursor and hands each record to its Sink. The cursor
// only advances past records the sink accepted, so delivery is
// at-least-once.
//
// Two transports exist:
//
//	local: Poller -> SinkFunc(propagator.Handle)
//	mqtt:  Poller -> MQTTPublisher ~~broker~~> SubscribeMQTT -> propagator.Handle
package stream
