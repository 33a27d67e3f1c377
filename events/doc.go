/*
Package events implements the firmware event ingestion backend

Devices report firmware updates with POST /firmware, authenticated by an
X-Device-Api-Key header. Reports are validated against an embedded JSON
schema and put on a durable Postgres task queue; a persistence worker
consumes the queue and writes firmware event rows idempotently. Project
members list the events back out with GET /firmware?device_id=...,
authenticated by an X-Project-Membership-Api-Key header.

The service creates the following REST routes:
	POST /firmware
	GET /firmware?device_id={device_id}
	GET /healthcheck
	GET /fwevents/health
	GET /fwevents/health/details
	GET /fwevents/deadletters
	PUT /fwevents/deadletters/{serial}/requeue
	DELETE /fwevents/deadletters
	GET /fwevents/statistics
	GET /fwevents/version

The /fwevents routes form the operational surface. They require the "admin"
role when authorization is enabled; operators authenticate with a JWT bearer
token validated by the access package.

The task queue delivers at least once. Handlers that fail with an ordinary
error are retried with exponential backoff until the task's attempts are
used up; handlers that fail with a permanent error give up right away. In
both cases the task is parked in the dead-letter queue with its failure
text and can be inspected, requeued or purged through the REST api.

After a firmware event row has been persisted, the event is optionally
fanned out to a Kafka topic for downstream consumers.
*/
package events
