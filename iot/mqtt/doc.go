/*Package mqtt provides the MQTT ingestion bridge for firmware event reports

Devices authenticate with X.509 client certificates. The certificate common
name must be the device id of a provisioned device, and the MQTT client id
must match the common name.

A device reports firmware events by publishing to the topic

	fwevents/{device_id}/firmware

with the same JSON payload as the REST endpoint:

  {"version": "2.4.1", "timestamp": 1712345678}

The bridge validates the report and enqueues it for asynchronous persistence,
exactly like a report received via REST. Invalid reports are dropped.

The bridge is report-only. Devices may publish their own reports and nothing
else; subscriptions are denied.

Database Requirements

The bridge verifies the certificate common name against the device resource
managed by the event service before accepting a connection.
*/
package mqtt
