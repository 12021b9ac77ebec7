// Package notify delivers magic links. The Dispatcher resolves the channel
// set for a recipient, renders the per-channel template and hands the result
// to a Transport registered for that channel (SMTP, AMQP queues, or a log
// sink during development).
package notify
