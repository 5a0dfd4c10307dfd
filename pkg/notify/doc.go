/*
Package notify delivers run outcome notifications to Slack-compatible
webhooks. Delivery is strictly best effort: the orchestrator treats a dead
webhook as a logged warning, never as a run failure.
*/
package notify
