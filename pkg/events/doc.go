/*
Package events provides a synchronous pub/sub broker for monitor events.

The scheduler publishes an event on every instance state transition and
when a run closes; subscribers (metrics, notifications, the operator API)
react without the state machine knowing about them.
*/
package events
