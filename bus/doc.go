// Package bus provides the publish/subscribe event bus that decouples the
// coordination subsystems from their observers. Delivery is asynchronous and
// at most once per subscribed handler per event; handlers are panic-isolated.
package bus
