// Package websocket pushes license lifecycle events to connected admin
// dashboards over gorilla/websocket.
package websocket
