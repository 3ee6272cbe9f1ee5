package main

import (
	"net/http"
	"time"

	"lockwatch/common/ws"

	"github.com/google/uuid"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 90 * time.Second
	wsPingInterval = 30 * time.Second
)

// eventHub fans device events out to dashboard websocket clients
var eventHub *ws.Hub

// broadcastEvent pushes one event to all connected dashboard clients
func broadcastEvent(eventType, deviceID string, data map[string]interface{}) {
	if eventHub == nil {
		return
	}
	eventHub.Broadcast(ws.Event{
		Type:     eventType,
		DeviceID: deviceID,
		Data:     data,
	})
}

// handleEvents upgrades the dashboard connection and streams events
// until the client goes away. The feed is read-only; inbound frames
// are discarded.
func handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.UpgradeHTTP(w, r)
	if err != nil {
		serverLogger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	events := make(chan ws.Event, 64)
	eventHub.Register(clientID, events)
	defer eventHub.Unregister(clientID)

	serverLogger.Debug("Dashboard client connected", "client_id", clientID, "remote", conn.RemoteAddr())

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.ReadLoop(wsReadTimeout)
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteEvent(&ev, wsWriteTimeout); err != nil {
				serverLogger.Debug("Dashboard client write failed", "client_id", clientID, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WritePing(wsWriteTimeout); err != nil {
				return
			}
		case <-readDone:
			serverLogger.Debug("Dashboard client disconnected", "client_id", clientID)
			return
		}
	}
}
