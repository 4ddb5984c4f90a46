// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package pushgateway

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/dna-messenger-core/internal/eventbus"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
)

func dialTestServer(t *testing.T, gw *Gateway) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(gw.Handler())
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn, server
}

func TestGatewayBroadcastReachesConnectedClient(t *testing.T) {
	gw := New(logger.GetDefaultLogger(), nil)
	conn, server := dialTestServer(t, gw)
	defer server.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return gw.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	gw.Broadcast(eventbus.Event{Kind: eventbus.IdentityLoaded, Fingerprint: "abc123", TimestampSec: 42})

	var got wireEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))

	require.Equal(t, "IdentityLoaded", got.Kind)
	require.Equal(t, "abc123", got.Fingerprint)
	require.EqualValues(t, 42, got.TimestampSec)
}

func TestGatewaySubscribeRelaysBusDispatch(t *testing.T) {
	gw := New(logger.GetDefaultLogger(), nil)
	bus := eventbus.New()
	gw.Subscribe(bus)

	conn, server := dialTestServer(t, gw)
	defer server.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return gw.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	bus.Dispatch(eventbus.Event{Kind: eventbus.DhtConnected})

	var got wireEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "DhtConnected", got.Kind)
}

func TestGatewayCloseDisconnectsClients(t *testing.T) {
	gw := New(logger.GetDefaultLogger(), nil)
	conn, server := dialTestServer(t, gw)
	defer server.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return gw.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, gw.Close())
	require.Equal(t, 0, gw.ConnectionCount())
}
