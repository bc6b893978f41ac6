package service

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/nimona/src/common"
	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/net"
	"github.com/mosaicnetworks/nimona/src/node"
	"github.com/mosaicnetworks/nimona/src/object"
	"github.com/mosaicnetworks/nimona/src/peers"
	"github.com/mosaicnetworks/nimona/src/store"
)

func newTestService(t *testing.T) (*node.Node, *httptest.Server) {
	key, err := keys.GenerateKey()
	require.NoError(t, err)

	_, trans := net.NewInmemTransport("")

	conf := node.TestConfig(t)
	conf.Moniker = "service"

	n := node.NewNode(conf, key, peers.NewAddressBook(nil), store.NewInmemStore(), trans)
	require.NoError(t, n.Init())
	t.Cleanup(n.Shutdown)

	s := NewService("127.0.0.1:0", n, common.NewTestEntry(t, common.TestLogLevel))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	return n, ts
}

func get(t *testing.T, ts *httptest.Server, path string, v interface{}) int {
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK && v != nil {
		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func textData(text string) object.Map {
	m := object.NewMap()
	m.Set("text", object.String(text))
	return m
}

func TestStats(t *testing.T) {
	_, ts := newTestService(t)

	var stats map[string]string
	require.Equal(t, http.StatusOK, get(t, ts, "/stats", &stats))
	require.Equal(t, "service", stats["moniker"])
	require.Equal(t, "0", stats["streams"])
}

func TestStreams(t *testing.T) {
	n, ts := newTestService(t)

	root, err := n.CreateStream("chat.room", textData("general"))
	require.NoError(t, err)
	msg, err := n.Append(root.CID(), "chat.message", textData("hi"))
	require.NoError(t, err)

	var list []StreamInfo
	require.Equal(t, http.StatusOK, get(t, ts, "/streams", &list))
	require.Len(t, list, 1)
	require.Equal(t, root.CID().String(), list[0].Root)
	require.Equal(t, "chat.room", list[0].Type)
	require.Equal(t, 2, list[0].Objects)
	require.Equal(t, []string{msg.CID().String()}, list[0].Leaves)

	var info StreamInfo
	require.Equal(t, http.StatusOK, get(t, ts, "/streams/"+root.CID().String(), &info))
	require.Equal(t, []string{root.CID().String(), msg.CID().String()}, info.Order)
	require.Equal(t, n.PublicKey().String(), info.Owner)

	unknown, err := object.SumCID([]byte("unknown"))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, get(t, ts, "/streams/"+unknown.String(), nil))
	require.Equal(t, http.StatusBadRequest, get(t, ts, "/streams/not-a-cid", nil))
}

func TestObjects(t *testing.T) {
	n, ts := newTestService(t)

	root, err := n.CreateStream("chat.room", textData("general"))
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/objects/" + root.CID().String())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	o, err := object.Unmarshal(object.JSONCodec, bytes.TrimSpace(body))
	require.NoError(t, err)
	require.Equal(t, root.CID(), o.CID())

	unknown, err := object.SumCID([]byte("unknown"))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, get(t, ts, "/objects/"+unknown.String(), nil))
}

func TestPeers(t *testing.T) {
	n, ts := newTestService(t)

	relayKey, err := keys.GenerateKey()
	require.NoError(t, err)
	peerKey, err := keys.GenerateKey()
	require.NoError(t, err)

	info := peers.NewConnectionInfo(peerKey.PublicKey(), "127.0.0.1:1337")
	info.Moniker = "peer"
	info.Relays = []*peers.ConnectionInfo{peers.NewConnectionInfo(relayKey.PublicKey())}
	require.NoError(t, n.AddressBook().Put(info))

	var list []PeerInfo
	require.Equal(t, http.StatusOK, get(t, ts, "/peers", &list))
	require.Len(t, list, 1)
	require.Equal(t, peerKey.PublicKey().String(), list[0].PublicKey)
	require.Equal(t, "peer", list[0].Moniker)
	require.Equal(t, []string{"127.0.0.1:1337"}, list[0].Addresses)
	require.Equal(t, []string{relayKey.PublicKey().String()}, list[0].Relays)
}

func TestMetrics(t *testing.T) {
	n, ts := newTestService(t)

	_, err := n.CreateStream("chat.room", object.NewMap())
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "nimona_streams 1"))
	require.True(t, strings.Contains(string(body), "nimona_sync_rate"))
}
