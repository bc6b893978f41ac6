package nimona

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mosaicnetworks/nimona/src/common"
	"github.com/mosaicnetworks/nimona/src/config"
	"github.com/mosaicnetworks/nimona/src/object"
)

func newTestConfig(t *testing.T, name string) *config.Config {
	dir := filepath.Join(t.TempDir(), name)

	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(dir)
	conf.BindAddr = "127.0.0.1:0"
	conf.NoService = true
	conf.Moniker = name
	return conf
}

func newTestEngine(t *testing.T, conf *config.Config) *Nimona {
	engine := NewNimona(conf)
	if err := engine.Init(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(engine.Shutdown)
	return engine
}

func TestKeygen(t *testing.T) {
	conf := newTestConfig(t, "keygen")

	key, err := Keygen(conf)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Keygen(conf); err == nil {
		t.Fatal("Keygen should not overwrite an existing key")
	}

	engine := NewNimona(conf)
	if err := engine.initKey(); err != nil {
		t.Fatal(err)
	}
	if !engine.Config.Key.PublicKey().Equals(key.PublicKey()) {
		t.Fatal("engine did not load the existing key")
	}
}

func TestInitStore(t *testing.T) {
	conf := newTestConfig(t, "store")
	conf.Store = true

	engine := newTestEngine(t, conf)

	if _, err := os.Stat(conf.DatabaseDir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(conf.Keyfile()); err != nil {
		t.Fatalf("key file not created: %v", err)
	}

	root, err := engine.Node.CreateStream("log", object.NewMap())
	if err != nil {
		t.Fatal(err)
	}

	engine.Shutdown()

	conf2 := newTestConfig(t, "store")
	conf2.SetDataDir(conf.DataDir)
	conf2.DatabaseDir = conf.DatabaseDir
	conf2.Store = true

	engine2 := newTestEngine(t, conf2)
	if _, ok := engine2.Node.Streams().Get(root.CID()); !ok {
		t.Fatal("stream not reloaded from the database")
	}
	if !engine2.Config.Key.PublicKey().Equals(engine.Config.Key.PublicKey()) {
		t.Fatal("key not reloaded")
	}
}

func TestInitRelays(t *testing.T) {
	conf := newTestConfig(t, "relays")
	conf.Relays = []string{"not-a-key"}

	engine := NewNimona(conf)
	if err := engine.Init(); err == nil {
		engine.Shutdown()
		t.Fatal("expected error for an invalid relay key")
	}
}

func TestTCPSync(t *testing.T) {
	e0 := newTestEngine(t, newTestConfig(t, "e0"))
	e1 := newTestEngine(t, newTestConfig(t, "e1"))

	if err := e0.AddressBook.Put(e1.Node.ConnectionInfo()); err != nil {
		t.Fatal(err)
	}
	if err := e1.AddressBook.Put(e0.Node.ConnectionInfo()); err != nil {
		t.Fatal(err)
	}

	go e0.Run()
	go e1.Run()

	root, err := e0.Node.CreateStream("chat.room", object.NewMap())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e0.Node.Append(root.CID(), "chat.message", object.NewMap()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	applied, err := e1.Node.Sync(ctx, root.CID(), e0.Node.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 objects applied, got %d", applied)
	}

	// the address book is written to the datadir
	if _, err := os.Stat(filepath.Join(e1.Config.DataDir, "peers.json")); err != nil {
		t.Fatal(err)
	}
}

// A relay runs a WAMP router; a peer connected to it is reached through the
// router without being dialed.
func TestWAMPRouterSync(t *testing.T) {
	relayConf := newTestConfig(t, "relay")
	relayConf.Relay = true
	relayConf.WAMPListen = "127.0.0.1:0"
	relay := newTestEngine(t, relayConf)
	go relay.Run()

	peerConf := newTestConfig(t, "peer")
	peerConf.WAMPServer = relay.WAMPServer.URL()
	peerConf.WAMPRealm = relayConf.WAMPRealm
	peer := newTestEngine(t, peerConf)
	go peer.Run()

	root, err := peer.Node.CreateStream("notes", object.NewMap())
	if err != nil {
		t.Fatal(err)
	}

	var (
		applied int
		lastErr error
	)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		applied, lastErr = relay.Node.Sync(ctx, root.CID(), peer.Node.PublicKey())
		cancel()
		if lastErr == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if lastErr != nil {
		t.Fatal(lastErr)
	}
	if applied != 1 {
		t.Fatalf("expected 1 object applied, got %d", applied)
	}
	if _, ok := relay.Node.AddressBook().Get(peer.Node.PublicKey()); ok {
		t.Fatal("the peer was reached without being in the address book")
	}
}
