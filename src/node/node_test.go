package node

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/mosaicnetworks/nimona/src/crypto/keys"
	"github.com/mosaicnetworks/nimona/src/net"
	"github.com/mosaicnetworks/nimona/src/object"
	"github.com/mosaicnetworks/nimona/src/peers"
	"github.com/mosaicnetworks/nimona/src/relay"
	"github.com/mosaicnetworks/nimona/src/store"
	"github.com/mosaicnetworks/nimona/src/stream"
)

type testPeer struct {
	key   keys.PrivateKey
	trans *net.InmemTransport
	store store.Store
	node  *Node
}

func newTestPeer(t *testing.T, st store.Store, configure func(*Config)) *testPeer {
	key, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	_, trans := net.NewInmemTransport("")

	if st == nil {
		st = store.NewInmemStore()
	}

	conf := TestConfig(t)
	if configure != nil {
		configure(conf)
	}

	n := NewNode(conf, key, peers.NewAddressBook(nil), st, trans)
	if err := n.Init(); err != nil {
		t.Fatal(err)
	}

	return &testPeer{key: key, trans: trans, store: st, node: n}
}

func (p *testPeer) info() *peers.ConnectionInfo {
	return peers.NewConnectionInfo(p.key.PublicKey(), p.trans.LocalAddr())
}

func (p *testPeer) run(t *testing.T) {
	p.node.RunAsync()
	t.Cleanup(p.node.Shutdown)
}

// connect makes two peers reachable to each other.
func connect(t *testing.T, a, b *testPeer) {
	a.trans.Connect(b.trans.LocalAddr(), b.trans)
	b.trans.Connect(a.trans.LocalAddr(), a.trans)
	if err := a.node.AddressBook().Put(b.info()); err != nil {
		t.Fatal(err)
	}
	if err := b.node.AddressBook().Put(a.info()); err != nil {
		t.Fatal(err)
	}
}

func textData(text string) object.Map {
	m := object.NewMap()
	m.Set("text", object.String(text))
	return m
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func linearized(t *testing.T, n *Node, root object.CID) []object.CID {
	g, ok := n.Streams().Get(root)
	if !ok {
		t.Fatalf("stream %s unknown", root)
	}
	return g.LinearizedCIDs()
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

func TestNodeSync(t *testing.T) {
	p0 := newTestPeer(t, nil, nil)
	p1 := newTestPeer(t, nil, nil)
	connect(t, p0, p1)
	p0.run(t)
	p1.run(t)

	root, err := p0.node.CreateStream("chat.room", textData("general"))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := p0.node.Append(root.CID(), "chat.message", textData(fmt.Sprintf("msg %d", i))); err != nil {
			t.Fatal(err)
		}
	}

	applied, err := p1.node.Sync(testContext(t), root.CID(), p0.key.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if applied != 4 {
		t.Fatalf("expected 4 objects applied, got %d", applied)
	}

	if !reflect.DeepEqual(linearized(t, p0.node, root.CID()), linearized(t, p1.node, root.CID())) {
		t.Fatal("replicas linearize differently")
	}

	t.Run("incremental", func(t *testing.T) {
		if _, err := p0.node.Append(root.CID(), "chat.message", textData("later")); err != nil {
			t.Fatal(err)
		}

		applied, err := p1.node.Sync(testContext(t), root.CID(), p0.key.PublicKey())
		if err != nil {
			t.Fatal(err)
		}
		if applied != 1 {
			t.Fatalf("expected 1 object applied, got %d", applied)
		}
	})

	t.Run("up to date", func(t *testing.T) {
		applied, err := p1.node.Sync(testContext(t), root.CID(), p0.key.PublicKey())
		if err != nil {
			t.Fatal(err)
		}
		if applied != 0 {
			t.Fatalf("expected nothing applied, got %d", applied)
		}
	})

	t.Run("persisted", func(t *testing.T) {
		ok, err := p1.store.Has(root.CID())
		if err != nil || !ok {
			t.Fatalf("root not persisted: %v", err)
		}
	})

	if p1.node.SyncRate() != 1 {
		t.Fatalf("unexpected sync rate %f", p1.node.SyncRate())
	}
}

func TestNodeSyncUnknownStream(t *testing.T) {
	p0 := newTestPeer(t, nil, nil)
	p1 := newTestPeer(t, nil, nil)
	connect(t, p0, p1)
	p0.run(t)
	p1.run(t)

	applied, err := p1.node.Sync(testContext(t), object.CID("oh1.unknown"), p0.key.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if applied != 0 {
		t.Fatalf("expected nothing applied, got %d", applied)
	}
	if _, ok := p1.node.Streams().Get(object.CID("oh1.unknown")); ok {
		t.Fatal("stream should stay unknown")
	}
}

func TestNodeSyncPolicyFiltered(t *testing.T) {
	p0 := newTestPeer(t, nil, nil)
	p1 := newTestPeer(t, nil, nil)
	connect(t, p0, p1)
	p0.run(t)
	p1.run(t)

	readPublic := object.Policy{
		Type:      object.SignaturePolicy,
		Resources: []string{"chat.room", "chat.public"},
		Actions:   []object.PolicyAction{object.ReadAction},
		Effect:    object.AllowEffect,
	}

	root, err := p0.node.CreateStream("chat.room", textData("mixed"), readPublic)
	if err != nil {
		t.Fatal(err)
	}

	pub, err := p0.node.Append(root.CID(), "chat.public", textData("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p0.node.Append(root.CID(), "chat.private", textData("secret")); err != nil {
		t.Fatal(err)
	}

	applied, err := p1.node.Sync(testContext(t), root.CID(), p0.key.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if applied != 2 {
		t.Fatalf("expected root and public object, got %d objects", applied)
	}

	expected := []object.CID{root.CID(), pub.CID()}
	if got := linearized(t, p1.node, root.CID()); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestNodeSyncUnresolvedParent(t *testing.T) {
	p0 := newTestPeer(t, nil, nil)
	p1 := newTestPeer(t, nil, nil)
	connect(t, p0, p1)
	p0.run(t)
	p1.run(t)

	readPublic := object.Policy{
		Type:      object.SignaturePolicy,
		Resources: []string{"chat.room", "chat.public"},
		Actions:   []object.PolicyAction{object.ReadAction},
		Effect:    object.AllowEffect,
	}

	root, err := p0.node.CreateStream("chat.room", textData("mixed"), readPublic)
	if err != nil {
		t.Fatal(err)
	}

	// the public object is built on top of one p1 may not read
	if _, err := p0.node.Append(root.CID(), "chat.private", textData("secret")); err != nil {
		t.Fatal(err)
	}
	pub, err := p0.node.Append(root.CID(), "chat.public", textData("hello"))
	if err != nil {
		t.Fatal(err)
	}

	applied, err := p1.node.Sync(testContext(t), root.CID(), p0.key.PublicKey())
	if !stream.IsUnresolvedParent(err) {
		t.Fatalf("expected UnresolvedParentError, got %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected only the root applied, got %d objects", applied)
	}

	g, ok := p1.node.Streams().Get(root.CID())
	if !ok {
		t.Fatal("stream should be known")
	}
	if !g.IsPending(pub.CID()) {
		t.Fatalf("public object should be pending, pending: %v", g.Pending())
	}
}

func TestNodeSubscribeAnnounce(t *testing.T) {
	p0 := newTestPeer(t, nil, nil)
	p1 := newTestPeer(t, nil, nil)
	connect(t, p0, p1)
	p0.run(t)
	p1.run(t)

	root, err := p0.node.CreateStream("feed", object.NewMap())
	if err != nil {
		t.Fatal(err)
	}

	ctx := testContext(t)
	if _, err := p1.node.Sync(ctx, root.CID(), p0.key.PublicKey()); err != nil {
		t.Fatal(err)
	}
	if err := p1.node.Subscribe(ctx, root.CID(), p0.key.PublicKey(), time.Minute); err != nil {
		t.Fatal(err)
	}

	waitFor(t, time.Second, func() bool {
		return p0.node.GetStats()["subscriptions"] == "1"
	}, "subscription not recorded")

	post, err := p0.node.Append(root.CID(), "feed.post", textData("news"))
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, 3*time.Second, func() bool {
		g, ok := p1.node.Streams().Get(root.CID())
		return ok && g.Has(post.CID())
	}, "announced object never synced")

	providers := p1.node.Providers(root.CID())
	if len(providers) != 1 || !providers[0].Equals(p0.key.PublicKey()) {
		t.Fatalf("unexpected providers %v", providers)
	}
}

func TestNodeAnnounceRespectsPolicies(t *testing.T) {
	p0 := newTestPeer(t, nil, nil)
	p1 := newTestPeer(t, nil, nil)
	connect(t, p0, p1)

	readPublic := object.Policy{
		Type:      object.SignaturePolicy,
		Resources: []string{"feed", "feed.public"},
		Actions:   []object.PolicyAction{object.ReadAction},
		Effect:    object.AllowEffect,
	}

	root, err := p0.node.CreateStream("feed", object.NewMap(), readPublic)
	if err != nil {
		t.Fatal(err)
	}

	p0.node.subscriptions.Add(p1.key.PublicKey(), []object.CID{root.CID()}, time.Now().Add(time.Minute))

	if _, err := p0.node.Append(root.CID(), "feed.private", textData("hidden")); err != nil {
		t.Fatal(err)
	}
	if _, err := p0.node.Append(root.CID(), "feed.public", textData("visible")); err != nil {
		t.Fatal(err)
	}

	// only the public append is announced
	select {
	case rpc := <-p1.trans.Consumer():
		ann, err := stream.AnnouncementFromObject(rpc.Object)
		if err != nil {
			t.Fatal(err)
		}
		if ann.RootCID != root.CID() || len(ann.Leaves) != 1 {
			t.Fatalf("unexpected announcement %+v", ann)
		}
		rpc.Respond(nil, nil)
	case <-time.After(2 * time.Second):
		t.Fatal("no announcement received")
	}

	select {
	case rpc := <-p1.trans.Consumer():
		t.Fatalf("unexpected object %s", rpc.Object.Type)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNodeIntroduce(t *testing.T) {
	p0 := newTestPeer(t, nil, func(c *Config) { c.Moniker = "zero" })
	p1 := newTestPeer(t, nil, func(c *Config) { c.Moniker = "one" })
	p0.trans.Connect(p1.trans.LocalAddr(), p1.trans)
	p1.trans.Connect(p0.trans.LocalAddr(), p0.trans)
	p0.run(t)
	p1.run(t)

	info, err := p1.node.Introduce(p0.trans.LocalAddr())
	if err != nil {
		t.Fatal(err)
	}
	if !info.PublicKey.Equals(p0.key.PublicKey()) || info.Moniker != "zero" {
		t.Fatalf("unexpected connection info %+v", info)
	}

	if _, ok := p1.node.AddressBook().Get(p0.key.PublicKey()); !ok {
		t.Fatal("introducer did not record the peer")
	}

	waitFor(t, time.Second, func() bool {
		_, ok := p0.node.AddressBook().Get(p1.key.PublicKey())
		return ok
	}, "peer did not record the introducer")
}

func TestNodeRelayedSync(t *testing.T) {
	owner := newTestPeer(t, nil, nil)
	relayPeer := newTestPeer(t, nil, func(c *Config) { c.Relay = true })
	client := newTestPeer(t, nil, nil)

	connect(t, owner, relayPeer)
	connect(t, client, relayPeer)

	relayInfo := relayPeer.info()

	// owner and client only know each other through the relay
	ownerInfo := owner.info()
	ownerInfo.Relays = []*peers.ConnectionInfo{relayInfo}
	clientInfo := client.info()
	clientInfo.Relays = []*peers.ConnectionInfo{relayInfo}
	if err := client.node.AddressBook().Put(ownerInfo); err != nil {
		t.Fatal(err)
	}
	if err := owner.node.AddressBook().Put(clientInfo); err != nil {
		t.Fatal(err)
	}

	owner.run(t)
	relayPeer.run(t)
	client.run(t)

	root, err := owner.node.CreateStream("notes", textData("relayed"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := owner.node.Append(root.CID(), "notes.note", textData("one")); err != nil {
		t.Fatal(err)
	}

	applied, err := client.node.Sync(testContext(t), root.CID(), owner.key.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 objects applied, got %d", applied)
	}

	if !reflect.DeepEqual(linearized(t, owner.node, root.CID()), linearized(t, client.node, root.CID())) {
		t.Fatal("replicas linearize differently")
	}

	stats := relayPeer.node.RelayStats()
	if stats.Forwarded == 0 {
		t.Fatal("relay did not forward anything")
	}
}

func newForwardRequest(t *testing.T, recipient keys.PublicKey) *object.Object {
	sender, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	payload := object.New("chat.message", textData("hi"), object.Metadata{})

	id := relay.NewRequestID()
	env, err := relay.NewEnvelope(id, sender, recipient, payload, object.JSONCodec)
	if err != nil {
		t.Fatal(err)
	}
	req, err := relay.NewRequest(id, recipient, env, sender)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestNodeRelayDisabled(t *testing.T) {
	p0 := newTestPeer(t, nil, nil)

	req := newForwardRequest(t, p0.key.PublicKey())

	if _, err := p0.node.handle(context.Background(), req); err == nil {
		t.Fatal("node without relay role should refuse forward requests")
	}
}

func TestNodeObjectRequestDenied(t *testing.T) {
	p0 := newTestPeer(t, nil, nil)

	onlyOwner := object.Policy{
		Type:    object.SignaturePolicy,
		Actions: []object.PolicyAction{object.ReadAction},
		Effect:  object.DenyEffect,
	}

	root, err := p0.node.CreateStream("diary", object.NewMap(), onlyOwner)
	if err != nil {
		t.Fatal(err)
	}

	stranger, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	req, err := (&stream.ObjectRequest{Nonce: "n1", ObjectCID: root.CID()}).ToObject(stranger)
	if err != nil {
		t.Fatal(err)
	}

	reply, err := p0.node.handle(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := stream.ObjectResponseFromObject(reply)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Nonce != "n1" {
		t.Fatalf("unexpected nonce %s", resp.Nonce)
	}
	if resp.Object != nil {
		t.Fatal("stranger should not receive the object")
	}

	// the owner reads its own stream
	req, err = (&stream.ObjectRequest{Nonce: "n2", ObjectCID: root.CID()}).ToObject(p0.key)
	if err != nil {
		t.Fatal(err)
	}
	reply, err = p0.node.handle(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	resp, err = stream.ObjectResponseFromObject(reply)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Object == nil || resp.Object.CID() != root.CID() {
		t.Fatal("owner should receive the object")
	}
}

func TestNodeUnexpectedType(t *testing.T) {
	p0 := newTestPeer(t, nil, nil)

	o := object.New("something.else", textData("?"), object.Metadata{})
	if _, err := p0.node.handle(context.Background(), o); err == nil {
		t.Fatal("expected error for unexpected object type")
	}
}

func TestNodeSendUnknownPeer(t *testing.T) {
	p0 := newTestPeer(t, nil, nil)

	stranger, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	_, err = p0.node.Send(context.Background(), stranger.PublicKey(), object.New("x", textData("x"), object.Metadata{}))
	if err == nil {
		t.Fatal("expected error sending to unknown peer")
	}
}

func TestNodeRestart(t *testing.T) {
	dir, err := os.MkdirTemp("", "nimona-node")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	st, err := store.NewBadgerStore(100, dir)
	if err != nil {
		t.Fatal(err)
	}

	p0 := newTestPeer(t, st, nil)

	root, err := p0.node.CreateStream("log", object.NewMap())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := p0.node.Append(root.CID(), "log.entry", textData(fmt.Sprint(i))); err != nil {
			t.Fatal(err)
		}
	}
	expected := linearized(t, p0.node, root.CID())

	p0.node.Shutdown()
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	st2, err := store.NewBadgerStore(100, dir)
	if err != nil {
		t.Fatal(err)
	}
	defer st2.Close()

	p1 := newTestPeer(t, st2, nil)
	if got := linearized(t, p1.node, root.CID()); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v after restart, got %v", expected, got)
	}
}

func TestNodeHypotheticalStream(t *testing.T) {
	p0 := newTestPeer(t, nil, nil)
	p1 := newTestPeer(t, nil, nil)
	connect(t, p0, p1)
	p0.run(t)
	p1.run(t)

	root, err := p0.node.CreateHypotheticalStream("profile")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p0.node.Append(root.CID(), "profile.name", textData("zero")); err != nil {
		t.Fatal(err)
	}

	// the other peer derives the root without having seen it
	cid, err := stream.HypotheticalRootCID("profile", p0.key.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if cid != root.CID() {
		t.Fatalf("expected %s, got %s", root.CID(), cid)
	}

	applied, err := p1.node.Sync(testContext(t), cid, p0.key.PublicKey())
	if err != nil {
		t.Fatal(err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 objects applied, got %d", applied)
	}
}

func TestNodeGetStats(t *testing.T) {
	p0 := newTestPeer(t, nil, func(c *Config) { c.Moniker = "stats" })

	root, err := p0.node.CreateStream("s", object.NewMap())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p0.node.Append(root.CID(), "s.o", object.NewMap()); err != nil {
		t.Fatal(err)
	}

	stats := p0.node.GetStats()
	expected := map[string]string{
		"moniker": "stats",
		"state":   "Initialising",
		"streams": "1",
		"objects": "2",
		"relay":   "false",
	}
	for k, v := range expected {
		if stats[k] != v {
			t.Fatalf("stats[%s] = %s, expected %s", k, stats[k], v)
		}
	}
}
