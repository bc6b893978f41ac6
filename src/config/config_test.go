package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/nimona/src/object"
)

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/nimona-conf")

	if conf.DatabaseDir != filepath.Join("/tmp/nimona-conf", DefaultBadgerFile) {
		t.Fatalf("database dir should follow datadir, got %s", conf.DatabaseDir)
	}
	if conf.Keyfile() != filepath.Join("/tmp/nimona-conf", DefaultKeyfile) {
		t.Fatalf("unexpected keyfile %s", conf.Keyfile())
	}

	conf.DatabaseDir = "/elsewhere"
	conf.SetDataDir("/tmp/other")
	if conf.DatabaseDir != "/elsewhere" {
		t.Fatal("explicit database dir was overwritten")
	}
}

func TestNodeConfig(t *testing.T) {
	conf := NewTestConfig(t, logrus.DebugLevel)
	conf.Codec = "cbor"
	conf.Relay = true
	conf.WAMPListen = "127.0.0.1:0"
	conf.Moniker = "relay"

	nc, err := conf.NodeConfig()
	if err != nil {
		t.Fatal(err)
	}
	if nc.Codec != object.CBORCodec {
		t.Fatalf("expected cbor codec, got %s", nc.Codec)
	}
	if !nc.Relay || !nc.WAMPFallback || nc.Moniker != "relay" {
		t.Fatalf("unexpected node config %+v", nc)
	}
	if nc.ControlInterval != conf.ControlInterval {
		t.Fatal("control interval not carried")
	}

	conf.Codec = "xml"
	if _, err := conf.NodeConfig(); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func TestLogFile(t *testing.T) {
	dir, err := os.MkdirTemp("", "nimona-log")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	conf := NewDefaultConfig()
	conf.LogLevel = "info"
	conf.LogFile = filepath.Join(dir, "nimona.log")

	conf.Logger().Info("hello")

	data, err := os.ReadFile(conf.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty")
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"info":    logrus.InfoLevel,
		"warn":    logrus.WarnLevel,
		"unknown": logrus.DebugLevel,
	}
	for in, expected := range cases {
		if l := LogLevel(in); l != expected {
			t.Fatalf("LogLevel(%s) = %s, expected %s", in, l, expected)
		}
	}
}
