package headwatch

import (
	"testing"
	"time"
)

func TestDecodeHead_Notification(t *testing.T) {
	msg := []byte(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":"0xcd0c3e8af590364c09d0fa6a1210faf5","result":{"number":"0x4503f1","hash":"0xc6ef2fc5426d6ad6fd9e2a26abeab0aa2411b7ab17f30a99d3cb96aed1d1055b"}}}`)

	head, ok, err := decodeHead(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a head")
	}
	if head.Number != 0x4503f1 {
		t.Fatalf("number mismatch: %d", head.Number)
	}
	if head.Hash.Hex() != "0xc6ef2fc5426d6ad6fd9e2a26abeab0aa2411b7ab17f30a99d3cb96aed1d1055b" {
		t.Fatalf("hash mismatch: %s", head.Hash.Hex())
	}
}

func TestDecodeHead_SubscriptionAckIgnored(t *testing.T) {
	msg := []byte(`{"jsonrpc":"2.0","id":1,"result":"0xcd0c3e8af590364c09d0fa6a1210faf5"}`)

	_, ok, err := decodeHead(msg)
	if err != nil {
		t.Fatalf("ack should not error: %v", err)
	}
	if ok {
		t.Fatalf("ack is not a head")
	}
}

func TestDecodeHead_RPCError(t *testing.T) {
	msg := []byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`)

	_, ok, err := decodeHead(msg)
	if err == nil {
		t.Fatalf("expected rpc error")
	}
	if ok {
		t.Fatalf("error frame is not a head")
	}
}

func TestDecodeHead_Junk(t *testing.T) {
	if _, _, err := decodeHead([]byte("{not json")); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, ok, err := decodeHead(nil); err != nil || ok {
		t.Fatalf("empty frame should be ignored: ok=%v err=%v", ok, err)
	}
	if _, _, err := decodeHead([]byte(`{"method":"eth_subscription","params":{"subscription":"0x1","result":{"number":"zz"}}}`)); err == nil {
		t.Fatalf("expected number parse error")
	}
}

func TestNextBackoffDoublesToCap(t *testing.T) {
	max := 4 * time.Second
	cur := 500 * time.Millisecond
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		cur = nextBackoff(cur, max)
		if cur != w {
			t.Fatalf("step %d: got %s want %s", i, cur, w)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.PingInterval != DefaultPingInterval {
		t.Fatalf("ping interval default mismatch: %s", o.PingInterval)
	}
	if o.BackoffMin <= 0 || o.BackoffMax < o.BackoffMin || o.OutBuffer <= 0 {
		t.Fatalf("bad defaults: %+v", o)
	}
}
