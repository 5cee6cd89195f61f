package headwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
)

const DefaultPingInterval = 15 * time.Second

// Head is one decoded newHeads notification.
type Head struct {
	Number uint64
	Hash   common.Hash
}

type Options struct {
	PingInterval time.Duration

	BackoffMin time.Duration
	BackoffMax time.Duration

	OutBuffer int
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 15 * time.Second
	}
	if o.OutBuffer <= 0 {
		o.OutBuffer = 64
	}
	return o
}

// JSON-RPC wire shapes for eth_subscribe("newHeads").
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcEnvelope struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Params *struct {
		Subscription string `json:"subscription"`
		Result       struct {
			Number string `json:"number"`
			Hash   string `json:"hash"`
		} `json:"result"`
	} `json:"params,omitempty"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Start connects to the node's WebSocket endpoint, subscribes to newHeads and
// emits decoded heads, reconnecting with jittered exponential backoff. Both
// channels close when ctx is cancelled. Used for liveness logging only; the
// scheduler loop never depends on it.
func Start(ctx context.Context, url string, opts Options) (<-chan Head, <-chan error) {
	opts = opts.withDefaults()

	out := make(chan Head, opts.OutBuffer)
	errs := make(chan error, 16)

	go func() {
		defer close(out)
		defer close(errs)

		backoff := opts.BackoffMin
		for {
			if ctx.Err() != nil {
				return
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				emitErrNonBlocking(errs, fmt.Errorf("headwatch dial: %w", err))
				sleepWithJitter(ctx, backoff)
				backoff = nextBackoff(backoff, opts.BackoffMax)
				continue
			}

			backoff = opts.BackoffMin

			if err := runSession(ctx, conn, opts.PingInterval, out, errs); err != nil && ctx.Err() == nil {
				emitErrNonBlocking(errs, err)
			}

			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			sleepWithJitter(ctx, backoff)
			backoff = nextBackoff(backoff, opts.BackoffMax)
		}
	}()

	return out, errs
}

func runSession(ctx context.Context, conn *websocket.Conn, pingInterval time.Duration, out chan<- Head, errs chan<- error) error {
	if conn == nil {
		return fmt.Errorf("headwatch session: nil conn")
	}

	req := rpcRequest{JSONRPC: "2.0", ID: 1, Method: "eth_subscribe", Params: []any{"newHeads"}}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("headwatch subscribe marshal: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, reqBytes); err != nil {
		return fmt.Errorf("headwatch subscribe write: %w", err)
	}

	var writeMu sync.Mutex
	stop := make(chan struct{})
	var stopOnce sync.Once
	stopAll := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		defer stopAll()
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				werr := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if werr != nil {
					emitErrNonBlocking(errs, fmt.Errorf("headwatch ping: %w", werr))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			stopAll()
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("headwatch read: %w", err)
		}

		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}

		head, ok, err := decodeHead(msg)
		if err != nil {
			emitErrNonBlocking(errs, err)
			continue
		}
		if !ok {
			continue
		}

		select {
		case out <- head:
		default:
		}
	}
}

// decodeHead parses one WebSocket frame. ok=false for non-head frames such as
// the subscription ack.
func decodeHead(msg []byte) (Head, bool, error) {
	if len(msg) == 0 {
		return Head{}, false, nil
	}

	var env rpcEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return Head{}, false, fmt.Errorf("headwatch json decode: %w", err)
	}
	if env.Error != nil {
		return Head{}, false, fmt.Errorf("headwatch rpc error %d: %s", env.Error.Code, env.Error.Message)
	}
	if env.Method != "eth_subscription" || env.Params == nil {
		return Head{}, false, nil
	}

	numberHex := strings.TrimPrefix(env.Params.Result.Number, "0x")
	if numberHex == "" {
		return Head{}, false, fmt.Errorf("headwatch head missing number")
	}
	number, err := strconv.ParseUint(numberHex, 16, 64)
	if err != nil {
		return Head{}, false, fmt.Errorf("headwatch head number %q: %w", env.Params.Result.Number, err)
	}

	return Head{Number: number, Hash: common.HexToHash(env.Params.Result.Hash)}, true, nil
}

func emitErrNonBlocking(ch chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	j := int64(d) / 7
	if j > 0 {
		d = time.Duration(int64(d) + rand.Int64N(2*j+1) - j)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
