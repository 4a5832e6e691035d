package service

import (
	"strings"
	"sync"
	"time"

	"github.com/airenas/callrec/internal/pkg/events"
	"github.com/airenas/go-app/pkg/goapp"
)

// WsConn is interface for websocket handling in control service
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// Subscriber provides event subscription
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// WSConnKeeper streams events to websocket clients.
// A client may send a comma separated list of event types to receive only those
type WSConnKeeper struct {
	events  Subscriber
	conns   map[WsConn]map[string]bool
	mapLock *sync.Mutex
	timeOut time.Duration
}

// NewWSConnKeeper creates manager
func NewWSConnKeeper(events Subscriber) *WSConnKeeper {
	res := &WSConnKeeper{events: events}
	res.conns = make(map[WsConn]map[string]bool)
	res.mapLock = &sync.Mutex{}
	res.timeOut = time.Minute * 30 // idle connection limit
	return res
}

// HandleConnection loops until connection is active
func (kp *WSConnKeeper) HandleConnection(conn WsConn) error {
	evCh, unsubscribe := kp.events.Subscribe()
	defer unsubscribe()
	defer kp.deleteConnection(conn)
	defer conn.Close()
	kp.saveConnection(conn, "")

	done := make(chan struct{})
	defer close(done)
	readCh := make(chan string)
	go func() {
		defer close(readCh)
		defer goapp.Log.Debug().Msg("read routine ended")
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				goapp.Log.Debug().Err(err).Msg("read")
				return
			}
			msg := strings.TrimSpace(string(message))
			goapp.Log.Debug().Str("msg", goapp.Sanitize(msg)).Msg("got msg")
			select {
			case readCh <- msg:
			case <-done:
				return
			}
		}
	}()

	ta := time.After(kp.timeOut)
loop:
	for {
		select {
		case <-ta:
			goapp.Log.Debug().Msg("conn timeouted")
			break loop
		case msg, ok := <-readCh:
			if !ok {
				goapp.Log.Debug().Msg("conn read closed")
				break loop
			}
			kp.saveConnection(conn, msg)
			ta = time.After(kp.timeOut)
		case ev, ok := <-evCh:
			if !ok {
				break loop
			}
			if !kp.wants(conn, ev.Type) {
				continue
			}
			if err := conn.WriteJSON(ev); err != nil {
				goapp.Log.Warn().Err(err).Msg("can't write to websocket")
				break loop
			}
			ta = time.After(kp.timeOut)
		}
	}
	goapp.Log.Info().Msg("handleConnection finish")
	return nil
}

func (kp *WSConnKeeper) wants(conn WsConn, evType string) bool {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	f := kp.conns[conn]
	return len(f) == 0 || f[evType]
}

func (kp *WSConnKeeper) deleteConnection(conn WsConn) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	delete(kp.conns, conn)
	goapp.Log.Info().Int("active", len(kp.conns)).Msg("deleteConnection finish")
}

func (kp *WSConnKeeper) saveConnection(conn WsConn, filter string) {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	f := map[string]bool{}
	for _, s := range strings.Split(filter, ",") {
		if s = strings.TrimSpace(s); s != "" {
			f[s] = true
		}
	}
	kp.conns[conn] = f
	goapp.Log.Info().Int("active", len(kp.conns)).Int("filter", len(f)).Msg("saveConnection finish")
}

// Active returns count of connected clients
func (kp *WSConnKeeper) Active() int {
	kp.mapLock.Lock()
	defer kp.mapLock.Unlock()
	return len(kp.conns)
}
