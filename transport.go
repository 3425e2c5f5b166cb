package dirshare

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	log "github.com/cihub/seelog"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/schollz/peerdiscovery"
)

// transport moves messages between peers: a gin server receives them, LAN
// multicast discovery finds peers sharing the passcode, and outbound messages
// fan out to every live peer over HTTP.
type transport struct {
	ds *DirShare

	peers []string
	sync.RWMutex
}

func newTransport(ds *DirShare) *transport {
	return &transport{ds: ds}
}

func (t *transport) watchForPeers() (err error) {
	t.ds.RLock()
	passcode := []byte(t.ds.Passcode)
	port := t.ds.Port
	t.ds.RUnlock()

	discoveries, errDiscover := peerdiscovery.Discover(peerdiscovery.Settings{
		Limit:     -1,
		TimeLimit: 2 * time.Second,
		Delay:     1 * time.Millisecond,
		Payload:   passcode,
	})
	if errDiscover != nil {
		err = errors.Wrap(errDiscover, "problem discovering")
		return
	}
	for {
		peers := make([]string, len(discoveries))
		i := 0
		for _, discovery := range discoveries {
			if !bytes.Equal(discovery.Payload, passcode) {
				continue
			}
			if errCheck := checkPeer(discovery.Address + ":" + port); errCheck != nil {
				continue
			}
			peers[i] = discovery.Address
			i++
		}
		peers = peers[:i]
		log.Debugf("have %d peers: %+v", len(peers), peers)
		t.Lock()
		t.peers = peers
		t.Unlock()

		discoveries, errDiscover = peerdiscovery.Discover(peerdiscovery.Settings{
			Limit:     -1,
			TimeLimit: 10 * time.Second,
			Delay:     1 * time.Millisecond,
			Payload:   passcode,
		})
		if errDiscover != nil {
			err = errors.Wrap(errDiscover, "problem discovering")
			return
		}
	}
}

func (t *transport) listen() (err error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleWareHandler(), gin.Recovery())
	r.HEAD("/", func(c *gin.Context) { // liveness check for peers
		c.String(http.StatusOK, "OK")
	})
	r.POST("/event", func(c *gin.Context) {
		var event ChangeEvent
		handle(c, func() error {
			if err := c.ShouldBindJSON(&event); err != nil {
				return err
			}
			return t.ds.reconciler.HandleEvent(event)
		})
	})
	r.POST("/content", func(c *gin.Context) {
		var content FileContent
		handle(c, func() error {
			if err := c.ShouldBindJSON(&content); err != nil {
				return err
			}
			return t.ds.reconciler.HandleContent(content)
		})
	})
	r.POST("/chunk", func(c *gin.Context) {
		var chunk FileChunk
		handle(c, func() error {
			if err := c.ShouldBindJSON(&chunk); err != nil {
				return err
			}
			return t.ds.reconciler.HandleChunk(chunk)
		})
	})
	r.POST("/snapshot", func(c *gin.Context) {
		var snapshot DirectorySnapshot
		handle(c, func() error {
			if err := c.ShouldBindJSON(&snapshot); err != nil {
				return err
			}
			t.ds.handleSnapshot(snapshot)
			return nil
		})
	})

	t.ds.RLock()
	address := getLocalIP() + ":" + t.ds.Port
	t.ds.RUnlock()
	log.Infof("running server on %s", address)
	err = r.Run(address)
	return
}

func handle(c *gin.Context, fn func() error) {
	if err := fn(); err != nil {
		c.JSON(200, Response{Success: false, Message: err.Error()})
		return
	}
	c.JSON(200, Response{Success: true, Message: "ok"})
}

func (t *transport) PublishEvent(event ChangeEvent) error {
	return t.broadcast("/event", event)
}

func (t *transport) PublishContent(content FileContent) error {
	return t.broadcast("/content", content)
}

func (t *transport) PublishChunk(chunk FileChunk) error {
	return t.broadcast("/chunk", chunk)
}

func (t *transport) PublishSnapshot(snapshot DirectorySnapshot) error {
	return t.broadcast("/snapshot", snapshot)
}

func (t *transport) broadcast(endpoint string, payload interface{}) (err error) {
	t.RLock()
	peers := t.peers
	t.RUnlock()
	t.ds.RLock()
	port := t.ds.Port
	t.ds.RUnlock()

	if len(peers) == 0 {
		return
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		err = errors.Wrap(err, "problem marshaling "+endpoint)
		return
	}
	for _, peer := range peers {
		errSend := postJSON("http://"+peer+":"+port+endpoint, payloadBytes)
		if errSend != nil {
			log.Warnf("problem sending %s to %s: %s", endpoint, peer, errSend)
			err = errSend
		}
	}
	return
}

func postJSON(url string, payload []byte) (err error) {
	req, err := http.NewRequest("POST", url, bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	var target Response
	err = json.NewDecoder(resp.Body).Decode(&target)
	if err != nil {
		return
	}
	if !target.Success {
		err = errors.New(target.Message)
	}
	return
}

func checkPeer(server string) (err error) {
	client := http.Client{
		Timeout: 1 * time.Second,
	}
	req, err := http.NewRequest("HEAD", "http://"+server+"/", nil)
	if err != nil {
		return
	}
	_, err = client.Do(req)
	return
}

func middleWareHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		t := time.Now()
		c.Next()
		log.Debugf("%v %v %v %s", c.Request.RemoteAddr, c.Request.Method, c.Request.URL, time.Since(t))
	}
}
