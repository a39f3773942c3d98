package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/remeh/sizedwaitgroup"
	"golang.org/x/time/rate"
)

// ServerInfo is one entry from the match directory. Consumed read-only;
// latency is the only thing the client adds.
type ServerInfo struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Players   int    `json:"players"`
	Connected int    `json:"connected_players"`
	Status    string `json:"status"`

	Latency time.Duration `json:"-"`
}

// address resolves the dialable endpoint; entries without an explicit
// host live on the directory's own machine.
func (s ServerInfo) address(directoryHost string) string {
	host := s.Host
	if host == "" {
		host = directoryHost
	}
	return net.JoinHostPort(host, fmt.Sprint(s.Port))
}

type serverListResponse struct {
	Servers []ServerInfo `json:"servers"`
}

// serverDirectory keeps the list of joinable servers current, by
// websocket push when the dashboard supports it and by rate-limited
// polling otherwise.
type serverDirectory struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter

	mu       sync.Mutex
	servers  []ServerInfo
	selected int
	lastErr  error
	fetched  time.Time
}

func newServerDirectory(baseURL string) *serverDirectory {
	return &serverDirectory{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		limiter: rate.NewLimiter(rate.Every(3*time.Second), 1),
	}
}

func (d *serverDirectory) host() string {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return "127.0.0.1"
	}
	return u.Hostname()
}

// Servers returns a copy of the current list.
func (d *serverDirectory) Servers() []ServerInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ServerInfo(nil), d.servers...)
}

func (d *serverDirectory) Selected() (ServerInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.selected < 0 || d.selected >= len(d.servers) {
		return ServerInfo{}, false
	}
	return d.servers[d.selected], true
}

func (d *serverDirectory) moveSelection(delta int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.servers) == 0 {
		return
	}
	d.selected = (d.selected + delta + len(d.servers)) % len(d.servers)
}

func (d *serverDirectory) setServers(list []ServerInfo) {
	d.mu.Lock()
	if d.selected >= len(list) {
		d.selected = 0
	}
	d.servers = list
	d.lastErr = nil
	d.fetched = time.Now()
	d.mu.Unlock()
}

func (d *serverDirectory) setError(err error) {
	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}

// Refresh fetches the list once over HTTP, obeying the limiter so a
// held-down refresh key cannot hammer the dashboard.
func (d *serverDirectory) Refresh(ctx context.Context) error {
	if !d.limiter.Allow() {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/api/servers", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		d.setError(err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("directory returned %s", resp.Status)
		d.setError(err)
		return err
	}
	var body serverListResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		d.setError(err)
		return err
	}
	d.setServers(body.Servers)
	go d.probeLatencies(ctx, body.Servers)
	return nil
}

// Run keeps the list live. It prefers a websocket subscription to the
// dashboard's push endpoint; if that is unavailable it falls back to
// periodic polling.
func (d *serverDirectory) Run(ctx context.Context) {
	d.Refresh(ctx)
	for ctx.Err() == nil {
		if err := d.subscribe(ctx); err != nil && ctx.Err() == nil {
			logDebug("directory push unavailable: %v; polling", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(15 * time.Second):
		}
		d.Refresh(ctx)
	}
}

// subscribe reads pushed server lists until the socket drops.
func (d *serverDirectory) subscribe(ctx context.Context) error {
	wsURL := strings.Replace(d.baseURL, "http", "ws", 1) + "/api/servers/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		var body serverListResponse
		if err := conn.ReadJSON(&body); err != nil {
			return err
		}
		d.setServers(body.Servers)
	}
}

// probeLatencies measures TCP connect time to each listed server, a
// bounded number at a time.
func (d *serverDirectory) probeLatencies(ctx context.Context, list []ServerInfo) {
	host := d.host()
	results := make([]time.Duration, len(list))
	swg := sizedwaitgroup.New(4)
	for i := range list {
		if err := swg.AddWithContext(ctx); err != nil {
			return
		}
		go func(i int) {
			defer swg.Done()
			start := time.Now()
			conn, err := net.DialTimeout("tcp", list[i].address(host), 3*time.Second)
			if err != nil {
				results[i] = -1
				return
			}
			conn.Close()
			results[i] = time.Since(start)
		}(i)
	}
	swg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.servers {
		for j := range list {
			if d.servers[i].Name == list[j].Name && d.servers[i].Port == list[j].Port && results[j] > 0 {
				d.servers[i].Latency = results[j]
			}
		}
	}
}
