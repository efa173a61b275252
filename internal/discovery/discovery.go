// Package discovery locates the bridge on the local network by probing the
// /ip responder across candidate /24 ranges.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	applog "stockroom/internal/log"
)

// Answer is the /ip response body.
type Answer struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

func (a Answer) URL() string {
	return "ws://" + net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// Probe asks one host for its Answer.
type Probe func(ctx context.Context, host string, port int) (Answer, error)

type Resolver struct {
	Ranges     []string
	Port       int // discovery port
	BridgePort int // used by the fallback address
	Timeout    time.Duration
	Workers    int
	Probe      Probe
}

// Resolve returns the first responder's ws:// address, or the platform
// fallback when nobody answers. Only cancellation of ctx is an error.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = 32
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 400 * time.Millisecond
	}
	probe := r.Probe
	if probe == nil {
		probe = HTTPProbe(timeout)
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hosts := make(chan string)
	found := make(chan Answer, 1)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for h := range hosts {
				if sctx.Err() != nil {
					continue
				}
				a, err := probe(sctx, h, r.Port)
				if err != nil || a.IP == "" || a.Port == 0 {
					continue
				}
				select {
				case found <- a:
					cancel()
				default:
				}
			}
		}()
	}
	go func() {
		defer close(hosts)
		for _, prefix := range r.Ranges {
			for i := 1; i < 255; i++ {
				select {
				case hosts <- prefix + "." + strconv.Itoa(i):
				case <-sctx.Done():
					return
				}
			}
		}
	}()
	wg.Wait()

	select {
	case a := <-found:
		applog.Info(nil, "discovery.found", map[string]any{"addr": a.URL()})
		return a.URL(), nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	addr := Fallback(r.BridgePort)
	applog.Info(nil, "discovery.fallback", map[string]any{"addr": addr, "ranges": r.Ranges})
	return addr, nil
}

// Fallback is the emulator host alias on Android and loopback elsewhere.
func Fallback(port int) string {
	host := "127.0.0.1"
	if runtime.GOOS == "android" {
		host = "10.0.2.2"
	}
	return Answer{IP: host, Port: port}.URL()
}

// HTTPProbe issues GET http://host:port/ip with a per-request timeout.
func HTTPProbe(timeout time.Duration) Probe {
	return func(ctx context.Context, host string, port int) (Answer, error) {
		if err := ctx.Err(); err != nil {
			return Answer{}, err
		}
		var a Answer
		url := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/ip"
		code, _, errs := fiber.Get(url).Timeout(timeout).Struct(&a)
		if len(errs) > 0 {
			return Answer{}, errors.Join(errs...)
		}
		if code != fiber.StatusOK {
			return Answer{}, fmt.Errorf("%s: status %d", url, code)
		}
		return a, nil
	}
}

// LocalIP is the first non-loopback IPv4 address of this host, or "" if none.
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok || ipn.IP.IsLoopback() {
			continue
		}
		if v4 := ipn.IP.To4(); v4 != nil {
			return v4.String()
		}
	}
	return ""
}
