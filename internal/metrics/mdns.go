package metrics

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
)

const mdnsServiceType = "_pendant._tcp"

// StartMDNS advertises the metrics endpoint over mDNS and returns a
// cleanup function. The registration is also withdrawn when ctx ends.
func StartMDNS(ctx context.Context, name string, port int, meta []string) (func(), error) {
	instance := name
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("pendant-%s", host)
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("metrics: mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		svc.Shutdown()
	}()
	return func() {
		close(done)
		svc.Shutdown()
		time.Sleep(50 * time.Millisecond)
	}, nil
}
