package forward

import (
	"context"
	"net"
	"sync"

	"sudoq/internal/client"
	"sudoq/internal/flog"
	"sudoq/internal/pkg/buffer"
)

// Forward exposes one local TCP listener whose connections are carried
// through the tunnel to a fixed target.
type Forward struct {
	client     *client.Client
	listenAddr string
	targetAddr string
	wg         sync.WaitGroup
}

func New(client *client.Client, listenAddr, targetAddr string) (*Forward, error) {
	return &Forward{
		client:     client,
		listenAddr: listenAddr,
		targetAddr: targetAddr,
	}, nil
}

func (f *Forward) Start(ctx context.Context) error {
	flog.Debugf("starting forwarder: %s -> %s", f.listenAddr, f.targetAddr)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := f.listen(ctx); err != nil {
			flog.Debugf("forwarder stopped with: %v", err)
		}
	}()
	return nil
}

func (f *Forward) listen(ctx context.Context) error {
	listener, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		flog.Errorf("forwarder failed to listen on %s: %v", f.listenAddr, err)
		return err
	}
	flog.Infof("forwarder listening on %s -> %s", f.listenAddr, f.targetAddr)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			defer conn.Close()
			f.handle(ctx, conn)
		}()
	}
}

func (f *Forward) handle(ctx context.Context, conn net.Conn) {
	strm, err := f.client.Dial(ctx, f.targetAddr)
	if err != nil {
		flog.Errorf("forwarder failed to reach %s: %v", f.targetAddr, err)
		return
	}
	defer strm.Close()

	if err := buffer.Join(conn, strm); err != nil {
		flog.Debugf("forward %s -> %s ended: %v", conn.RemoteAddr(), f.targetAddr, err)
	}
}
