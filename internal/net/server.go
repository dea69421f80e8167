package net

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	. "bricktok/internal/common"
	"bricktok/internal/engine"
	"bricktok/internal/metrics"
	"bricktok/internal/utils"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	defaultNWorkers      = 10
	defaultIdleTimeout   = 60 * time.Second
	defaultWriteTimeout  = time.Second
	clientMessageBufSize = 64
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	conn      net.Conn
	writeLock sync.Mutex
}

// ClientMessage links a message to the client sending it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

// Server is the binary order-entry gateway. It accepts new orders and depth
// requests, and broadcasts every synthetic print to all sessions.
type Server struct {
	address            string
	port               int
	engine             *engine.Engine
	pool               utils.WorkerPool
	idleTimeout        time.Duration
	clientSessions     map[string]*ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan (ClientMessage)

	listener net.Listener
	ready    chan struct{}
}

// New returns a gateway bound to eng. workers caps the number of
// concurrently served connections; zero uses the default.
func New(address string, port int, workers uint, eng *engine.Engine) *Server {
	if workers == 0 {
		workers = defaultNWorkers
	}
	return &Server{
		address:        address,
		port:           port,
		engine:         eng,
		pool:           utils.NewWorkerPool(workers),
		idleTimeout:    defaultIdleTimeout,
		clientSessions: make(map[string]*ClientSession),
		clientMessages: make(chan ClientMessage, clientMessageBufSize),
		ready:          make(chan struct{}),
	}
}

// Addr blocks until Run has tried to listen and returns the bound address,
// or nil if listening failed.
func (s *Server) Addr() net.Addr {
	<-s.ready
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		close(s.ready)
		return err
	}
	s.listener = listener
	close(s.ready)

	// Closing the listener unblocks Accept on shutdown.
	t.Go(func() error {
		<-t.Dying()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
		s.closeAllSessions()
		return nil
	})

	// Start the worker pool.
	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	// Start the session handler.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	log.Info().Str("address", listener.Addr().String()).Msg("gateway running")

	t.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-t.Dying():
					return nil
				default:
				}
				log.Error().Err(err).Msg("error accepting client")
				metrics.GatewayErrorsTotal.WithLabelValues("accept").Inc()
				continue
			}

			address := conn.RemoteAddr().String()
			log.Info().Str("address", address).Msg("new client added")
			// We expect to potentially maintain a long TCP session.
			s.addClientSession(conn)

			// Pass over the connection to be read from.
			if err := s.pool.AddTask(conn); err != nil {
				log.Warn().Err(err).Str("address", address).Msg("rejecting client")
				s.deleteClientSession(address)
				_ = conn.Close()
			}
		}
	})

	err = t.Wait()
	log.Info().Msg("gateway shut down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ReportTrade broadcasts a print to every open session.
func (s *Server) ReportTrade(trade Trade) {
	report, err := generateTradeReport(trade)
	if err != nil {
		log.Error().Err(err).Msg("unable to build trade report")
		return
	}
	payload := report.Serialize()

	s.clientSessionsLock.Lock()
	addresses := make([]string, 0, len(s.clientSessions))
	for address := range s.clientSessions {
		addresses = append(addresses, address)
	}
	s.clientSessionsLock.Unlock()

	for _, address := range addresses {
		if err := s.send(address, payload); err != nil {
			log.Debug().Err(err).Str("address", address).Msg("trade report not delivered")
		}
	}
}

// ReportBook is a no-op: gateway clients poll depth explicitly.
func (s *Server) ReportBook(engine.Snapshot) {}

// send writes a serialized report to one client. A failed write drops the
// session.
func (s *Server) send(clientAddress string, payload []byte) error {
	s.clientSessionsLock.Lock()
	client, ok := s.clientSessions[clientAddress]
	s.clientSessionsLock.Unlock()
	if !ok {
		return ErrClientDoesNotExist
	}

	client.writeLock.Lock()
	defer client.writeLock.Unlock()
	_ = client.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	if _, err := client.conn.Write(payload); err != nil {
		metrics.GatewayErrorsTotal.WithLabelValues("write").Inc()
		s.deleteClientSession(clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// sessionHandler reads off incoming messages from clients and handles them
// one at a time. Messages are received from the pool of workers.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			s.handleMessage(message)
		}
	}
}

func (s *Server) handleMessage(message ClientMessage) {
	now := time.Now()
	var report Report
	switch m := message.message.(type) {
	case *NewOrderMessage:
		req := m.Request()
		// The engine drops invalid orders silently, gateway clients get told.
		if err := req.Validate(); err != nil {
			report = generateErrorReport(err, now)
			break
		}
		order, ok := s.engine.Submit(req)
		if !ok {
			report = generateErrorReport(ErrInvalidOrder, now)
			break
		}
		var err error
		if report, err = generateAckReport(order); err != nil {
			report = generateErrorReport(err, now)
		}
	case *DepthRequestMessage:
		report = generateDepthReport(s.engine.Depth(int(m.Levels)), now)
	default:
		return
	}

	if err := s.send(message.clientAddress, report.Serialize()); err != nil {
		log.Debug().Err(err).Str("address", message.clientAddress).Msg("report not delivered")
	}
}

// handleConnection is a long-lived worker method which reads framed messages
// off the connection and passes them forward to sessionHandler. When the
// connection dies or stays idle too long, the client session is cleaned up.
// Note, any error returned from here is fatal to the worker.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}
	address := conn.RemoteAddr().String()
	metrics.GatewaySessions.Inc()

	defer func() {
		metrics.GatewaySessions.Dec()
		s.deleteClientSession(address)
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debug().Str("address", address).Err(err).Msg("close failed")
		}
	}()

	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
			log.Error().
				Str("address", address).
				Err(err).
				Msg("failed setting deadline for connection")
			return nil
		}

		message, err := readMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				log.Info().Str("address", address).Msg("client disconnected")
				return nil
			}
			log.Error().
				Err(err).
				Str("address", address).
				Msg("error reading from connection")
			metrics.GatewayErrorsTotal.WithLabelValues("read").Inc()

			// Framing is lost after a bad message, tell the client and drop it.
			if errors.Is(err, ErrInvalidMessageType) || errors.Is(err, ErrInvalidSide) ||
				errors.Is(err, ErrInvalidPrice) {
				report := generateErrorReport(err, time.Now())
				_ = s.send(address, report.Serialize())
			}
			return nil
		}

		select {
		case <-t.Dying():
			return nil
		case s.clientMessages <- ClientMessage{message: message, clientAddress: address}:
		}
	}
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	s.clientSessions[conn.RemoteAddr().String()] = &ClientSession{
		conn: conn,
	}
}

// deleteClientSession is an atomic map remove
func (s *Server) deleteClientSession(address string) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	delete(s.clientSessions, address)
}

func (s *Server) closeAllSessions() {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	for address, client := range s.clientSessions {
		_ = client.conn.Close()
		delete(s.clientSessions, address)
	}
}
