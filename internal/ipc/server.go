package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/wmcore/internal/runtimepath"
)

// Handler answers IPC queries. The daemon implements it by hopping onto
// the engine's goroutine.
type Handler interface {
	Status() (StatusData, error)
	Toplevels() ([]ToplevelInfo, error)
	Outputs() ([]OutputInfo, error)
	Module() (ModuleData, error)
	ReloadModule(path string) (ModuleData, error)
}

// Server handles IPC requests from clients
type Server struct {
	socketPath   string
	listener     net.Listener
	handler      Handler
	logger       *slog.Logger
	timeout      time.Duration
	shuttingDown bool
	shutdownMu   sync.Mutex
	wg           sync.WaitGroup
}

// NewServer creates a server on the default socket path.
func NewServer(h Handler, logger *slog.Logger) (*Server, error) {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
	}
	return NewServerAt(socketPath, h, logger), nil
}

// NewServerAt creates a server listening on socketPath.
func NewServerAt(socketPath string, h Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		handler:    h,
		logger:     logger,
		timeout:    5 * time.Second,
	}
}

// SocketPath returns the socket the server listens on.
func (s *Server) SocketPath() string { return s.socketPath }

// Start begins listening for IPC connections
func (s *Server) Start() error {
	// Remove a stale socket left by a crashed daemon.
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) closing() bool {
	s.shutdownMu.Lock()
	defer s.shutdownMu.Unlock()
	return s.shuttingDown
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closing() {
				return
			}
			s.logger.Warn("IPC accept error", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.timeout))

	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Warn("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	resp := s.handleCommand(req)

	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal IPC response", "command", req.Command, "error", err)
		return
	}

	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Warn("failed to send IPC response", "command", req.Command, "error", err)
	}
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	switch req.Command {
	case CommandGetStatus:
		return respond(s.handler.Status())
	case CommandListToplevels:
		list, err := s.handler.Toplevels()
		return respond(ToplevelsData{Toplevels: list}, err)
	case CommandListOutputs:
		list, err := s.handler.Outputs()
		return respond(OutputsData{Outputs: list}, err)
	case CommandGetModule:
		return respond(s.handler.Module())
	case CommandReloadModule:
		return s.handleReloadModule(req.Payload)
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (s *Server) handleReloadModule(payload json.RawMessage) *Response {
	var req ReloadModulePayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return NewErrorResponse(fmt.Sprintf("Invalid reload payload: %v", err))
		}
	}
	s.logger.Info("IPC: reload module requested", "path", req.Path)
	return respond(s.handler.ReloadModule(req.Path))
}

func respond[T any](data T, err error) *Response {
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

// sendError sends an error response
func (s *Server) sendError(conn net.Conn, errMsg string) {
	resp := NewErrorResponse(errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop gracefully shuts down the IPC server and waits for in-flight
// requests.
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}
