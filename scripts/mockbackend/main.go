// Mockbackend runs an in-process MCP server for trying the gateway locally.
// It answers initialize, the list methods, tools/call, resources/read and
// prompts/get on POST /mcp and serves GET /health.
//
// Usage:
//
//	go run ./scripts/mockbackend -port 8081 -tools findTrips,findStations
//	go run ./scripts/mockbackend -port 8082 -tools forecast -sse -sessions
//	go run ./scripts/mockbackend -port 8083 -tools broken -fail
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/angeloszaimis/mcp-gateway/internal/mcptest"
	"github.com/angeloszaimis/mcp-gateway/pkg/logger"
)

func main() {
	var (
		port      = flag.Int("port", 8081, "port to listen on")
		tools     = flag.String("tools", "echo", "comma separated tool names")
		resources = flag.String("resources", "", "comma separated resource URIs")
		prompts   = flag.String("prompts", "", "comma separated prompt names")
		sse       = flag.Bool("sse", false, "answer with text/event-stream records")
		sessions  = flag.Bool("sessions", false, "require Mcp-Session-Id after initialize")
		fail      = flag.Bool("fail", false, "answer every call with 500")
	)
	flag.Parse()

	log := logger.New("info", false, "dev")

	srv := mcptest.NewUnstartedServer()
	for _, name := range split(*tools) {
		srv.AddTool(name, "")
	}
	for _, uri := range split(*resources) {
		srv.AddResource(uri, uri)
	}
	for _, name := range split(*prompts) {
		srv.AddPrompt(name)
	}
	srv.UseSSE(*sse)
	srv.RequireSessions(*sessions)
	srv.FailCalls(*fail)

	addr := fmt.Sprintf("127.0.0.1:%d", *port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		log.Error("failed to listen", slog.String("address", addr), slog.Any("err", err))
		os.Exit(1)
	}
	srv.Listener.Close()
	srv.Listener = l
	srv.Start()
	defer srv.Close()

	log.Info("mock backend listening",
		slog.String("endpoint", srv.Endpoint()),
		slog.Bool("sse", *sse),
		slog.Bool("sessions", *sessions))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func split(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
