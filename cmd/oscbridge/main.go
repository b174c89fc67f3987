// Command oscbridge relays OSC between UDP and WebSocket clients.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/1risS/in.organico/bridge"
	"github.com/charmbracelet/log"
)

func main() {
	var wsAddr = flag.String("ws", ":8080", "WebSocket listen address")
	var udpIn = flag.String("udp-in", ":9130", "UDP address to receive OSC on")
	var udpOut = flag.String("udp-out", "127.0.0.1:9129", "UDP address WebSocket traffic is sent to")
	var debug = flag.Bool("debug", false, "Log every relayed packet")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bridge.New(*udpOut)
	if err != nil {
		log.Fatal("Failed to create bridge", "err", err)
	}
	defer b.Close()

	pc, err := net.ListenPacket("udp", *udpIn)
	if err != nil {
		log.Fatal("Failed to listen for UDP", "addr", *udpIn, "err", err)
	}
	go func() {
		if err := b.ServeUDP(ctx, pc); err != nil {
			log.Error("UDP relay stopped", "err", err)
			stop()
		}
	}()

	srv := &http.Server{Addr: *wsAddr, Handler: b}
	context.AfterFunc(ctx, func() { srv.Close() })
	log.Infof("Port %s is open now.", *wsAddr)
	log.Infof("Will redirect RMS messages to UDP %s", *udpOut)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("WebSocket server failed", "err", err)
	}
}
