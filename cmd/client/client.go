package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"bricktok/internal/common"
	bricktokNet "bricktok/internal/net"
)

func main() {
	// 1. CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the gateway")
	action := flag.String("action", "place", "Action to perform: ['place', 'depth']")

	// Order Parameters
	sideStr := flag.String("side", "buy", "Order side: 'buy'/'bid' or 'sell'/'ask'")
	price := flag.Float64("price", 1000.0, "Limit price")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")

	// Depth Parameters
	levels := flag.Uint("levels", 10, "Levels per side summed for depth")

	flag.Parse()

	// Connect to Server
	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to gateway at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s\n", *serverAddr)

	// Start Listening for Reports (Async)
	go readReports(conn)

	// Execute Action
	switch strings.ToLower(*action) {
	case "place":
		side, err := common.ParseSide(*sideStr)
		if err != nil {
			log.Fatalf("Error: %v", err)
		}
		for _, q := range parseQuantities(*qtyStr) {
			if _, err := conn.Write(bricktokNet.EncodeNewOrder(side, *price, q)); err != nil {
				log.Printf("Failed to place order (Qty: %d): %v", q, err)
			} else {
				fmt.Printf("-> Sent %s Order: %d @ %.2f\n", strings.ToUpper(side.String()), q, *price)
			}
		}

	case "depth":
		if _, err := conn.Write(bricktokNet.EncodeDepthRequest(uint16(*levels))); err != nil {
			log.Printf("Failed to send depth request: %v", err)
		} else {
			fmt.Println("-> Sent Depth Request")
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	// Keep the client alive to receive reports; heartbeats keep the
	// session from idling out.
	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	for range time.Tick(30 * time.Second) {
		if _, err := conn.Write(bricktokNet.EncodeHeartbeat()); err != nil {
			log.Fatalf("Heartbeat failed: %v", err)
		}
	}
}

// parseQuantities splits a comma-separated string into a slice of uint64
func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("Warning: Invalid quantity '%s', skipping.", p)
		}
	}
	return result
}

// readReports continuously reads and prints reports from the gateway
func readReports(conn net.Conn) {
	for {
		report, err := bricktokNet.ReadReport(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}

		ts := time.UnixMilli(int64(report.Timestamp)).Format(common.ClockLayout)
		switch report.MessageType {
		case bricktokNet.ErrorReport:
			fmt.Printf("\n[SERVER ERROR] %s\n", report.Err)
		case bricktokNet.AckReport:
			fmt.Printf("\n[ACK] %s | Qty: %d | Price: %.2f | ID: %s\n",
				strings.ToUpper(common.Side(report.Side).String()), report.Quantity, report.Price, report.UUID)
		case bricktokNet.TradeReport:
			fmt.Printf("\n[TRADE %s] %s | Qty: %d | Price: %.2f\n",
				ts, strings.ToUpper(common.Direction(report.Side).String()), report.Quantity, report.Price)
		case bricktokNet.DepthReport:
			fmt.Printf("\n[DEPTH] Bids: %.1f%% | Asks: %.1f%% | Total: %d\n",
				report.BidShare, report.AskShare, report.Quantity)
		}
	}
}
