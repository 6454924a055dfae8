package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"fenrir/internal/common"
	"fenrir/internal/fixedpoint"
	fenrirNet "fenrir/internal/net"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	owner := flag.String("owner", "", "Owner username (compulsory)")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel']")

	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	behaviorStr := flag.String("behavior", "gtc", "Order behavior: 'gtc', 'post', 'ioc', or 'fok'")
	price := flag.Float64("price", 100.0, "Limit price (0 for a market order)")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")
	maxCollateral := flag.Float64("max-collateral", 0, "Market-buy max collateral (quote units)")

	orderID := flag.Uint64("order-id", 0, "Order id to cancel")

	flag.Parse()

	if *owner == "" {
		fmt.Println("Error: -owner is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("Failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s as '%s'\n", *serverAddr, *owner)

	go readReports(conn)

	side := common.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = common.Sell
	}
	behavior := parseBehavior(*behaviorStr)

	switch strings.ToLower(*action) {
	case "place":
		for _, q := range parseQuantities(*qtyStr) {
			buf := fenrirNet.EncodeNewOrder(
				side, behavior,
				fixedpoint.FromRaw(uint64(*price*1e10)),
				fixedpoint.FromRaw(uint64(q*1e10)),
				0,
				fixedpoint.FromRaw(uint64(*maxCollateral*1e10)),
				*owner,
			)
			if _, err := conn.Write(buf); err != nil {
				log.Printf("Failed to place order (Qty: %d): %v", q, err)
				continue
			}
			fmt.Printf("-> Sent %s %s Order: qty=%d @ %.2f\n", strings.ToUpper(*sideStr), strings.ToUpper(*behaviorStr), q, *price)
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *orderID == 0 {
			log.Fatal("Error: -order-id is required for cancellation")
		}
		if _, err := conn.Write(fenrirNet.EncodeCancelOrder(uint32(*orderID))); err != nil {
			log.Printf("Failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> Sent Cancel Request for order %d\n", *orderID)
		}

	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	fmt.Println("\nListening for reports... (Press Ctrl+C to exit)")
	select {}
}

func parseBehavior(s string) common.Behavior {
	switch strings.ToLower(s) {
	case "post":
		return common.POST
	case "ioc":
		return common.IOC
	case "fok":
		return common.FOK
	default:
		return common.GTC
	}
}

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

// readReports continuously reads and parses Report messages from the server.
func readReports(conn net.Conn) {
	for {
		headerBuf := make([]byte, 29)
		if _, err := io.ReadFull(conn, headerBuf); err != nil {
			if err != io.EOF {
				log.Printf("Connection lost: %v", err)
			}
			os.Exit(0)
		}
		errLen := int(binary.BigEndian.Uint32(headerBuf[25:29]))
		rest := headerBuf
		if errLen > 0 {
			errBuf := make([]byte, errLen)
			if _, err := io.ReadFull(conn, errBuf); err != nil {
				log.Printf("Connection lost: %v", err)
				os.Exit(0)
			}
			rest = append(rest, errBuf...)
		}
		report, err := fenrirNet.ParseReport(rest)
		if err != nil {
			log.Printf("Error parsing report: %v", err)
			continue
		}
		switch report.MessageType {
		case fenrirNet.ErrorReport:
			fmt.Printf("\n[SERVER ERROR] %s\n", report.Err)
		case fenrirNet.ExecutionReport:
			fmt.Printf("\n[EXECUTION] qty=%d price=%d ts=%d\n", report.Qty, report.Price, report.TimestampSecs)
		case fenrirNet.FinalizeReport:
			fmt.Printf("\n[FINALIZE] originalQty=%d price=%d ts=%d\n", report.Qty, report.Price, report.TimestampSecs)
		}
	}
}
