// Command line client for the courier message delivery service.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/l3v3l/courier/clients/go/courier"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("COURIER_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := courier.NewClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "register":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: courier register <username>")
			os.Exit(1)
		}
		resp, err := client.Register(os.Args[2])
		exitOnError(err)
		fmt.Printf("Registered as: %s (%s)\n", resp.Username, resp.ID)

	case "send":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: courier send <username> <message>")
			os.Exit(1)
		}
		to, err := client.LookupUser(os.Args[2])
		exitOnError(err)
		resp, err := client.SendMessage(to.ID, os.Args[3])
		exitOnError(err)
		fmt.Printf("Sent: %s\n", resp.ID)

	case "poll":
		since := int64(0)
		msgs, err := client.Poll(since, 50)
		exitOnError(err)
		for _, msg := range msgs {
			printMessage(msg)
		}

	case "watch":
		watch(client)

	case "history":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: courier history <username>")
			os.Exit(1)
		}
		partner, err := client.LookupUser(os.Args[2])
		exitOnError(err)
		resp, err := client.History(partner.ID, 0, 50)
		exitOnError(err)
		// Newest first from the server; print oldest first
		for i := len(resp.Messages) - 1; i >= 0; i-- {
			printMessage(resp.Messages[i])
		}

	case "conversations":
		resp, err := client.Conversations()
		exitOnError(err)
		for _, c := range resp {
			ts := time.UnixMilli(c.LastTimestamp).Format("2006-01-02 15:04:05")
			fmt.Printf("[%s] %s: %s (%d unread)\n", ts, c.PartnerUsername, c.LastBody, c.UnreadCount)
		}

	case "unread":
		resp, err := client.Unread()
		exitOnError(err)
		printJSON(resp)

	case "online":
		resp, err := client.OnlineUsers()
		exitOnError(err)
		for _, id := range resp.Online {
			fmt.Println(" ", id)
		}
		fmt.Printf("%d online\n", resp.Count)

	case "whois":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: courier whois <username>")
			os.Exit(1)
		}
		resp, err := client.LookupUser(os.Args[2])
		exitOnError(err)
		printJSON(resp)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

// watch runs the polling loop until interrupted, printing messages as
// they arrive.
func watch(client *courier.Client) {
	if client.UserID == "" {
		fmt.Fprintln(os.Stderr, "Not registered. Run: courier register <username>")
		os.Exit(1)
	}

	poller := courier.NewPoller(client, courier.PollerConfig{})
	poller.OnMessage(printMessage)
	// Start from now; history is available on demand
	poller.SetSince(time.Now().UnixMilli())
	poller.Start()

	_ = client.Online()
	fmt.Printf("Watching for messages as %s (Ctrl-C to stop)\n", client.Username)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	poller.Stop()
	_ = client.Offline()
}

func printMessage(msg courier.Message) {
	ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
	from := msg.From
	if len(from) > 8 {
		from = from[:8]
	}
	fmt.Printf("[%s] %s: %s\n", ts, from, msg.Body)
}

func usage() {
	fmt.Println(`courier CLI - message delivery service client

Usage: courier <command> [options]

Commands:
  register <username>       Register a username
  send <username> <msg>     Send a direct message
  poll                      Fetch queued messages once
  watch                     Poll continuously and print messages
  history <username>        Show conversation history
  conversations             List conversations with unread counts
  unread                    Show unread counts
  online                    List online users
  whois <username>          Look up a user
  health                    Check server health

Environment:
  COURIER_URL      Server URL (default: http://localhost:8080)
  COURIER_CONFIG   Config directory (default: ~/.courier)`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
