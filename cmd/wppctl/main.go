package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/matheus3301/wppgw/internal/config"
	"github.com/matheus3301/wppgw/internal/daemon"
	"github.com/matheus3301/wppgw/internal/qr"
	"github.com/matheus3301/wppgw/internal/session"
	"github.com/matheus3301/wppgw/internal/tui/client"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	configFlag := flag.String("config", session.ConfigPath(), "path to config.toml")
	urlFlag := flag.String("url", "", "daemon base URL (default http://127.0.0.1:<port>)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configFlag)
	if err != nil {
		fatal(err)
	}
	sessionName := session.Resolve(*sessionFlag, cfg)
	if err := session.ValidateName(sessionName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	baseURL := *urlFlag
	if baseURL == "" {
		baseURL = client.LocalURL(cfg.Server.Port)
	}
	c := client.New(baseURL)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, sessionName, *jsonFlag)
	case "qr":
		cmdQR(ctx, c, args[1:], *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wppctl send <phone> <message...>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "), *jsonFlag)
	case "chats":
		cmdChats(ctx, c, *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wppctl messages <chat-id>")
			os.Exit(1)
		}
		cmdMessages(ctx, c, args[1], *jsonFlag)
	case "logout":
		if err := c.Logout(ctx); err != nil {
			fatal(err)
		}
		fmt.Println("Logged out.")
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wppctl [--session <name>] [--url <base>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                   Show connection status")
	fmt.Fprintln(os.Stderr, "  qr [--out f.png|--terminal]  Show or save the pairing code")
	fmt.Fprintln(os.Stderr, "  send <phone> <message>   Send a text message")
	fmt.Fprintln(os.Stderr, "  chats                    List recent chats")
	fmt.Fprintln(os.Stderr, "  messages <chat-id>       List recent messages of a chat")
	fmt.Fprintln(os.Stderr, "  logout                   Log the session out")
}

func cmdStatus(ctx context.Context, c *client.Client, sessionName string, jsonOut bool) {
	h := client.Probe(ctx, session.SocketPath(sessionName), daemon.HealthService)
	resp, err := c.Status(ctx)
	if err != nil {
		if !h.Running {
			fatal(fmt.Errorf("daemon for session %q is not running: %w", sessionName, err))
		}
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Session: %s\n", sessionName)
	fmt.Printf("Status:  %s\n", resp.Status)
	if resp.Client != nil {
		fmt.Printf("Account: %s (%s, %s)\n", resp.Client.Name, resp.Client.Phone, resp.Client.Platform)
	}
}

func cmdQR(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	fs := flag.NewFlagSet("qr", flag.ExitOnError)
	out := fs.String("out", "", "write the QR PNG to this file")
	terminal := fs.Bool("terminal", false, "draw the QR in the terminal")
	_ = fs.Parse(args)

	resp, err := c.QR(ctx, *terminal)
	if err != nil {
		fatal(err)
	}
	if resp.QR == nil {
		fmt.Printf("No pairing code (status: %s).\n", resp.Status)
		return
	}

	switch {
	case *terminal:
		qr.PrintTerminal(os.Stdout, resp.Raw)
	case *out != "":
		png, err := qr.DecodeDataURL(*resp.QR)
		if err != nil {
			fatal(err)
		}
		if err := os.WriteFile(*out, png, 0600); err != nil {
			fatal(err)
		}
		fmt.Printf("Wrote %s\n", *out)
	case jsonOut:
		outputJSON(resp)
	default:
		fmt.Println(*resp.QR)
	}
}

func cmdSend(ctx context.Context, c *client.Client, phone, message string, jsonOut bool) {
	resp, err := c.Send(ctx, phone, message)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	fmt.Printf("Sent %s to %s at %s\n", resp.MessageID, resp.To, time.Unix(resp.Timestamp, 0).Format(time.RFC3339))
}

func cmdChats(ctx context.Context, c *client.Client, jsonOut bool) {
	chats, err := c.Chats(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	if len(chats) == 0 {
		fmt.Println("No chats.")
		return
	}
	for _, ch := range chats {
		preview := ""
		if ch.LastMessage != nil {
			preview = ch.LastMessage.Body
		}
		fmt.Printf("%-40s %-25s %3d  %s\n", ch.ID, ch.Name, ch.UnreadCount, preview)
	}
}

func cmdMessages(ctx context.Context, c *client.Client, chatID string, jsonOut bool) {
	msgs, err := c.Messages(ctx, chatID)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		who := "them"
		if m.FromMe {
			who = "me"
		}
		fmt.Printf("%s %-4s %s\n", time.Unix(m.Timestamp, 0).Format("2006-01-02 15:04"), who, m.Body)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		os.Exit(2)
	}
	os.Exit(1)
}
