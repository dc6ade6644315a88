package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AndresMRE/chat-client/broker"
	"github.com/AndresMRE/chat-client/chat"
	"github.com/AndresMRE/chat-client/session"
	"github.com/AndresMRE/chat-client/store"
)

const authTimeout = 10 * time.Second

var (
	flagBrokerURL = flag.String("broker-url", "tcp://127.0.0.1:1883", "broker url, e.g. tcp://host:1883 or wss://host:8884/mqtt")
	flagClientID  = flag.String("client-id", "", "MQTT client id, random when empty")
	flagBrokerUsr = flag.String("broker-username", "", "broker transport username")
	flagBrokerPwd = flag.String("broker-password", "", "broker transport password")

	flagDBPath      = flag.String("db-path", "chat-client.db", "bbolt file holding the token and chat state")
	flagMetricsAddr = flag.String("metrics-addr", "", "serve prometheus /metrics on this address, disabled when empty")
)

func main() {
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	if v := validateFlags(); v > 0 {
		return v
	}

	kv, err := store.OpenBolt(*flagDBPath)
	if err != nil {
		return errorf("open store: %v", err)
	}
	defer kv.Close()

	clientID := *flagClientID
	if clientID == "" {
		clientID = "chat-client-" + session.NewID()[:8]
	}

	b := broker.NewMQTT(&broker.MQTTCfg{
		URL:      *flagBrokerURL,
		ClientID: clientID,
		Username: *flagBrokerUsr,
		Password: *flagBrokerPwd,
	})
	if err := b.Connect(); err != nil {
		return errorf("%v", err)
	}
	defer b.Disconnect()

	if *flagMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		))
		go func() {
			if err := http.ListenAndServe(*flagMetricsAddr, mux); err != nil {
				glog.Errorf("metrics server: %v", err)
			}
		}()
	}

	a := &app{broker: b, kv: kv, sess: session.NewManager(b, kv)}
	if a.sess.Restore() {
		if err := a.openChat(); err != nil {
			glog.Errorf("restore session: %v", err)
		}
	}

	fmt.Println("chat-client ready, type `help` for commands")
	a.prompt()

	lineC := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lineC <- scanner.Text()
		}
		close(lineC)
	}()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGTERM, syscall.SIGINT)

	for {
		select {
		case sig := <-sigC:
			glog.Infof("received signal `%s`, stopping", sig.String())
			a.close()
			return 0
		case line, ok := <-lineC:
			if !ok {
				a.close()
				return 0
			}
			if quit := a.dispatch(line); quit {
				a.close()
				return 0
			}
			a.prompt()
		}
	}
}

// app wires the session manager and, once authenticated, the messaging
// client, around the single injected broker connection.
type app struct {
	broker broker.Broker
	kv     store.KV
	sess   *session.Manager
	chat   *chat.Client
}

func (a *app) prompt() {
	if u := a.sess.Username(); u != "" {
		fmt.Printf("%s> ", u)
	} else {
		fmt.Print("> ")
	}
}

// dispatch runs one command line; returns true to quit.
func (a *app) dispatch(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "help":
		fmt.Print(helpText)
	case "register":
		err = a.register(args)
	case "login":
		err = a.login(args)
	case "logout":
		a.closeChat()
		a.sess.Logout()
	case "chats":
		err = a.listChats()
	case "add":
		err = a.addChat(args)
	case "open":
		err = a.openConversation(args)
	case "send":
		err = a.send(line)
	case "quit", "exit":
		return true
	default:
		err = fmt.Errorf("unknown command %q, try `help`", cmd)
	}

	if err != nil {
		fmt.Printf("error: %v\n", err)
	}
	return false
}

const helpText = `commands:
  register <user> <pass>   create an account
  login <user> <pass>      authenticate and open the chat session
  logout                   end the session and clear local state
  chats                    list conversations with unread counts
  add <id> [name]          add a conversation without sending
  open <id>                select a conversation and show its history
  send <text>              send to the selected conversation
  quit                     exit
`

func (a *app) register(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: register <user> <pass>")
	}
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()
	if err := a.sess.Register(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Println("registered, now log in")
	return nil
}

func (a *app) login(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: login <user> <pass>")
	}
	ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
	defer cancel()
	if err := a.sess.Login(ctx, args[0], args[1]); err != nil {
		return err
	}
	return a.openChat()
}

// openChat builds and starts the messaging client for the authenticated
// identity.
func (a *app) openChat() error {
	c, err := chat.NewClient(a.broker, a.sess, a.kv)
	if err != nil {
		return err
	}
	c.OnError(func(message string) {
		fmt.Printf("\nserver error: %s\n", message)
	})
	if err := c.Start(); err != nil {
		return err
	}
	a.chat = c
	return nil
}

func (a *app) closeChat() {
	if a.chat != nil {
		a.chat.Stop()
		a.chat = nil
	}
}

func (a *app) close() {
	a.closeChat()
}

func (a *app) listChats() error {
	if a.chat == nil {
		return session.ErrNotAuthenticated
	}
	convs := a.chat.Conversations()
	selected := convs.Selected()
	for _, conv := range convs.List() {
		marker := " "
		if conv.ID == selected {
			marker = "*"
		}
		if n := convs.Unread(conv.ID); n > 0 {
			fmt.Printf("%s %s (%s) [%d unread]\n", marker, conv.Name, conv.ID, n)
		} else {
			fmt.Printf("%s %s (%s)\n", marker, conv.Name, conv.ID)
		}
	}
	return nil
}

func (a *app) addChat(args []string) error {
	if a.chat == nil {
		return session.ErrNotAuthenticated
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: add <id> [name]")
	}
	name := ""
	if len(args) > 1 {
		name = strings.Join(args[1:], " ")
	}
	a.chat.Conversations().Ensure(args[0], name)
	return nil
}

func (a *app) openConversation(args []string) error {
	if a.chat == nil {
		return session.ErrNotAuthenticated
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: open <id>")
	}
	convs := a.chat.Conversations()
	convs.Ensure(args[0], "")
	convs.Select(args[0])
	for _, msg := range convs.History(args[0]) {
		fmt.Printf("%s: %s\n", msg.From, msg.Content)
	}
	return nil
}

func (a *app) send(line string) error {
	if a.chat == nil {
		return session.ErrNotAuthenticated
	}
	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "send"))
	if text == "" {
		return fmt.Errorf("usage: send <text>")
	}
	return a.chat.Send(text)
}

func validateFlags() int {
	if *flagBrokerURL == "" {
		return errorf("--broker-url is required")
	}
	if *flagDBPath == "" {
		return errorf("--db-path is required")
	}
	return 0
}

func errorf(format string, args ...interface{}) int {
	glog.Errorf(format, args...)
	return 1
}
