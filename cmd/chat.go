package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/Youssefbenarbiya/booki-relay/internal/config"
	"github.com/Youssefbenarbiya/booki-relay/pkg/protocol"
)

const chatNameWidth = 16

type chatOptions struct {
	addr        string
	identity    string
	listingType string
	listingID   string
	role        string
	counterpart string
	token       string
}

func chatCmd() *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat session against a running relay",
		Long: `Connects to the relay as one participant of a listing conversation.

Examples:
  booki-relay chat -i cust-1 -t room -l r42
  booki-relay chat -i ag-9 -t room -l r42 --counterpart cust-1

Commands inside the session:
  /to <id>          send to <id> (agency side, several customers)
  /history [id]     re-read the conversation
  /close [id]       mark the conversation closed (agency only)
  exit              leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "relay host:port (default: from config)")
	cmd.Flags().StringVarP(&opts.identity, "identity", "i", "", "your user id")
	cmd.Flags().StringVarP(&opts.listingType, "listing-type", "t", "room", "trip, car, hotel or room")
	cmd.Flags().StringVarP(&opts.listingID, "listing", "l", "", "listing id")
	cmd.Flags().StringVar(&opts.role, "role", "", "customer or agency (default: inferred)")
	cmd.Flags().StringVar(&opts.counterpart, "counterpart", "", "the other participant")
	cmd.Flags().StringVar(&opts.token, "token", "", "access token or signed JWT (default: gateway token from config)")
	cmd.MarkFlagRequired("identity")
	cmd.MarkFlagRequired("listing")

	return cmd
}

func chatURL(cfg *config.Config, opts chatOptions) string {
	addr := opts.addr
	if addr == "" {
		host := cfg.Gateway.Host
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		addr = host + ":" + strconv.Itoa(cfg.Gateway.Port)
	}
	q := url.Values{}
	q.Set("identity", opts.identity)
	q.Set("listingType", opts.listingType)
	q.Set("listingId", opts.listingID)
	if opts.role != "" {
		q.Set("role", opts.role)
	}
	if opts.counterpart != "" {
		q.Set("counterpart", opts.counterpart)
	}
	token := opts.token
	if token == "" {
		token = cfg.Gateway.Token
	}
	if token != "" {
		q.Set("token", token)
	}
	return (&url.URL{Scheme: "ws", Host: addr, Path: "/ws", RawQuery: q.Encode()}).String()
}

func runChat(opts chatOptions) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(chatURL(cfg, opts), nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nconnection closed: %v\n", err)
				return
			}
			printChatEvent(os.Stdout, opts.identity, data)
		}
	}()

	to := opts.counterpart
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		event, payload, local := parseChatInput(input, &to)
		if local != "" {
			fmt.Fprintln(os.Stderr, local)
			continue
		}
		if err := conn.WriteJSON(map[string]interface{}{"event": event, "payload": payload}); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	<-done
	return nil
}

// parseChatInput turns one REPL line into a client frame. local is set
// instead when the line only changes REPL state.
func parseChatInput(input string, to *string) (event string, payload interface{}, local string) {
	if !strings.HasPrefix(input, "/") {
		return protocol.EventSendMessage, protocol.SendMessageParams{
			Content:       input,
			CorrelationID: uuid.NewString()[:8],
			Counterpart:   *to,
		}, ""
	}

	fields := strings.Fields(input)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	switch fields[0] {
	case "/to":
		*to = arg
		if arg == "" {
			return "", nil, "sending to the default counterpart"
		}
		return "", nil, "sending to " + arg
	case "/history":
		return protocol.EventRequestHistory, protocol.RequestHistoryParams{Counterpart: arg}, ""
	case "/close":
		if arg == "" {
			arg = *to
		}
		return protocol.EventCloseConversation, protocol.CloseConversationParams{Counterpart: arg}, ""
	}
	return "", nil, "unknown command " + fields[0]
}

type chatFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func printChatEvent(w *os.File, self string, data []byte) {
	var f chatFrame
	if err := json.Unmarshal(data, &f); err != nil {
		fmt.Fprintf(w, "?? %s\n", data)
		return
	}
	switch f.Event {
	case protocol.EventConnectionAck:
		var ack protocol.ConnectionAckPayload
		json.Unmarshal(f.Payload, &ack)
		fmt.Fprintf(w, "connected as %s (%s) on %s/%s\n", ack.Identity, ack.Role, ack.ListingType, ack.ListingID)
	case protocol.EventHistory:
		var h protocol.HistoryPayload
		json.Unmarshal(f.Payload, &h)
		fmt.Fprintf(w, "--- %d messages ---\n", len(h.Messages))
		for _, m := range h.Messages {
			fmt.Fprintln(w, formatChatLine(self, m))
		}
		fmt.Fprintln(w, "---")
	case protocol.EventMessage:
		var m protocol.MessagePayload
		json.Unmarshal(f.Payload, &m)
		fmt.Fprintln(w, formatChatLine(self, m.Message))
	case protocol.EventError:
		var e protocol.ErrorPayload
		json.Unmarshal(f.Payload, &e)
		fmt.Fprintf(w, "error [%s]: %s\n", e.Code, e.Reason)
	case protocol.EventWarning:
		var e protocol.WarningPayload
		json.Unmarshal(f.Payload, &e)
		fmt.Fprintf(w, "warning: %s\n", e.Reason)
	default:
		fmt.Fprintf(w, "%s %s\n", f.Event, f.Payload)
	}
}

func formatChatLine(self string, m protocol.Message) string {
	who := m.SenderID
	if who == self {
		who = "you -> " + m.ReceiverID
	}
	who = runewidth.Truncate(who, chatNameWidth, "…")
	return fmt.Sprintf("%s  %s  %s", m.CreatedAt.Local().Format("15:04:05"), runewidth.FillRight(who, chatNameWidth), m.Content)
}
