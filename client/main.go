package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/wfunc/dominoserver/auth"
	"github.com/wfunc/dominoserver/domino"
	"github.com/wfunc/dominoserver/network"
)

type options struct {
	server   string
	room     string
	password string
	token    string
	userID   string
	username string
	secret   string
}

const help = `commands:
  play <a> <b> [end]  play the tile a|b, optionally on the given end id
  pass                pass the turn
  draw                draw from the boneyard
  ready               toggle your ready vote
  start               start the match (host)
  leave               leave the room
  rooms               list waiting rooms
  quit                close the connection`

var errQuit = errors.New("quit")

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "client",
		Short:        "Interactive domino client",
		Long:         "Connects to the game server over WebSocket and reads commands from stdin.\n\n" + help,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.server, "server", "localhost:8080", "server host:port")
	f.StringVar(&opts.room, "room", "", "room to join; empty connects as a lobby observer")
	f.StringVar(&opts.password, "password", "", "room password")
	f.StringVar(&opts.token, "token", "", "JWT issued by the identity provider")
	f.StringVar(&opts.userID, "user", "", "user id for a locally issued token (needs --secret)")
	f.StringVar(&opts.username, "name", "", "display name for a locally issued token")
	f.StringVar(&opts.secret, "secret", "", "server auth.jwt_secret, used to issue a token locally")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (o *options) resolveToken() (string, error) {
	if o.token != "" {
		return o.token, nil
	}
	if o.userID == "" || o.secret == "" {
		return "", errors.New("either --token or --user with --secret is required")
	}
	name := o.username
	if name == "" {
		name = o.userID
	}
	return auth.NewJWTAuthenticator(o.secret).Issue(auth.Identity{UserID: o.userID, Username: name}, 24*time.Hour)
}

func (o *options) url(token string) string {
	u := url.URL{Scheme: "ws", Host: o.server, Path: "/ws/lobby"}
	q := url.Values{"token": {token}}
	if o.room != "" {
		u.Path = "/ws/game/" + o.room
		u.RawPath = "/ws/game/" + url.PathEscape(o.room)
		if o.password != "" {
			q.Set("password", o.password)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func run(o *options) error {
	token, err := o.resolveToken()
	if err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	target := o.url(token)
	log.Printf("Connecting to %s", strings.SplitN(target, "?", 2)[0])
	c, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			log.Printf("<- %s", describe(message))
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	log.Println("Connected. Type 'help' for commands.")
	for {
		select {
		case <-done:
			return nil
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			return closeConn(c, done)
		case line, ok := <-lines:
			if !ok {
				return closeConn(c, done)
			}
			action, err := parseCommand(line)
			switch {
			case errors.Is(err, errQuit):
				return closeConn(c, done)
			case err != nil:
				log.Println(err)
				continue
			case action == nil:
				continue
			}
			data, err := network.EncodeAction(action)
			if err != nil {
				log.Println("Encode error:", err)
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Println("Write error:", err)
				return err
			}
			log.Printf("-> %s", data)
		}
	}
}

func closeConn(c *websocket.Conn, done <-chan struct{}) error {
	err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
	return err
}

// parseCommand turns one input line into an action. Blank lines and help
// return a nil action.
func parseCommand(line string) (network.Action, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	switch strings.ToLower(fields[0]) {
	case "play", "p":
		if len(fields) < 3 || len(fields) > 4 {
			return nil, errors.New("usage: play <a> <b> [end]")
		}
		a, errA := strconv.Atoi(fields[1])
		b, errB := strconv.Atoi(fields[2])
		if errA != nil || errB != nil {
			return nil, errors.New("tile pips must be numbers")
		}
		tile := domino.NewTile(a, b)
		if !tile.Valid() {
			return nil, fmt.Errorf("no such tile %d|%d", a, b)
		}
		play := network.PlayPiece{Piece: tile}
		if len(fields) == 4 {
			play.EndID = fields[3]
		}
		return play, nil
	case "pass":
		return network.PassTurn{}, nil
	case "draw":
		return network.DrawPiece{}, nil
	case "ready":
		return network.PlayerReady{}, nil
	case "start":
		return network.StartGame{}, nil
	case "leave":
		return network.LeaveGame{}, nil
	case "rooms":
		return network.ListRooms{}, nil
	case "quit", "exit":
		return nil, errQuit
	case "help", "?":
		fmt.Println(help)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown command %q, type 'help'", fields[0])
	}
}

// describe 输出消息类型与正文, 非 JSON 原样返回
func describe(message []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &head); err != nil || head.Type == "" {
		return string(message)
	}
	return head.Type + " " + string(message)
}
