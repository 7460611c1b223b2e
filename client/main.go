// Command client is a line-driven debug client for a meiro room.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wfunc/meiro/logger"
)

const usage = `commands:
  start [20|40]            O_START
  ping                     PING
  wall add|del X Y DIR     O_EDIT ADD_WALL / DEL_WALL (DIR top|right|bottom|left)
  trap X Y                 O_EDIT PLACE_TRAP
  point X Y VALUE          O_EDIT PLACE_POINT
  mark X Y                 O_MRK
  cancel X,Y               O_CANCEL
  rematch                  O_CONFIRM rematch
  input FORWARD YAW        P_INPUT
  quit`

// createRoom asks the server for a fresh room code.
func createRoom(server string) (string, error) {
	resp, err := http.Post("http://"+server+"/rooms", "application/json", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create room: %s", resp.Status)
	}
	var body struct {
		RoomID string `json:"roomId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.RoomID, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func cell(x, y string) map[string]int {
	return map[string]int{"x": atoi(x), "y": atoi(y)}
}

// command turns one input line into a client message. A nil result with
// a nil error means the line was empty.
func command(line string) (map[string]any, error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return nil, nil
	}
	argc := len(f) - 1
	switch f[0] {
	case "start":
		msg := map[string]any{"type": "O_START"}
		if argc >= 1 {
			msg["mazeSize"] = atoi(f[1])
		}
		return msg, nil
	case "ping":
		return map[string]any{"type": "PING", "ts": float64(time.Now().UnixMilli())}, nil
	case "wall":
		if argc < 4 {
			break
		}
		action := "ADD_WALL"
		if f[1] == "del" {
			action = "DEL_WALL"
		}
		return map[string]any{"type": "O_EDIT", "edit": map[string]any{
			"action": action, "cell": cell(f[2], f[3]), "direction": f[4],
		}}, nil
	case "trap":
		if argc < 2 {
			break
		}
		return map[string]any{"type": "O_EDIT", "edit": map[string]any{
			"action": "PLACE_TRAP", "cell": cell(f[1], f[2]),
		}}, nil
	case "point":
		if argc < 3 {
			break
		}
		return map[string]any{"type": "O_EDIT", "edit": map[string]any{
			"action": "PLACE_POINT", "cell": cell(f[1], f[2]), "value": atoi(f[3]),
		}}, nil
	case "mark":
		if argc < 2 {
			break
		}
		return map[string]any{"type": "O_MRK", "cell": cell(f[1], f[2])}, nil
	case "cancel":
		if argc < 1 {
			break
		}
		return map[string]any{"type": "O_CANCEL", "targetId": f[1]}, nil
	case "rematch":
		return map[string]any{"type": "O_CONFIRM", "targetId": "rematch"}, nil
	case "input":
		if argc < 2 {
			break
		}
		return map[string]any{
			"type": "P_INPUT", "forward": atof(f[1]), "yaw": atof(f[2]),
			"timestamp": time.Now().UnixMilli(),
		}, nil
	default:
		return nil, fmt.Errorf("unknown command %q\n%s", f[0], usage)
	}
	return nil, fmt.Errorf("%s: missing arguments\n%s", f[0], usage)
}

func main() {
	server := flag.String("server", "localhost:8080", "server host:port")
	roomID := flag.String("room", "", "room code; empty creates a new room")
	role := flag.String("role", "", "owner or player; empty takes the free one")
	nick := flag.String("nick", "", "nickname")
	sessionID := flag.String("session", "", "session id to resume")
	flag.Parse()

	logger.InitDevelopment()
	defer logger.Sync()
	log := logger.Log

	if *roomID == "" {
		id, err := createRoom(*server)
		if err != nil {
			log.Fatalf("Create room failed: %v", err)
		}
		*roomID = id
		log.Infof("Created room %s", id)
	}

	q := url.Values{}
	for k, v := range map[string]string{"role": *role, "nick": *nick, "session": *sessionID} {
		if v != "" {
			q.Set(k, v)
		}
	}
	u := url.URL{Scheme: "ws", Host: *server, Path: "/rooms/" + *roomID + "/ws", RawQuery: q.Encode()}
	log.Infof("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Infof("Read error: %v", err)
				return
			}
			fmt.Printf("<- %s\n", message)
		}
	}()

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- reader.Text()
		}
		close(lines)
	}()

	fmt.Println(usage)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Info("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Infof("Write close error: %v", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "quit" {
				return
			}
			msg, err := command(line)
			if err != nil {
				fmt.Println(err)
				continue
			}
			if msg == nil {
				continue
			}
			if err := c.WriteJSON(msg); err != nil {
				log.Errorf("Write error: %v", err)
				return
			}
			fmt.Printf("-> %s\n", msg["type"])
		}
	}
}
