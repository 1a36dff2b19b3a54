// Command scan is a line-oriented terminal client for counting stock.
// A hardware barcode scanner types into stdin and terminates each token
// with Enter; typed input works the same way. Slash commands drive the
// non-scan workflow actions.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stocktake-api/internal/presence"
	"stocktake-api/internal/scanner"
	"stocktake-api/internal/workflow"
)

var serverBaseURL = "http://localhost:8080"

func main() {
	sessionFlag := flag.String("session", "", "Session ID to count in")
	operatorFlag := flag.String("operator", "", "Operator display name")
	serverFlag := flag.String("server", "", "Override server base URL")
	apiKey := flag.String("api-key", "", "API key, if the server requires one")
	flag.Parse()

	if env := os.Getenv("STOCKTAKE_SERVER"); env != "" {
		serverBaseURL = strings.TrimRight(env, "/")
	}
	if *serverFlag != "" {
		serverBaseURL = strings.TrimRight(*serverFlag, "/")
	}

	state := loadLocalState()
	session := firstNonEmpty(*sessionFlag, state.LastSession)
	operator := firstNonEmpty(*operatorFlag, state.LastOperator)
	if session == "" || operator == "" {
		fmt.Println("Usage: scan --session <id> --operator <name>")
		fmt.Println("(last used values are remembered after the first run)")
		os.Exit(1)
	}

	state.LastSession = session
	state.LastOperator = operator
	saveLocalState(state)

	client := &apiClient{
		base:     serverBaseURL,
		session:  session,
		operator: operator,
		apiKey:   *apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
	}

	// Advisory presence while the client runs.
	hb := presence.NewHeartbeat(client, presence.DefaultConfig(), session, operator)
	hb.Start()
	defer hb.Stop()

	runLoop(client)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// localState mirrors the server-side preference record so the client
// can resume without re-selecting a session.
type localState struct {
	LastOperator string `json:"last_operator"`
	LastSession  string `json:"last_session"`
}

func statePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "stocktake", "scan.json")
}

func loadLocalState() localState {
	var st localState
	path := statePath()
	if path == "" {
		return st
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return st
	}
	_ = json.Unmarshal(data, &st)
	return st
}

func saveLocalState(st localState) {
	path := statePath()
	if path == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	data, _ := json.MarshalIndent(st, "", "  ")
	_ = os.WriteFile(path, data, 0o644)
}

// lineField adapts the classifier's field abstraction to a line buffer.
type lineField struct {
	value string
}

func (f *lineField) Value() string     { return f.value }
func (f *lineField) SetValue(s string) { f.value = s }
func (f *lineField) Clear()            { f.value = "" }
func (f *lineField) Focus()            {}

// bellFeedback beeps the terminal on scan outcomes.
type bellFeedback struct{}

func (bellFeedback) Success() {}
func (bellFeedback) Error()   { fmt.Print("\a") }

func runLoop(client *apiClient) {
	field := &lineField{}
	classifier := scanner.New(scanner.Config{}, bellFeedback{})

	st, err := client.state()
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	printState(st)

	// Routed by current step: identify scans resolve items, quantity
	// scans count, product barcode scans record the new barcode.
	classifier.Attach(field, func(token string) {
		current, err := client.state()
		if err != nil {
			fmt.Println("Error:", err)
			return
		}

		var next workflow.State
		switch current.Step {
		case workflow.StepIdentify:
			next, err = client.post("scan", map[string]string{"token": token})
		case workflow.StepProductBarcode:
			next, err = client.post("product-barcode", map[string]string{"value": token})
		case workflow.StepQuantity:
			next, err = client.post("count-scan", map[string]string{"token": token})
		default:
			fmt.Printf("Scan ignored in step %s\n", current.Step)
			return
		}
		if err != nil {
			fmt.Println("Error:", err)
			return
		}
		printState(next)
	})

	in := bufio.NewScanner(os.Stdin)
	fmt.Println("Scan a barcode, or type /help for commands.")
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(client, line); quit {
				return
			}
			continue
		}

		for _, r := range line {
			classifier.KeyPress(r)
		}
		classifier.PressEnter()
	}
}

func runCommand(client *apiClient, line string) (quit bool) {
	parts := strings.Fields(line)
	cmd := parts[0]

	var st workflow.State
	var err error

	switch cmd {
	case "/help":
		printHelp()
		return false
	case "/quit":
		return true
	case "/state":
		st, err = client.state()
	case "/continue":
		st, err = client.post("continue", nil)
	case "/skip":
		st, err = client.post("skip", nil)
	case "/back":
		st, err = client.post("back", nil)
	case "/save":
		st, err = client.post("save", nil)
	case "/no-barcode":
		st, err = client.post("no-barcode", nil)
	case "/confirm":
		st, err = client.post("confirm-item", map[string]string{"choice": "continue"})
	case "/go-back":
		st, err = client.post("confirm-item", map[string]string{"choice": "go_back"})
	case "/+":
		st, err = client.post("adjust", map[string]int{"delta": 1})
	case "/-":
		st, err = client.post("adjust", map[string]int{"delta": -1})
	case "/qty":
		if len(parts) != 2 {
			fmt.Println("Usage: /qty <number>")
			return false
		}
		n, convErr := strconv.Atoi(parts[1])
		if convErr != nil {
			fmt.Println("Usage: /qty <number>")
			return false
		}
		st, err = client.post("quantity", map[string]int{"value": n})
	default:
		fmt.Println("Unknown command, try /help")
		return false
	}

	if err != nil {
		fmt.Println("Error:", err)
		return false
	}
	printState(st)
	return false
}

func printHelp() {
	fmt.Println(`Commands:
  /continue       advance (item info -> barcode, quantity -> confirm)
  /skip           abandon the current item
  /back           go back one step
  /no-barcode     count an item that has no product barcode
  /confirm        proceed with an already-counted item
  /go-back        decline an already-counted item
  /+  /-          adjust quantity by one
  /qty <n>        set quantity directly
  /save           commit the count
  /state          show the current step
  /quit           exit`)
}

func printState(st workflow.State) {
	if st.Notice != "" {
		fmt.Println("!", st.Notice)
	}
	switch st.Step {
	case workflow.StepIdentify:
		if st.PendingItem != nil {
			fmt.Printf("[identify] %s was already counted: /confirm or /go-back\n", st.PendingItem.Title)
		} else {
			fmt.Println("[identify] scan an item barcode")
		}
	case workflow.StepItemInfo:
		fmt.Printf("[item] %s (barcode %s, sku %s): /continue or /skip\n", st.Item.Title, st.Item.Barcode, st.Item.SKU)
	case workflow.StepProductBarcode:
		if st.ProductBarcode != "" {
			fmt.Printf("[barcode] current: %s - scan a new one, or /no-barcode\n", st.ProductBarcode)
		} else {
			fmt.Println("[barcode] scan the product barcode, or /no-barcode")
		}
	case workflow.StepQuantity:
		fmt.Printf("[count] quantity %d - scan units, /+ /- /qty, then /continue\n", st.Quantity)
	case workflow.StepConfirm:
		fmt.Printf("[confirm] %s x%d (barcode %s): /save or /back\n", st.Item.Title, st.Quantity, st.ProductBarcode)
	}
}

// apiClient wraps the workflow and presence endpoints for one operator
// in one session.
type apiClient struct {
	base     string
	session  string
	operator string
	apiKey   string
	http     *http.Client
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *apiClient) workflowURL(action string) string {
	url := fmt.Sprintf("%s/api/v1/sessions/%s/workflow/%s", c.base, c.session, c.operator)
	if action != "" {
		url += "/" + action
	}
	return url
}

func (c *apiClient) do(method, url string, body interface{}) (json.RawMessage, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	if !env.Success {
		if env.Error != nil {
			return nil, fmt.Errorf("%s", env.Error.Message)
		}
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}
	return env.Data, nil
}

func (c *apiClient) post(action string, body interface{}) (workflow.State, error) {
	if body == nil {
		body = map[string]string{}
	}
	data, err := c.do(http.MethodPost, c.workflowURL(action), body)
	if err != nil {
		return workflow.State{}, err
	}

	var st workflow.State
	if err := json.Unmarshal(data, &st); err != nil {
		return workflow.State{}, err
	}
	return st, nil
}

func (c *apiClient) state() (workflow.State, error) {
	data, err := c.do(http.MethodGet, c.workflowURL(""), nil)
	if err != nil {
		return workflow.State{}, err
	}

	var st workflow.State
	if err := json.Unmarshal(data, &st); err != nil {
		return workflow.State{}, err
	}
	return st, nil
}

// Heartbeat implements presence.Beater over the HTTP API. The TTL is
// configured server-side; the parameter is ignored here.
func (c *apiClient) Heartbeat(ctx context.Context, sessionID, operator string, ttl time.Duration) error {
	url := fmt.Sprintf("%s/api/v1/sessions/%s/presence/%s", c.base, sessionID, operator)
	_, err := c.do(http.MethodPut, url, map[string]string{})
	return err
}

// Leave implements presence.Beater over the HTTP API.
func (c *apiClient) Leave(ctx context.Context, sessionID, operator string) error {
	url := fmt.Sprintf("%s/api/v1/sessions/%s/presence/%s", c.base, sessionID, operator)
	_, err := c.do(http.MethodDelete, url, nil)
	return err
}
