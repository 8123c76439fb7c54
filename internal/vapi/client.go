package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Preyoshi04/MockWise/internal/interview"
	"github.com/Preyoshi04/MockWise/internal/pubsub"
)

const DefaultBaseURL = "https://api.vapi.ai"

var ErrNotConfigured = errors.New("vapi: voice calls are not configured")

type Options struct {
	BaseURL     string
	APIKey      string
	AssistantID string
	HTTP        *http.Client
	Bus         pubsub.Bus
	Logger      *logrus.Entry
}

// Client places web calls and implements interview.Dialer. Call events
// arrive through the webhook, which republishes them on the bus.
type Client struct {
	baseURL     string
	apiKey      string
	assistantID string
	http        *http.Client
	bus         pubsub.Bus
	log         *logrus.Entry
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	hc := opts.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		baseURL:     base,
		apiKey:      opts.APIKey,
		assistantID: opts.AssistantID,
		http:        hc,
		bus:         opts.Bus,
		log:         log,
	}
}

type createWebCallRequest struct {
	AssistantID        string `json:"assistantId"`
	AssistantOverrides struct {
		VariableValues map[string]string `json:"variableValues"`
	} `json:"assistantOverrides"`
}

type webCallResponse struct {
	ID         string `json:"id"`
	WebCallURL string `json:"webCallUrl"`
	Monitor    struct {
		ControlURL string `json:"controlUrl"`
	} `json:"monitor"`
}

func (c *Client) Dial(ctx context.Context, userID string) (interview.CallChannel, error) {
	if c.apiKey == "" || c.assistantID == "" || c.bus == nil {
		return nil, ErrNotConfigured
	}

	var body createWebCallRequest
	body.AssistantID = c.assistantID
	body.AssistantOverrides.VariableValues = map[string]string{callVariableUserID: userID}

	var call webCallResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/call/web", body, &call); err != nil {
		return nil, err
	}
	if call.ID == "" {
		return nil, errors.New("vapi: create call returned no id")
	}

	sub, err := c.bus.Subscribe(ctx, pubsub.CallEventsTopic(call.ID))
	if err != nil {
		return nil, fmt.Errorf("vapi: subscribe call events: %w", err)
	}

	ch := &callChannel{
		client:     c,
		id:         call.ID,
		joinURL:    call.WebCallURL,
		controlURL: call.Monitor.ControlURL,
		sub:        sub,
		events:     make(chan interview.CallEvent, 32),
		stopped:    make(chan struct{}),
		log:        c.log.WithField("call_id", call.ID),
	}
	go ch.pump()
	return ch, nil
}

func (c *Client) do(ctx context.Context, method, url string, in, out any) error {
	var rdr io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vapi: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("vapi: %s %s: status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("vapi: decode response: %w", err)
	}
	return nil
}

type callChannel struct {
	client     *Client
	id         string
	joinURL    string
	controlURL string
	sub        pubsub.Subscription
	events     chan interview.CallEvent
	log        *logrus.Entry

	stopped  chan struct{}
	stopOnce sync.Once
}

func (ch *callChannel) ID() string                         { return ch.id }
func (ch *callChannel) JoinURL() string                    { return ch.joinURL }
func (ch *callChannel) Events() <-chan interview.CallEvent { return ch.events }

func (ch *callChannel) pump() {
	defer close(ch.events)
	for raw := range ch.sub.Messages() {
		var ev interview.CallEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			ch.log.WithError(err).Warn("dropping malformed call event")
			continue
		}
		select {
		case ch.events <- ev:
		case <-ch.stopped:
			return
		}
	}
}

// Stop asks the platform to hang up and ends the event subscription. The
// subscription is closed even if the hang-up request fails.
func (ch *callChannel) Stop(ctx context.Context) error {
	var err error
	ch.stopOnce.Do(func() {
		close(ch.stopped)
		if ch.controlURL != "" {
			err = ch.client.do(ctx, http.MethodPost, ch.controlURL, map[string]string{"type": "end-call"}, nil)
		}
		if cerr := ch.sub.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
