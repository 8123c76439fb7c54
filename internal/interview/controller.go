package interview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Preyoshi04/MockWise/internal/logger"
)

const (
	defaultReleaseTimeout = 5 * time.Second
	defaultRecordTimeout  = 10 * time.Second
	defaultEndTimeout     = 15 * time.Second
)

const (
	msgNoIdentity   = "Please sign in before starting an interview."
	msgDialFailed   = "Could not connect to the interviewer. Please try again."
	msgCameraDenied = "Camera access was denied. The interview can continue without video."
	msgCameraFailed = "The camera could not be started."
	msgTampering    = "Session terminated: the camera cannot be changed during a live interview."
	msgAborted      = "Session terminated."
	msgSaveFailed   = "We could not save this session yet. Your results will appear once evaluation completes."
)

// Termination and abort reasons reported in logs.
const (
	ReasonTampering  = "camera-toggled-while-live"
	ReasonEndTimeout = "end-timeout"
	ReasonDropped    = "channel-closed"
)

type Config struct {
	Dialer   Dialer
	Camera   Camera
	Recorder Recorder // optional

	// Observer receives every state change. It runs on the Run goroutine and
	// must not call back into the Controller.
	Observer func(Snapshot)
	Logger   *logrus.Entry

	ReleaseTimeout time.Duration
	RecordTimeout  time.Duration
	// EndTimeout bounds how long End waits for the platform to confirm
	// termination before the session is finished locally.
	EndTimeout time.Duration
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdToggleCamera
	cmdEnd
	cmdAbort
)

type command struct {
	kind   cmdKind
	userID string
	reason string
	reply  chan error
}

// Controller owns one interview session. All state lives on the Run goroutine;
// the exported methods hand commands to it and wait for the outcome.
type Controller struct {
	cfg  Config
	log  *logrus.Entry
	cmds chan command
	done chan struct{}

	mu   sync.Mutex
	last Snapshot

	// owned by Run
	state      State
	userID     string
	channel    CallChannel
	events     <-chan CallEvent
	callID     string
	joinURL    string
	cameraOn   bool
	talking    bool
	transcript string
	saved      bool
	wasLive    bool
	stopped    bool
	notice     *Notice
	endTimer   *time.Timer
}

func NewController(cfg Config) *Controller {
	if cfg.ReleaseTimeout <= 0 {
		cfg.ReleaseTimeout = defaultReleaseTimeout
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = defaultRecordTimeout
	}
	if cfg.EndTimeout <= 0 {
		cfg.EndTimeout = defaultEndTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logger.Discard())
	}
	return &Controller{
		cfg:  cfg,
		log:  log,
		cmds: make(chan command),
		done: make(chan struct{}),
	}
}

// Start dials a new call for userID.
func (c *Controller) Start(ctx context.Context, userID string) error {
	return c.send(ctx, command{kind: cmdStart, userID: userID})
}

// ToggleCamera turns the camera on or off. During a live session it aborts
// the session instead.
func (c *Controller) ToggleCamera(ctx context.Context) error {
	return c.send(ctx, command{kind: cmdToggleCamera})
}

// End asks the call channel to hang up. The session finishes when the
// channel reports termination.
func (c *Controller) End(ctx context.Context) error {
	return c.send(ctx, command{kind: cmdEnd})
}

// Abort terminates the session without recording a result.
func (c *Controller) Abort(ctx context.Context, reason string) error {
	return c.send(ctx, command{kind: cmdAbort, reason: reason})
}

// Done is closed once Run has returned and every resource is released.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Controller) send(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes commands and call events one at a time until the session is
// ended or aborted, or ctx is cancelled. The camera and the call channel are
// released on every return path.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.release()
	defer c.stopEndTimer()

	c.emit()
	for {
		var timeout <-chan time.Time
		if c.endTimer != nil {
			timeout = c.endTimer.C
		}

		select {
		case <-ctx.Done():
			c.log.WithField("state", c.state.String()).Debug("session torn down")
			c.release()
			if !c.state.Terminal() {
				c.state = Ended
				c.talking = false
				c.emit()
			}
			return ctx.Err()

		case cmd := <-c.cmds:
			cmd.reply <- c.handleCommand(ctx, cmd)

		case ev, ok := <-c.events:
			if !ok {
				c.events = nil
				ev = CallEvent{Kind: EventTerminated, Reason: ReasonDropped}
			}
			c.handleEvent(ctx, ev)

		case <-timeout:
			c.endTimer = nil
			c.log.Warn("call did not confirm termination; finishing locally")
			c.handleEvent(ctx, CallEvent{Kind: EventTerminated, Reason: ReasonEndTimeout})
		}

		if c.state.Terminal() {
			return nil
		}
	}
}

func (c *Controller) handleCommand(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdStart:
		return c.start(ctx, cmd.userID)
	case cmdToggleCamera:
		return c.toggleCamera(ctx)
	case cmdEnd:
		return c.end(ctx)
	case cmdAbort:
		if c.state == Idle {
			return ErrNotStarted
		}
		c.abort(ctx, cmd.reason, msgAborted)
		return nil
	}
	return nil
}

func (c *Controller) start(ctx context.Context, userID string) error {
	if c.state != Idle {
		return ErrSessionActive
	}
	if userID == "" {
		c.setNotice("error", msgNoIdentity, false)
		c.emit()
		return ErrNoIdentity
	}

	c.userID = userID
	c.notice = nil
	c.state = Connecting
	c.emit()

	ch, err := c.cfg.Dialer.Dial(ctx, userID)
	if err != nil {
		c.log.WithError(err).Warn("dial failed")
		c.state = Idle
		c.setNotice("error", msgDialFailed, false)
		c.emit()
		return err
	}

	c.channel = ch
	c.events = ch.Events()
	c.stopped = false
	c.callID = ch.ID()
	c.joinURL = ch.JoinURL()
	c.log = c.log.WithField("call_id", c.callID)
	c.log.Info("call dialed")
	c.emit()
	return nil
}

func (c *Controller) toggleCamera(ctx context.Context) error {
	if c.state == Live {
		c.log.Warn("camera toggled during live session")
		c.abort(ctx, ReasonTampering, msgTampering)
		return nil
	}

	if c.cameraOn {
		if err := c.cfg.Camera.Close(); err != nil {
			c.log.WithError(err).Warn("camera close failed")
		}
		c.cameraOn = false
		c.emit()
		return nil
	}

	if err := c.cfg.Camera.Open(ctx); err != nil {
		c.cameraOn = false
		if errors.Is(err, ErrCameraDenied) {
			c.setNotice("error", msgCameraDenied, false)
		} else {
			c.setNotice("error", msgCameraFailed, false)
		}
		c.emit()
		return err
	}
	c.cameraOn = true
	c.emit()
	return nil
}

func (c *Controller) end(ctx context.Context) error {
	if c.state != Connecting && c.state != Live {
		return ErrNotStarted
	}
	if !c.stopped {
		if err := c.channel.Stop(ctx); err != nil {
			c.log.WithError(err).Warn("call stop failed")
			return err
		}
		c.stopped = true
	}
	if c.endTimer == nil {
		c.endTimer = time.NewTimer(c.cfg.EndTimeout)
	}
	return nil
}

func (c *Controller) handleEvent(ctx context.Context, ev CallEvent) {
	switch ev.Kind {
	case EventConnected:
		if c.state == Connecting {
			c.state = Live
			c.wasLive = true
			c.log.Info("call live")
			c.emit()
		}
	case EventSpeechStart, EventSpeechEnd:
		if c.state == Live {
			c.talking = ev.Kind == EventSpeechStart
			c.emit()
		}
	case EventTranscript:
		if c.state == Live && ev.Partial {
			c.transcript = ev.Text
			c.emit()
		}
	case EventTerminated:
		if c.state == Connecting || c.state == Live {
			c.finish(ctx, ev.Reason)
		}
	}
}

// finish runs the normal end path: record a fallback result once, release
// media, then mark the session ended whatever the write outcome was.
func (c *Controller) finish(ctx context.Context, reason string) {
	c.stopEndTimer()
	c.log.WithField("reason", reason).Info("call terminated")
	c.state = Ending
	c.talking = false
	c.emit()

	if c.wasLive && !c.saved && c.callID != "" && c.cfg.Recorder != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RecordTimeout)
		created, err := c.cfg.Recorder.RecordFallback(rctx, c.callID, c.userID)
		cancel()
		if err != nil {
			c.log.WithError(err).Error("fallback record failed")
			c.setNotice("error", msgSaveFailed, false)
		} else {
			c.saved = true
			c.log.WithField("created", created).Info("session result recorded")
		}
	}

	c.release()
	c.transcript = ""
	c.state = Ended
	c.emit()
}

// abort marks the call aborted before hanging up, so the platform's
// end-of-call callbacks find the mark already in place.
func (c *Controller) abort(ctx context.Context, reason, message string) {
	c.stopEndTimer()
	c.log.WithField("reason", reason).Warn("session aborted")
	if c.callID != "" && c.cfg.Recorder != nil {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RecordTimeout)
		if err := c.cfg.Recorder.RecordAbort(rctx, c.callID, c.userID); err != nil {
			c.log.WithError(err).Error("abort mark failed")
		}
		cancel()
	}
	c.release()
	c.talking = false
	c.transcript = ""
	c.state = Aborted
	c.setNotice("error", message, true)
	c.emit()
}

// release stops the call channel and the camera. Safe to call repeatedly.
func (c *Controller) release() {
	if c.channel != nil && !c.stopped {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ReleaseTimeout)
		if err := c.channel.Stop(ctx); err != nil {
			c.log.WithError(err).Warn("call stop failed during release")
		}
		cancel()
		c.stopped = true
	}
	c.events = nil
	if c.cameraOn {
		if err := c.cfg.Camera.Close(); err != nil {
			c.log.WithError(err).Warn("camera close failed during release")
		}
		c.cameraOn = false
	}
}

func (c *Controller) stopEndTimer() {
	if c.endTimer != nil {
		c.endTimer.Stop()
		c.endTimer = nil
	}
}

func (c *Controller) setNotice(level, msg string, blocking bool) {
	c.notice = &Notice{Level: level, Message: msg, Blocking: blocking}
}

func (c *Controller) emit() {
	snap := Snapshot{
		State:            c.state,
		CallID:           c.callID,
		JoinURL:          c.joinURL,
		CameraEnabled:    c.cameraOn,
		AssistantTalking: c.talking,
		Transcript:       c.transcript,
		Saved:            c.saved,
	}
	if c.notice != nil {
		n := *c.notice
		snap.Notice = &n
	}

	c.mu.Lock()
	c.last = snap
	c.mu.Unlock()

	if c.cfg.Observer != nil {
		c.cfg.Observer(snap)
	}
}
