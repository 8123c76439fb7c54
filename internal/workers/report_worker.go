package workers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Preyoshi04/MockWise/internal/models"
	"github.com/Preyoshi04/MockWise/internal/providers/llm"
	"github.com/Preyoshi04/MockWise/internal/services"
	"github.com/Preyoshi04/MockWise/internal/storage"
)

const maxRecordingBytes = 10 << 20

// ReportWorkerPool consumes end-of-call jobs: it archives the recording and,
// when the assistant never delivered a verdict, grades the transcript.
type ReportWorkerPool struct {
	Redis      *redis.Client
	Interviews services.InterviewService
	NumWorkers int

	Uploader storage.Uploader // optional
	LLM      llm.Provider     // optional
	HTTP     *http.Client

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *ReportWorkerPool) defaults() error {
	if p.Redis == nil || p.Interviews == nil {
		return errors.New("ReportWorkerPool missing dependency: Redis/Interviews must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultReportStream
	}
	if p.Group == "" {
		p.Group = DefaultReportGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 3
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
	if p.HTTP == nil {
		p.HTTP = &http.Client{Timeout: 60 * time.Second}
	}
	return nil
}

// Run blocks until ctx is cancelled.
func (p *ReportWorkerPool) Run(ctx context.Context) error {
	if err := p.defaults(); err != nil {
		return err
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		g.Go(func() error {
			p.runConsumer(gctx, consumer)
			return nil
		})
	}
	p.Logger.WithFields(logrus.Fields{"stream": p.Stream, "workers": p.NumWorkers}).Info("report workers started")
	return g.Wait()
}

func (p *ReportWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			p.Logger.WithError(err).Warn("report stream read failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(ctx, p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *ReportWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	callID, _ := msg.Values["call_id"].(string)
	if callID == "" {
		return
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id": msg.ID,
		"call_id":  callID,
	})

	rec, err := p.Interviews.Get(ctx, callID)
	if err != nil {
		log.WithError(err).Warn("report job: interview not found")
		return
	}

	if p.Uploader != nil && rec.RecordingURL != "" && rec.RecordingPath == "" {
		if err := p.archiveRecording(ctx, rec); err != nil {
			log.WithError(err).Warn("recording archive failed")
		} else {
			log.Info("recording archived")
		}
	}

	if p.LLM != nil && rec.Status == models.StatusPending && rec.Transcript != "" {
		applied, err := p.reviewTranscript(ctx, rec)
		switch {
		case err != nil:
			log.WithError(err).Warn("transcript review failed")
		case applied:
			log.Info("transcript review applied")
		default:
			log.Debug("transcript review skipped: already evaluated")
		}
	}
}

func (p *ReportWorkerPool) archiveRecording(ctx context.Context, rec *models.InterviewResult) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rec.RecordingURL, nil)
	if err != nil {
		return err
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("recording fetch: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes+1))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errors.New("recording is empty")
	}
	if len(body) > maxRecordingBytes {
		return errors.New("recording exceeds 10MB")
	}

	object, contentType := storage.RecordingObject(rec.ID, rec.RecordingURL)
	stored, err := p.Uploader.Upload(ctx, object, contentType, bytes.NewReader(body))
	if err != nil {
		return err
	}
	return p.Interviews.AttachRecording(ctx, rec.ID, stored)
}

func (p *ReportWorkerPool) reviewTranscript(ctx context.Context, rec *models.InterviewResult) (bool, error) {
	out, err := llm.Complete(ctx, p.LLM, reviewPrompt(rec))
	if err != nil {
		return false, err
	}
	ev, err := parseReview(out)
	if err != nil {
		return false, err
	}
	ev.CallID = rec.ID
	ev.UserID = rec.UserID
	return p.Interviews.ApplyTranscriptReview(ctx, ev)
}
