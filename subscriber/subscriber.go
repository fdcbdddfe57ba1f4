package subscriber

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/byt3hx/ollama-ai-analyzer/analyzer"
	"github.com/byt3hx/ollama-ai-analyzer/orchestrator"
	"github.com/byt3hx/ollama-ai-analyzer/session"
	"github.com/byt3hx/ollama-ai-analyzer/settings"
	"github.com/byt3hx/ollama-ai-analyzer/stream"
	"github.com/byt3hx/ollama-ai-analyzer/utils"
	valkeystore "github.com/byt3hx/ollama-ai-analyzer/valkey"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

const CaptureChannel = "traffic_captured"

// CapturePayload is what the intercepting proxy publishes when the analyst
// sends an exchange to the analyzer.
type CapturePayload struct {
	Title       string `json:"title"`
	Request     string `json:"request"`
	Response    string `json:"response"`
	Instruction string `json:"instruction"`
	Analyze     bool   `json:"analyze"`
}

// Intake turns captured traffic into sessions.
type Intake struct {
	Sessions *session.Store
	Settings *settings.Store
	Feeds    *stream.Registry
}

// StartSubscribers listens for captured traffic until ctx is done.
func StartSubscribers(ctx context.Context, logger *zap.Logger, intake *Intake) {
	go startSubscriber(ctx, logger, CaptureChannel, intake.Process)
}

func startSubscriber(ctx context.Context, logger *zap.Logger, channel string, processor func(*zap.Logger, string)) {
	sugar := logger.Sugar()
	sugar.Infow("Message subscriber started",
		"channel", channel)

	vkClient := valkeystore.RawClient
	subscribe := vkClient.B().Subscribe().Channel(channel).Build()

	for {
		err := vkClient.Receive(ctx, subscribe, func(msg valkey.PubSubMessage) {
			// Ensure message is not empty
			if strings.TrimSpace(msg.Message) == "" {
				sugar.Warn("Received empty message from pub/sub")
				return
			}
			go processor(logger, msg.Message)
		})
		if ctx.Err() != nil {
			sugar.Infow("Message subscriber stopped",
				"channel", channel)
			return
		}
		sugar.Errorw("Subscription interrupted",
			"channel", channel,
			"error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second): // Wait before retrying
		}
	}
}

// Process handles one capture message. A message that is not JSON is
// taken as the raw request text.
func (in *Intake) Process(logger *zap.Logger, message string) {
	sugar := logger.Sugar()
	utils.CapturesReceived.Add(1)

	var payload CapturePayload
	if err := json.Unmarshal([]byte(message), &payload); err != nil {
		payload = CapturePayload{Request: message}
	}

	if strings.TrimSpace(payload.Request) == "" {
		sugar.Warn("Ignoring capture without request text")
		return
	}

	fields := session.Fields{
		RequestText:  &payload.Request,
		ResponseText: &payload.Response,
	}
	if payload.Title != "" {
		fields.Title = &payload.Title
	}
	if strings.TrimSpace(payload.Instruction) != "" {
		fields.CustomInstruction = &payload.Instruction
	}
	sess := in.Sessions.CreateWith(fields)
	utils.SessionsCreated.Add(1)

	sugar.Infow("Capture stored as session",
		"session_id", sess.ID,
		"request_length", len(payload.Request),
		"response_length", len(payload.Response))

	if !payload.Analyze {
		return
	}

	feed := stream.NewFeed()
	jobID, err := in.Sessions.Analyze(sess.ID, in.Settings.Get(), feed)
	var ve *analyzer.ValidationError
	switch {
	case err == nil:
		in.Feeds.Put(jobID, feed)
		utils.JobsSubmitted.Add(1)
		sugar.Infow("Capture submitted for analysis",
			"session_id", sess.ID,
			"job_id", jobID)
	case errors.Is(err, orchestrator.ErrBusy):
		utils.JobsRejectedBusy.Add(1)
		sugar.Warnw("Analysis already running, capture kept for later",
			"session_id", sess.ID)
	case errors.As(err, &ve):
		utils.JobsRejectedInvalid.Add(1)
		sugar.Warnw("Capture has nothing to analyze",
			"session_id", sess.ID,
			"reason", ve.Reason)
	default:
		sugar.Errorw("Capture analysis failed",
			"session_id", sess.ID,
			"error", err)
	}
}
